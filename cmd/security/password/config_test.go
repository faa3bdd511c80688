package password

import "testing"

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Policy.MinLength != 8 {
		t.Fatalf("unexpected default min length: %d", cfg.Policy.MinLength)
	}
	if cfg.Params.MemoryKiB != 64*1024 {
		t.Fatalf("unexpected default memory: %d", cfg.Params.MemoryKiB)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("PANEL_PASSWORD_MIN_LEN", "10")
	t.Setenv("PANEL_ARGON2_ITERATIONS", "4")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Policy.MinLength != 10 {
		t.Fatalf("min length override not applied: %d", cfg.Policy.MinLength)
	}
	if cfg.Params.Iterations != 4 {
		t.Fatalf("iterations override not applied: %d", cfg.Params.Iterations)
	}
}

func TestFromEnv_RejectsInvalid(t *testing.T) {
	t.Setenv("PANEL_PASSWORD_MIN_LEN", "300")
	t.Setenv("PANEL_PASSWORD_MAX_LEN", "100")

	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected error for min_len > max_len")
	}
}

func TestFromEnv_RejectsMalformed(t *testing.T) {
	t.Setenv("PANEL_ARGON2_MEMORY_KIB", "lots")

	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected error for malformed memory value")
	}
}
