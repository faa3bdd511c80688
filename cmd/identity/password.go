package identity

import (
	"errors"
	"sync"

	"panel/cmd/security/password"
)

// Password policy errors surfaced to form validation.
var (
	ErrPasswordTooShort = password.ErrPasswordTooShort
	ErrPasswordTooLong  = password.ErrPasswordTooLong
	ErrWeakPassword     = password.ErrWeakPassword
)

// HashPassword returns a PHC-style Argon2id hash string, enforcing the
// configured password policy. Policy failures unwrap to the password package
// sentinels above.
func HashPassword(plain string) (string, error) {
	cfg, err := password.FromEnv()
	if err != nil {
		// Invalid env is an operational error, not a weak fallback.
		return "", err
	}
	return cfg.Hash(plain)
}

// ValidatePassword checks plain against the configured policy without hashing.
func ValidatePassword(plain string) error {
	cfg, err := password.FromEnv()
	if err != nil {
		return err
	}
	return cfg.Validate(plain)
}

// VerifyPassword checks a password against a PHC Argon2id hash.
func VerifyPassword(plain, encodedPHC string) (bool, error) {
	cfg, err := password.FromEnv()
	if err != nil {
		return false, err
	}
	ok, err := cfg.Verify(encodedPHC, plain)
	if err != nil {
		if errors.Is(err, password.ErrInvalidHash) {
			return false, errors.New("invalid argon2id hash format")
		}
		return false, err
	}
	return ok, nil
}

var (
	dummyOnce sync.Once
	dummyPHC  string
)

// dummyHash returns a fixed argon2id hash used to equalize timing when a
// signin names an unknown user. Computed once per process.
func dummyHash() string {
	dummyOnce.Do(func() {
		cfg := password.DefaultConfig()
		cfg.Policy.RejectVeryWeak = false
		if h, err := cfg.Hash("dummy-password-for-timing-only"); err == nil {
			dummyPHC = h
		}
	})
	return dummyPHC
}

// verifyAgainstDummy burns the same work as a real verification.
func verifyAgainstDummy(plain string) {
	if h := dummyHash(); h != "" {
		cfg := password.DefaultConfig()
		_, _ = cfg.Verify(h, plain)
	}
}
