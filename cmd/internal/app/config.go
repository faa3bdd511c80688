package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogPretty bool

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string

	// DBSchema must stay "panel" unless SkipMigrations is set: the
	// embedded migrations manage that schema only.
	DBSchema   string
	DBMaxConns int32
	DBMinConns int32

	// If true:
	// - migrations are NOT run at startup (managed externally).
	SkipMigrations bool

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Security policy:
	// If true, PANEL_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and session-token
	// hashing must be HMAC-based.
	RequireTokenHMAC bool

	// Optional superuser bootstrap, applied once at startup when the
	// username does not exist yet.
	BootstrapUsername string
	BootstrapEmail    string
	BootstrapPassword string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("PANEL_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("PANEL_LOG_LEVEL", "info"),
		LogPretty: EnvBool("PANEL_LOG_PRETTY", false),

		ReadHeaderTimeout: EnvDuration("PANEL_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("PANEL_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("PANEL_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("PANEL_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("PANEL_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("PANEL_DATABASE_URL", ""),
		DBSchema:    EnvString("PANEL_DB_SCHEMA", "panel"),
		DBMaxConns:  EnvInt32("PANEL_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("PANEL_DB_MIN_CONNS", 0),

		SkipMigrations: EnvBool("PANEL_DB_SKIP_MIGRATIONS", false),

		ReadinessRequireDB: EnvBool("PANEL_READINESS_REQUIRE_DB", false),

		RequireTokenHMAC: EnvBool("PANEL_REQUIRE_TOKEN_HMAC", false),

		BootstrapUsername: EnvString("PANEL_BOOTSTRAP_USERNAME", ""),
		BootstrapEmail:    EnvString("PANEL_BOOTSTRAP_EMAIL", ""),
		BootstrapPassword: EnvString("PANEL_BOOTSTRAP_PASSWORD", ""),
	}
}
