package session

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config defines runtime configuration for the session subsystem.
//
// It is intentionally explicit and environment-driven so deployments can tune
// security parameters without code changes.
type Config struct {
	// CookieName is the session cookie name.
	CookieName string

	// TTL is the session lifetime from login.
	TTL time.Duration

	// TokenBytes is the entropy of the opaque session token.
	TokenBytes int

	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite
}

// DefaultConfig returns defaults suitable for development.
// Production should set PANEL_SESSION_COOKIE_SECURE=true behind TLS.
func DefaultConfig() Config {
	return Config{
		CookieName:     "panel_session",
		TTL:            14 * 24 * time.Hour,
		TokenBytes:     32,
		CookiePath:     "/",
		CookieSecure:   false,
		CookieSameSite: http.SameSiteLaxMode,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional:
//   - PANEL_SESSION_COOKIE_NAME
//   - PANEL_SESSION_TTL (Go duration)
//   - PANEL_SESSION_TOKEN_BYTES
//   - PANEL_SESSION_COOKIE_PATH
//   - PANEL_SESSION_COOKIE_DOMAIN
//   - PANEL_SESSION_COOKIE_SECURE (true/false)
//   - PANEL_SESSION_COOKIE_SAMESITE (lax/strict/none)
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("PANEL_SESSION_COOKIE_NAME")); v != "" {
		cfg.CookieName = v
	}

	if v := strings.TrimSpace(os.Getenv("PANEL_SESSION_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.TTL = d
	}

	if v := strings.TrimSpace(os.Getenv("PANEL_SESSION_TOKEN_BYTES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 16 || n > 256 {
			return Config{}, ErrConfig
		}
		cfg.TokenBytes = n
	}

	if v := strings.TrimSpace(os.Getenv("PANEL_SESSION_COOKIE_PATH")); v != "" {
		cfg.CookiePath = v
	}
	if v := strings.TrimSpace(os.Getenv("PANEL_SESSION_COOKIE_DOMAIN")); v != "" {
		cfg.CookieDomain = v
	}

	if v := strings.TrimSpace(os.Getenv("PANEL_SESSION_COOKIE_SECURE")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.CookieSecure = b
	}

	if v := strings.TrimSpace(os.Getenv("PANEL_SESSION_COOKIE_SAMESITE")); v != "" {
		switch strings.ToLower(v) {
		case "lax":
			cfg.CookieSameSite = http.SameSiteLaxMode
		case "strict":
			cfg.CookieSameSite = http.SameSiteStrictMode
		case "none":
			cfg.CookieSameSite = http.SameSiteNoneMode
		default:
			return Config{}, ErrConfig
		}
	}

	return cfg, nil
}
