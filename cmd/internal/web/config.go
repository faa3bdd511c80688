package web

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrConfig is returned for invalid configuration.
var ErrConfig = errors.New("invalid web config")

// Config tunes the HTTP surface.
type Config struct {
	// TrustProxy enables X-Forwarded-For / X-Real-IP for client IPs.
	// Only enable behind a trusted reverse proxy.
	TrustProxy bool

	// Signin throttling: an IP with SigninMaxFailures or more failed
	// attempts inside SigninFailureWindow is blocked until the window
	// rolls over. Zero max disables throttling.
	SigninFailureWindow time.Duration
	SigninMaxFailures   int
}

// DefaultConfig returns defaults suitable for development.
func DefaultConfig() Config {
	return Config{
		TrustProxy:          false,
		SigninFailureWindow: 10 * time.Minute,
		SigninMaxFailures:   10,
	}
}

// LoadConfigFromEnv loads web configuration from environment variables.
//
// Optional:
//   - PANEL_TRUST_PROXY (true/false)
//   - PANEL_SIGNIN_FAILURE_WINDOW (Go duration)
//   - PANEL_SIGNIN_MAX_FAILURES (0 disables throttling)
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("PANEL_TRUST_PROXY")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.TrustProxy = b
	}

	if v := strings.TrimSpace(os.Getenv("PANEL_SIGNIN_FAILURE_WINDOW")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.SigninFailureWindow = d
	}

	if v := strings.TrimSpace(os.Getenv("PANEL_SIGNIN_MAX_FAILURES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, ErrConfig
		}
		cfg.SigninMaxFailures = n
	}

	return cfg, nil
}
