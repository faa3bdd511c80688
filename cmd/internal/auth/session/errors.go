package session

import "errors"

var (
	// ErrSessionNotFound is returned by stores when a token or ID matches no row.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNotActive is the single failure shape for session resolution.
	// Missing cookie, unknown token, expiry and revocation are deliberately
	// indistinguishable to avoid session probing.
	ErrNotActive = errors.New("session not active")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid session config")
)
