package session

import (
	"context"
	"net"
	"time"
)

// Row is a persisted session.
// TokenHash is the server-side digest; the plain token is never stored.
type Row struct {
	ID        string
	UserID    string
	TokenHash string

	CreatedAt  time.Time
	LastSeenAt *time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time

	UserAgent *string
	IP        *net.IP
}

// Active reports whether the row is usable at the given instant.
func (r Row) Active(now time.Time) bool {
	return r.RevokedAt == nil && r.ExpiresAt.After(now)
}

// Store is the session persistence boundary.
type Store interface {
	// Create inserts a new session row.
	Create(ctx context.Context, row Row) error

	// GetByTokenHash loads a session by its token digest.
	// Returns ErrSessionNotFound on miss.
	GetByTokenHash(ctx context.Context, tokenHash string) (Row, error)

	// Touch updates last_seen_at for an active session.
	Touch(ctx context.Context, sessionID string, now time.Time) error

	// ReplaceTokenHash atomically swaps the token digest of an active session.
	// Returns ErrSessionNotFound if the session is missing or not active.
	ReplaceTokenHash(ctx context.Context, sessionID, newHash string, now time.Time) error

	// Revoke revokes a session by ID (idempotent).
	Revoke(ctx context.Context, sessionID string, now time.Time) error

	// RevokeAllExcept revokes every session of a user except keepID
	// (idempotent). keepID may be empty to revoke all.
	RevokeAllExcept(ctx context.Context, userID, keepID string, now time.Time) error
}
