package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
// The pgx pool is owned by the caller; this store must not close it.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// NewPostgresStore creates a Postgres-backed session store (default schema "panel").
func NewPostgresStore(pool *pgxpool.Pool, schema string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = "panel"
	}
	if !pgIdentRe.MatchString(schema) {
		return nil, fmt.Errorf("session: invalid schema identifier")
	}
	return &PostgresStore{pool: pool, schema: schema}, nil
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "sessions"}.Sanitize()
}

// Create inserts a new session row.
func (s *PostgresStore) Create(ctx context.Context, row Row) error {
	var ipVal any
	if row.IP != nil {
		ipVal = row.IP.String()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (
		     id, user_id, token_hash, created_at, last_seen_at, expires_at, user_agent, ip
		   ) VALUES ($1, $2, $3, $4, $4, $5, $6, $7)`,
		row.ID,
		row.UserID,
		row.TokenHash,
		row.CreatedAt,
		row.ExpiresAt,
		row.UserAgent,
		ipVal,
	)
	return err
}

// GetByTokenHash loads a session by token digest.
func (s *PostgresStore) GetByTokenHash(ctx context.Context, tokenHash string) (Row, error) {
	var (
		row    Row
		ipText *string
	)

	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, token_hash, created_at, last_seen_at, expires_at, revoked_at, user_agent, ip::text
		   FROM `+s.table()+`
		  WHERE token_hash = $1`,
		tokenHash,
	).Scan(
		&row.ID,
		&row.UserID,
		&row.TokenHash,
		&row.CreatedAt,
		&row.LastSeenAt,
		&row.ExpiresAt,
		&row.RevokedAt,
		&row.UserAgent,
		&ipText,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrSessionNotFound
	}
	if err != nil {
		return Row{}, err
	}

	row.IP = parseIPPtr(ipText)
	return row, nil
}

// Touch updates last_seen_at if the session is still active.
func (s *PostgresStore) Touch(ctx context.Context, sessionID string, now time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+`
		    SET last_seen_at = $1
		  WHERE id = $2
		    AND revoked_at IS NULL
		    AND expires_at > $1`,
		now, sessionID,
	)
	return err
}

// ReplaceTokenHash atomically swaps the token digest of an active session.
func (s *PostgresStore) ReplaceTokenHash(ctx context.Context, sessionID, newHash string, now time.Time) error {
	ct, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+`
		    SET token_hash = $1,
		        last_seen_at = $2
		  WHERE id = $3
		    AND revoked_at IS NULL
		    AND expires_at > $2`,
		newHash, now, sessionID,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrSessionNotFound
	}
	return nil
}

// Revoke revokes a session by ID (idempotent).
func (s *PostgresStore) Revoke(ctx context.Context, sessionID string, now time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+`
		    SET revoked_at = COALESCE(revoked_at, $1)
		  WHERE id = $2`,
		now, sessionID,
	)
	return err
}

// RevokeAllExcept revokes every session of a user except keepID.
func (s *PostgresStore) RevokeAllExcept(ctx context.Context, userID, keepID string, now time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+`
		    SET revoked_at = COALESCE(revoked_at, $1)
		  WHERE user_id = $2
		    AND id <> $3
		    AND revoked_at IS NULL`,
		now, userID, keepID,
	)
	return err
}

func parseIPPtr(text *string) *net.IP {
	if text == nil {
		return nil
	}
	s := strings.TrimSpace(*text)
	if s == "" {
		return nil
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return nil
	}
	return &ip
}
