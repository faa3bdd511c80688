package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for dev mode and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	rows   map[string]Row    // by ID
	byHash map[string]string // token_hash -> ID
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:   make(map[string]Row),
		byHash: make(map[string]string),
	}
}

// Create inserts a new session row.
func (s *MemoryStore) Create(ctx context.Context, row Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows[row.ID] = row
	s.byHash[row.TokenHash] = row.ID
	return nil
}

// GetByTokenHash loads a session by token digest.
func (s *MemoryStore) GetByTokenHash(ctx context.Context, tokenHash string) (Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHash[tokenHash]
	if !ok {
		return Row{}, ErrSessionNotFound
	}
	return s.rows[id], nil
}

// Touch updates last_seen_at if the session is still active.
func (s *MemoryStore) Touch(ctx context.Context, sessionID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[sessionID]
	if !ok || !row.Active(now) {
		return nil
	}
	seen := now
	row.LastSeenAt = &seen
	s.rows[sessionID] = row
	return nil
}

// ReplaceTokenHash atomically swaps the token digest of an active session.
func (s *MemoryStore) ReplaceTokenHash(ctx context.Context, sessionID, newHash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[sessionID]
	if !ok || !row.Active(now) {
		return ErrSessionNotFound
	}

	delete(s.byHash, row.TokenHash)
	row.TokenHash = newHash
	seen := now
	row.LastSeenAt = &seen
	s.rows[sessionID] = row
	s.byHash[newHash] = sessionID
	return nil
}

// Revoke revokes a session by ID (idempotent).
func (s *MemoryStore) Revoke(ctx context.Context, sessionID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[sessionID]
	if !ok {
		return nil
	}
	if row.RevokedAt == nil {
		rev := now
		row.RevokedAt = &rev
		s.rows[sessionID] = row
	}
	return nil
}

// RevokeAllExcept revokes every session of a user except keepID.
func (s *MemoryStore) RevokeAllExcept(ctx context.Context, userID, keepID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, row := range s.rows {
		if row.UserID != userID || id == keepID || row.RevokedAt != nil {
			continue
		}
		rev := now
		row.RevokedAt = &rev
		s.rows[id] = row
	}
	return nil
}
