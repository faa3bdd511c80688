package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used when no database is configured
// (dev mode) and in unit tests. It enforces the same contract as
// PostgresStore, including atomic uniqueness under the store mutex.
type MemoryStore struct {
	mu sync.RWMutex

	users      map[string]memoryRecord // by ID
	byUsername map[string]string       // username_norm -> ID
	byEmail    map[string]string       // email_norm -> ID
}

type memoryRecord struct {
	user         User
	passwordHash string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]memoryRecord),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

// CreateUser creates a new user with a hashed password.
func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	in, err := prepareCreate(op, in)
	if err != nil {
		return User{}, err
	}

	pwHash, err := HashPassword(in.Password)
	if err != nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: err.Error()}
	}

	userID, err := NewULID(in.Now)
	if err != nil {
		return User{}, err
	}

	unorm := NormalizeUsername(in.Username)
	enorm := NormalizeEmail(in.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check-and-insert under the lock: the memory analogue of a unique index.
	if _, exists := s.byUsername[unorm]; exists {
		return User{}, ConflictError{Op: op, Field: "username"}
	}
	if _, exists := s.byEmail[enorm]; exists {
		return User{}, ConflictError{Op: op, Field: "email"}
	}

	u := User{
		ID:           userID,
		Username:     in.Username,
		UsernameNorm: unorm,
		Email:        in.Email,
		EmailNorm:    enorm,
		FirstName:    in.FirstName,
		SecondName:   in.SecondName,
		IsStaff:      in.IsStaff,
		IsSuperuser:  in.IsSuperuser,
		IsActive:     true,
		CreatedAt:    in.Now,
		UpdatedAt:    in.Now,
	}

	s.users[userID] = memoryRecord{user: u, passwordHash: pwHash}
	s.byUsername[unorm] = userID
	s.byEmail[enorm] = userID

	return u, nil
}

// GetUserByID loads a user by ID.
func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	if strings.TrimSpace(id) == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing id"}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.users[id]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return rec.user, nil
}

// GetUserByUsername loads a user by normalized username.
func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	const op = "identity.GetUserByUsername"

	norm := NormalizeUsername(username)
	if norm == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing username"}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[norm]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return s.users[id].user, nil
}

// VerifyCredentials authenticates username+password with the same
// enumeration-safe semantics as PostgresStore.
func (s *MemoryStore) VerifyCredentials(ctx context.Context, username, password string) (User, error) {
	const op = "identity.VerifyCredentials"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	norm := NormalizeUsername(username)

	s.mu.RLock()
	id, ok := s.byUsername[norm]
	var rec memoryRecord
	if ok {
		rec = s.users[id]
	}
	s.mu.RUnlock()

	if !ok {
		verifyAgainstDummy(password)
		return User{}, invalidCredentials(op)
	}

	okPw, err := VerifyPassword(password, rec.passwordHash)
	if err != nil || !okPw {
		return User{}, invalidCredentials(op)
	}
	if !rec.user.IsActive {
		return User{}, invalidCredentials(op)
	}

	return rec.user, nil
}

// UpdateUser applies a profile-edit mutation.
func (s *MemoryStore) UpdateUser(ctx context.Context, in UpdateUserInput) (User, error) {
	const op = "identity.UpdateUser"

	if strings.TrimSpace(in.ID) == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing id"}
	}
	if err := validateNames(op, in.FirstName, in.SecondName); err != nil {
		return User{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var pwHash string
	rotate := strings.TrimSpace(in.NewPassword) != ""
	if rotate {
		h, err := HashPassword(in.NewPassword)
		if err != nil {
			return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: err.Error()}
		}
		pwHash = h
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[in.ID]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}

	rec.user.FirstName = strings.TrimSpace(in.FirstName)
	rec.user.SecondName = strings.TrimSpace(in.SecondName)
	rec.user.IsStaff = in.IsStaff
	rec.user.IsSuperuser = in.IsSuperuser
	rec.user.IsActive = in.IsActive
	rec.user.UpdatedAt = now
	if rotate {
		rec.passwordHash = pwHash
	}

	s.users[in.ID] = rec
	return rec.user, nil
}

// ListUsers returns all users ordered by username.
func (s *MemoryStore) ListUsers(ctx context.Context) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]User, 0, len(s.users))
	for _, rec := range s.users {
		out = append(out, rec.user)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UsernameNorm < out[j].UsernameNorm
	})
	return out, nil
}
