package identity

import (
	"context"
	"time"
)

// Field length limit shared by username, first and second name.
const MaxNameLen = 30

// User is the panel's canonical security principal.
// DisplayString is the email; the admin listing keys on it.
type User struct {
	ID string

	Username     string
	UsernameNorm string
	Email        string
	EmailNorm    string

	FirstName  string
	SecondName string

	IsStaff     bool
	IsSuperuser bool
	IsActive    bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayString returns the record's display form.
func (u User) DisplayString() string { return u.Email }

// UserAuth pairs a user with its stored password hash for credential checks.
// The hash never leaves the identity package boundary.
type UserAuth struct {
	User         User
	PasswordHash string
}

// CreateUserInput describes a user registration request.
// Self-signup always passes zero-valued privilege flags; the bootstrap path
// may set them.
type CreateUserInput struct {
	Username   string
	Email      string
	FirstName  string
	SecondName string
	Password   string

	IsStaff     bool
	IsSuperuser bool

	Now time.Time
}

// UpdateUserInput mutates an existing user through the profile-edit path.
// Username and email are deliberately absent: they are immutable here.
// NewPassword rotates the stored hash when non-blank; blank keeps it.
type UpdateUserInput struct {
	ID string

	FirstName  string
	SecondName string

	IsStaff     bool
	IsSuperuser bool
	IsActive    bool

	NewPassword string

	Now time.Time
}

// Store is the identity persistence boundary (the Credential Store).
type Store interface {
	// CreateUser hashes the password and inserts the user atomically.
	// Duplicate username/email fails with ConflictError and no partial write.
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)

	// VerifyCredentials checks username+password. All failure causes (unknown
	// username, wrong password, inactive account) return ErrInvalidCredentials
	// and take comparable time.
	VerifyCredentials(ctx context.Context, username, password string) (User, error)

	// UpdateUser applies the profile-edit mutation and returns the result.
	UpdateUser(ctx context.Context, in UpdateUserInput) (User, error)

	// ListUsers returns all users ordered by username.
	ListUsers(ctx context.Context) ([]User, error)
}
