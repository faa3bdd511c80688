package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements identity persistence over PostgreSQL.
//
// Design notes:
//   - The pgx pool is owned by the caller; this store must NOT close it.
//   - Schema/table identifiers are safely quoted to avoid SQL injection via
//     identifiers.
//   - Username/email uniqueness is enforced by unique indexes on the
//     normalized columns, so concurrent signups cannot race past a
//     read-then-write check.
//   - Errors are mapped to identity sentinel kinds where appropriate.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the identity store (default "panel").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore with secure defaults.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "panel",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

const userColumns = `id, username, username_norm, email, email_norm,
		        first_name, second_name, is_staff, is_superuser, is_active,
		        created_at, updated_at`

// CreateUser creates a new user with a hashed password.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if s == nil || s.pool == nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
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

	users := pgIdent(s.schema, "users")

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+users+` (
		     id, username, username_norm, email, email_norm,
		     first_name, second_name, password_hash,
		     is_staff, is_superuser, is_active,
		     created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE, $11, $11)`,
		userID,
		in.Username,
		NormalizeUsername(in.Username),
		in.Email,
		NormalizeEmail(in.Email),
		in.FirstName,
		in.SecondName,
		pwHash,
		in.IsStaff,
		in.IsSuperuser,
		in.Now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}

	return User{
		ID:           userID,
		Username:     in.Username,
		UsernameNorm: NormalizeUsername(in.Username),
		Email:        in.Email,
		EmailNorm:    NormalizeEmail(in.Email),
		FirstName:    in.FirstName,
		SecondName:   in.SecondName,
		IsStaff:      in.IsStaff,
		IsSuperuser:  in.IsSuperuser,
		IsActive:     true,
		CreatedAt:    in.Now,
		UpdatedAt:    in.Now,
	}, nil
}

// GetUserByID loads a user row by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	if strings.TrimSpace(id) == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing id"}
	}

	users := pgIdent(s.schema, "users")
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+users+` WHERE id = $1`, id)

	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return u, err
}

// GetUserByUsername loads a user row by normalized username.
func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	const op = "identity.GetUserByUsername"

	norm := NormalizeUsername(username)
	if norm == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing username"}
	}

	users := pgIdent(s.schema, "users")
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+users+` WHERE username_norm = $1`, norm)

	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return u, err
}

// VerifyCredentials authenticates username+password.
// Unknown username burns a dummy verification so the caller cannot tell the
// failure causes apart by timing; all causes map to ErrInvalidCredentials.
func (s *PostgresStore) VerifyCredentials(ctx context.Context, username, password string) (User, error) {
	const op = "identity.VerifyCredentials"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	norm := NormalizeUsername(username)
	if norm == "" || strings.TrimSpace(password) == "" {
		verifyAgainstDummy(password)
		return User{}, invalidCredentials(op)
	}

	users := pgIdent(s.schema, "users")
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+`, password_hash FROM `+users+` WHERE username_norm = $1`, norm)

	auth, err := scanUserAuth(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			verifyAgainstDummy(password)
			return User{}, invalidCredentials(op)
		}
		return User{}, err
	}

	ok, err := VerifyPassword(password, auth.PasswordHash)
	if err != nil || !ok {
		return User{}, invalidCredentials(op)
	}
	if !auth.User.IsActive {
		return User{}, invalidCredentials(op)
	}

	return auth.User, nil
}

// UpdateUser applies a profile-edit mutation. Username/email are immutable
// through this path; a non-blank NewPassword rotates the stored hash.
func (s *PostgresStore) UpdateUser(ctx context.Context, in UpdateUserInput) (User, error) {
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

	var pwHash *string
	if strings.TrimSpace(in.NewPassword) != "" {
		h, err := HashPassword(in.NewPassword)
		if err != nil {
			return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: err.Error()}
		}
		pwHash = &h
	}

	users := pgIdent(s.schema, "users")
	row := s.pool.QueryRow(ctx,
		`UPDATE `+users+`
		    SET first_name = $1,
		        second_name = $2,
		        is_staff = $3,
		        is_superuser = $4,
		        is_active = $5,
		        password_hash = COALESCE($6, password_hash),
		        updated_at = $7
		  WHERE id = $8
		  RETURNING `+userColumns,
		in.FirstName,
		in.SecondName,
		in.IsStaff,
		in.IsSuperuser,
		in.IsActive,
		pwHash,
		now,
		in.ID,
	)

	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return u, err
}

// ListUsers returns all users ordered by username, for the admin listing.
func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	users := pgIdent(s.schema, "users")

	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+` FROM `+users+` ORDER BY username_norm`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ---- helpers ----

type pgRow interface {
	Scan(dest ...any) error
}

func scanUser(row pgRow) (User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.UsernameNorm,
		&u.Email,
		&u.EmailNorm,
		&u.FirstName,
		&u.SecondName,
		&u.IsStaff,
		&u.IsSuperuser,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

func scanUserAuth(row pgRow) (UserAuth, error) {
	var a UserAuth
	err := row.Scan(
		&a.User.ID,
		&a.User.Username,
		&a.User.UsernameNorm,
		&a.User.Email,
		&a.User.EmailNorm,
		&a.User.FirstName,
		&a.User.SecondName,
		&a.User.IsStaff,
		&a.User.IsSuperuser,
		&a.User.IsActive,
		&a.User.CreatedAt,
		&a.User.UpdatedAt,
		&a.PasswordHash,
	)
	return a, err
}

// prepareCreate trims, validates and defaults a CreateUserInput.
func prepareCreate(op string, in CreateUserInput) (CreateUserInput, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.SecondName = strings.TrimSpace(in.SecondName)

	switch {
	case in.Username == "":
		return in, OpError{Op: op, Kind: ErrInvalidInput, Msg: "username is required"}
	case utf8.RuneCountInString(in.Username) > MaxNameLen:
		return in, OpError{Op: op, Kind: ErrInvalidInput, Msg: "username too long"}
	case !ValidEmail(in.Email):
		return in, OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid email address"}
	case in.FirstName == "":
		return in, OpError{Op: op, Kind: ErrInvalidInput, Msg: "first name is required"}
	case strings.TrimSpace(in.Password) == "":
		return in, OpError{Op: op, Kind: ErrInvalidInput, Msg: "password is required"}
	}
	if err := validateNames(op, in.FirstName, in.SecondName); err != nil {
		return in, err
	}

	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	return in, nil
}

func validateNames(op, first, second string) error {
	if utf8.RuneCountInString(first) > MaxNameLen {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "first name too long"}
	}
	if utf8.RuneCountInString(second) > MaxNameLen {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "second name too long"}
	}
	return nil
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable schema constraint names; fall back to substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))

	switch c {
	case "uq_users_username_norm":
		return "username", true
	case "uq_users_email_norm":
		return "email", true
	default:
		switch {
		case strings.Contains(c, "username"):
			return "username", true
		case strings.Contains(c, "email"):
			return "email", true
		default:
			return "unique", true
		}
	}
}
