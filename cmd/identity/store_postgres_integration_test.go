package identity

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are opt-in and require PANEL_DATABASE_URL.
// In non-CI runs, unreachable Postgres skips these tests to keep local runs fast.

func TestPostgresStore_CreateUser_ConflictCaseInsensitive(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyUsersSchema(t, pool, schema)

	s := mustNewIdentityStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_, err := s.CreateUser(ctx, CreateUserInput{
		Username:  "Alice",
		Email:     "a@x.com",
		FirstName: "Alice",
		Password:  "Secret123!",
		Now:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create user 1: %v", err)
	}

	// Same username (case-insensitive) should conflict.
	_, err = s.CreateUser(ctx, CreateUserInput{
		Username:  "aLiCe",
		Email:     "b@x.com",
		FirstName: "Alice",
		Password:  "Secret123!",
		Now:       time.Now().UTC(),
	})
	if !IsConflict(err) {
		t.Fatalf("expected conflict error, got: %v", err)
	}
	if field, _ := ConflictField(err); field != "username" {
		t.Fatalf("expected username conflict, got field %q", field)
	}

	// Same email should conflict too.
	_, err = s.CreateUser(ctx, CreateUserInput{
		Username:  "bob",
		Email:     "A@X.COM",
		FirstName: "Bob",
		Password:  "Secret123!",
		Now:       time.Now().UTC(),
	})
	if !IsConflict(err) {
		t.Fatalf("expected conflict error, got: %v", err)
	}
	if field, _ := ConflictField(err); field != "email" {
		t.Fatalf("expected email conflict, got field %q", field)
	}
}

func TestPostgresStore_VerifyAndRotate(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyUsersSchema(t, pool, schema)

	s := mustNewIdentityStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	u, err := s.CreateUser(ctx, CreateUserInput{
		Username:  "alice",
		Email:     "a@x.com",
		FirstName: "Alice",
		Password:  "Secret123!",
		Now:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := s.VerifyCredentials(ctx, "alice", "Secret123!"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := s.VerifyCredentials(ctx, "alice", "wrong-password"); !IsInvalidCredentials(err) {
		t.Fatalf("expected invalid credentials, got: %v", err)
	}
	if _, err := s.VerifyCredentials(ctx, "nobody", "Secret123!"); !IsInvalidCredentials(err) {
		t.Fatalf("expected invalid credentials for unknown user, got: %v", err)
	}

	// Rotate password; old stops verifying, session of fields persists.
	if _, err := s.UpdateUser(ctx, UpdateUserInput{
		ID:          u.ID,
		FirstName:   "Alicia",
		IsActive:    true,
		NewPassword: "Rotated456!",
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	if _, err := s.VerifyCredentials(ctx, "alice", "Secret123!"); !IsInvalidCredentials(err) {
		t.Fatalf("expected old password rejected, got: %v", err)
	}
	got, err := s.VerifyCredentials(ctx, "alice", "Rotated456!")
	if err != nil {
		t.Fatalf("verify rotated: %v", err)
	}
	if got.FirstName != "Alicia" {
		t.Fatalf("expected updated first name, got %q", got.FirstName)
	}
}

// ---- helpers ----

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("PANEL_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: PANEL_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse PANEL_DATABASE_URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: Postgres unreachable (PANEL_DATABASE_URL set): %v", err)
		}
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	return pool
}

func shouldSkipIntegration(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func mustCreateTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	schema := fmt.Sprintf("panel_test_%d_%d", time.Now().UnixNano(), rand.Intn(1_000_000))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, "CREATE SCHEMA "+pgIdentOne(schema)); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return schema
}

func mustDropSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, "DROP SCHEMA "+pgIdentOne(schema)+" CASCADE"); err != nil {
		t.Logf("drop schema: %v", err)
	}
}

func mustApplyUsersSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ddl := `
		CREATE TABLE ` + pgIdent(schema, "users") + ` (
			id             TEXT PRIMARY KEY,
			username       TEXT NOT NULL,
			username_norm  TEXT NOT NULL,
			email          TEXT NOT NULL,
			email_norm     TEXT NOT NULL,
			first_name     TEXT NOT NULL,
			second_name    TEXT NOT NULL DEFAULT '',
			password_hash  TEXT NOT NULL,
			is_staff       BOOLEAN NOT NULL DEFAULT FALSE,
			is_superuser   BOOLEAN NOT NULL DEFAULT FALSE,
			is_active      BOOLEAN NOT NULL DEFAULT TRUE,
			created_at     TIMESTAMPTZ NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL,
			CONSTRAINT uq_users_username_norm UNIQUE (username_norm),
			CONSTRAINT uq_users_email_norm UNIQUE (email_norm)
		)`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		t.Fatalf("apply users schema: %v", err)
	}
}

func mustNewIdentityStore(t *testing.T, pool *pgxpool.Pool, schema string) *PostgresStore {
	t.Helper()

	s, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func pgIdentOne(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
