package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Audit actions recorded by the web handlers.
const (
	actionSignup        = "auth.signup"
	actionSigninSuccess = "auth.signin.success"
	actionSigninFailed  = "auth.signin.failed"
	actionSigninBlocked = "auth.signin.rate_limited"
	actionSignout       = "auth.signout"
	actionProfileUpdate = "user.profile.update"
)

// AuditEvent is one append-only audit row.
type AuditEvent struct {
	Action    string
	UserID    *string
	SessionID *string
	IP        net.IP
	UserAgent string
	Meta      map[string]any
}

// Auditor records security-relevant events and answers the signin
// throttle's question: how many failures came from this IP recently.
type Auditor interface {
	// Insert appends an event. Implementations must be best-effort safe:
	// an audit failure never fails the request that produced it.
	Insert(ctx context.Context, now time.Time, e AuditEvent) error

	// CountSigninFailures counts auth.signin.failed events from ip since
	// the given instant.
	CountSigninFailures(ctx context.Context, ip net.IP, since time.Time) (int, error)
}

// PostgresAuditor writes audit rows to the audit_log table.
type PostgresAuditor struct {
	pool   *pgxpool.Pool
	schema string
}

// NewPostgresAuditor creates a Postgres-backed auditor (default schema "panel").
func NewPostgresAuditor(pool *pgxpool.Pool, schema string) (*PostgresAuditor, error) {
	if pool == nil {
		return nil, fmt.Errorf("web: nil pool")
	}
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = "panel"
	}
	return &PostgresAuditor{pool: pool, schema: schema}, nil
}

func (a *PostgresAuditor) table() string {
	return pgx.Identifier{a.schema, "audit_log"}.Sanitize()
}

// Insert appends one audit row.
func (a *PostgresAuditor) Insert(ctx context.Context, now time.Time, e AuditEvent) error {
	action := strings.TrimSpace(e.Action)
	if action == "" {
		return nil
	}

	var ipVal any
	if e.IP != nil {
		ipVal = e.IP.String()
	}

	var metaVal *string
	if len(e.Meta) > 0 {
		if b, err := json.Marshal(e.Meta); err == nil {
			s := string(b)
			metaVal = &s
		}
	}

	_, err := a.pool.Exec(ctx,
		`INSERT INTO `+a.table()+` (
		     action, user_id, session_id, created_at, ip, user_agent, meta
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)`,
		action, e.UserID, e.SessionID, now, ipVal, trimOrNil(e.UserAgent), metaVal,
	)
	return err
}

// CountSigninFailures counts recent signin failures from an IP.
func (a *PostgresAuditor) CountSigninFailures(ctx context.Context, ip net.IP, since time.Time) (int, error) {
	if ip == nil {
		return 0, nil
	}

	var n int
	err := a.pool.QueryRow(ctx,
		`SELECT COUNT(*)
		   FROM `+a.table()+`
		  WHERE action = $1
		    AND ip = $2
		    AND created_at >= $3`,
		actionSigninFailed, ip.String(), since,
	).Scan(&n)
	return n, err
}

// MemoryAuditor is an in-memory Auditor for dev mode and tests.
type MemoryAuditor struct {
	mu     sync.Mutex
	events []memAuditRow
}

type memAuditRow struct {
	at time.Time
	e  AuditEvent
}

// NewMemoryAuditor creates an empty MemoryAuditor.
func NewMemoryAuditor() *MemoryAuditor {
	return &MemoryAuditor{}
}

// Insert appends an event.
func (a *MemoryAuditor) Insert(ctx context.Context, now time.Time, e AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, memAuditRow{at: now, e: e})
	return nil
}

// CountSigninFailures counts recent signin failures from an IP.
func (a *MemoryAuditor) CountSigninFailures(ctx context.Context, ip net.IP, since time.Time) (int, error) {
	if ip == nil {
		return 0, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for _, row := range a.events {
		if row.e.Action != actionSigninFailed || row.at.Before(since) {
			continue
		}
		if row.e.IP != nil && row.e.IP.Equal(ip) {
			n++
		}
	}
	return n, nil
}

// Actions returns the recorded action names in insertion order.
func (a *MemoryAuditor) Actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]string, 0, len(a.events))
	for _, row := range a.events {
		out = append(out, row.e.Action)
	}
	return out
}

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
