// Package app wires the panel server runtime: config, logging, storage,
// migrations, HTTP routes and graceful shutdown.
//
// It is intentionally small and deterministic to keep behavior predictable.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"panel/cmd/identity"
	"panel/cmd/internal/auth/session"
	"panel/cmd/internal/web"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

type dbStore struct {
	pool *pgxpool.Pool
}

func (s dbStore) Close(_ context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// App is the panel server runtime.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	identity identity.Store
	sessions *session.Service
	metrics  *Metrics
	web      *web.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogPretty)
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	st, dbPool, dbEnabled, idStore, auditor, err := newStore(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		_ = st.Close(context.Background())
		return nil, err
	}

	var sessStore session.Store
	if dbEnabled {
		ps, err := session.NewPostgresStore(dbPool, cfg.DBSchema)
		if err != nil {
			_ = st.Close(context.Background())
			return nil, err
		}
		sessStore = ps
	} else {
		sessStore = session.NewMemoryStore()
	}
	sessions := session.NewService(sessCfg, sessStore)

	webCfg, err := web.LoadConfigFromEnv()
	if err != nil {
		_ = st.Close(context.Background())
		return nil, err
	}

	webHandler, err := web.NewHandler(log, webCfg, idStore, sessions, auditor)
	if err != nil {
		_ = st.Close(context.Background())
		return nil, err
	}

	a := &App{
		cfg:       cfg,
		log:       log,
		store:     st,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		identity:  idStore,
		sessions:  sessions,
		metrics:   NewMetrics(),
		web:       webHandler,
	}

	if err := a.bootstrapSuperuser(context.Background()); err != nil {
		_ = st.Close(context.Background())
		return nil, err
	}

	return a, nil
}

// Run starts the HTTP server and blocks until context cancellation or
// fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()

	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.metrics, a.web)

	handler := a.metrics.WithMetrics(mux)
	handler = WithRequestLogging(handler, a.log)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newStore decides between Postgres-backed persistence and the
// in-memory dev store.
func newStore(ctx context.Context, cfg Config, log Logger) (Store, *pgxpool.Pool, bool, identity.Store, web.Auditor, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		return nopStore{}, nil, false, identity.NewMemoryStore(), web.NewMemoryAuditor(), nil
	}

	// The embedded migrations create the migrationsSchema schema only.
	// Pointing the stores at another schema while still running them
	// would boot an app whose every query hits nonexistent tables.
	if !cfg.SkipMigrations && cfg.DBSchema != migrationsSchema {
		return nil, nil, false, nil, nil, fmt.Errorf(
			"db: PANEL_DB_SCHEMA=%q but the embedded migrations manage schema %q; set PANEL_DB_SKIP_MIGRATIONS=true to manage the schema externally",
			cfg.DBSchema, migrationsSchema)
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, false, nil, nil, err
	}

	if !cfg.SkipMigrations {
		if err := RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, false, nil, nil, err
		}
		log.Info("db.migrations.applied")
	}

	idStore, err := identity.NewPostgresStore(pool, identity.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, nil, false, nil, nil, err
	}

	auditor, err := web.NewPostgresAuditor(pool, cfg.DBSchema)
	if err != nil {
		pool.Close()
		return nil, nil, false, nil, nil, err
	}

	log.Info("db.enabled.postgres_store")
	return dbStore{pool: pool}, pool, true, idStore, auditor, nil
}

// bootstrapSuperuser creates the configured superuser account once.
// An existing username makes this a no-op so restarts stay idempotent.
func (a *App) bootstrapSuperuser(ctx context.Context) error {
	cfg := a.cfg
	if cfg.BootstrapUsername == "" {
		return nil
	}
	if cfg.BootstrapEmail == "" || cfg.BootstrapPassword == "" {
		return errors.New("bootstrap: PANEL_BOOTSTRAP_USERNAME set but email or password missing")
	}

	if _, err := a.identity.GetUserByUsername(ctx, cfg.BootstrapUsername); err == nil {
		return nil
	} else if !identity.IsNotFound(err) {
		return err
	}

	u, err := a.identity.CreateUser(ctx, identity.CreateUserInput{
		Username:    cfg.BootstrapUsername,
		Email:       cfg.BootstrapEmail,
		FirstName:   cfg.BootstrapUsername,
		Password:    cfg.BootstrapPassword,
		IsStaff:     true,
		IsSuperuser: true,
		Now:         time.Now().UTC(),
	})
	if err != nil {
		// A concurrent instance may have won the race.
		if identity.IsConflict(err) {
			return nil
		}
		return err
	}

	a.log.Info("bootstrap.superuser.created", "user_id", u.ID, "username", u.Username)
	return nil
}
