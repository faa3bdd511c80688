package session

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"panel/cmd/identity"
	"panel/cmd/security/token"
)

// Service implements the high-level session operations: login, current-user
// resolution, logout, and post-password-change rotation.
type Service struct {
	cfg   Config
	store Store
}

// NewService constructs a Service with the provided configuration and store.
func NewService(cfg Config, store Store) *Service {
	return &Service{cfg: cfg, store: store}
}

// Login creates a session for an authenticated user and sets the cookie.
// The plain token exists only in the Set-Cookie header; the store keeps a
// digest.
func (s *Service) Login(ctx context.Context, w http.ResponseWriter, now time.Time, userID string, userAgent string, ip net.IP) (Row, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	plain, err := token.NewOpaque(s.cfg.TokenBytes)
	if err != nil {
		return Row{}, err
	}

	id, err := identity.NewULID(now)
	if err != nil {
		return Row{}, err
	}

	row := Row{
		ID:        id,
		UserID:    userID,
		TokenHash: token.HashSessionTokenHex(plain),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}
	if ua := strings.TrimSpace(userAgent); ua != "" {
		row.UserAgent = &ua
	}
	if ip != nil {
		row.IP = &ip
	}

	if err := s.store.Create(ctx, row); err != nil {
		return Row{}, err
	}

	s.setCookie(w, plain, row.ExpiresAt)
	return row, nil
}

// Current resolves the request cookie to an active session.
// All misses (no cookie, unknown token, expired, revoked) return ErrNotActive.
func (s *Service) Current(ctx context.Context, r *http.Request, now time.Time) (Row, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	plain, ok := s.cookieToken(r)
	if !ok {
		return Row{}, ErrNotActive
	}

	row, err := s.store.GetByTokenHash(ctx, token.HashSessionTokenHex(plain))
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return Row{}, ErrNotActive
		}
		return Row{}, err
	}
	if !row.Active(now) {
		return Row{}, ErrNotActive
	}

	// Best effort; a failed touch must not fail the request.
	_ = s.store.Touch(ctx, row.ID, now)

	return row, nil
}

// Logout revokes the current session (if any) and expires the cookie.
// It is idempotent: an anonymous request only gets its cookie cleared.
func (s *Service) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request, now time.Time) error {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	defer s.clearCookie(w)

	row, err := s.Current(ctx, r, now)
	if err != nil {
		if errors.Is(err, ErrNotActive) {
			return nil
		}
		return err
	}

	return s.store.Revoke(ctx, row.ID, now)
}

// RefreshAuth rotates the current session token after a password or identity
// change and revokes the user's other sessions. The in-flight session keeps
// its row (and expiry) but gets a fresh token, so the actor stays signed in
// while every other device is signed out.
func (s *Service) RefreshAuth(ctx context.Context, w http.ResponseWriter, r *http.Request, now time.Time) (Row, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	row, err := s.Current(ctx, r, now)
	if err != nil {
		return Row{}, err
	}

	plain, err := token.NewOpaque(s.cfg.TokenBytes)
	if err != nil {
		return Row{}, err
	}
	newHash := token.HashSessionTokenHex(plain)

	if err := s.store.ReplaceTokenHash(ctx, row.ID, newHash, now); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return Row{}, ErrNotActive
		}
		return Row{}, err
	}
	if err := s.store.RevokeAllExcept(ctx, row.UserID, row.ID, now); err != nil {
		return Row{}, err
	}

	row.TokenHash = newHash
	s.setCookie(w, plain, row.ExpiresAt)
	return row, nil
}

// ---- cookie plumbing ----

func (s *Service) cookieToken(r *http.Request) (string, bool) {
	c, err := r.Cookie(s.cfg.CookieName)
	if err != nil {
		return "", false
	}
	v := strings.TrimSpace(c.Value)
	if v == "" {
		return "", false
	}
	return v, true
}

func (s *Service) setCookie(w http.ResponseWriter, value string, exp time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    value,
		Path:     s.cfg.CookiePath,
		Domain:   s.cfg.CookieDomain,
		Expires:  exp,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: s.cfg.CookieSameSite,
	})
}

func (s *Service) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Path:     s.cfg.CookiePath,
		Domain:   s.cfg.CookieDomain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: s.cfg.CookieSameSite,
	})
}
