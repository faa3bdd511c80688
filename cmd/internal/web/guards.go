package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"panel/cmd/identity"
	"panel/cmd/internal/auth/session"
)

type ctxKey int

const (
	userKey ctxKey = iota
	sessionKey
)

// UserFrom returns the signed-in user stashed by withUser, if any.
func UserFrom(ctx context.Context) (identity.User, bool) {
	u, ok := ctx.Value(userKey).(identity.User)
	return u, ok
}

// SessionFrom returns the active session stashed by withUser, if any.
func SessionFrom(ctx context.Context) (session.Row, bool) {
	s, ok := ctx.Value(sessionKey).(session.Row)
	return s, ok
}

// withUser resolves the session cookie once per request and stashes the
// user and session row in the request context. Anonymous requests pass
// through untouched; inactive accounts stay anonymous.
func (h *Handler) withUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := time.Now().UTC()

		row, err := h.sessions.Current(ctx, r, now)
		if err != nil {
			if !errors.Is(err, session.ErrNotActive) {
				h.log.Error("web.session.resolve.fail", "err", err)
			}
			next.ServeHTTP(w, r)
			return
		}

		u, err := h.store.GetUserByID(ctx, row.UserID)
		if err != nil || !u.IsActive {
			if err != nil && !identity.IsNotFound(err) {
				h.log.Error("web.session.user.fail", "err", err)
			}
			next.ServeHTTP(w, r)
			return
		}

		ctx = context.WithValue(ctx, userKey, u)
		ctx = context.WithValue(ctx, sessionKey, row)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAnonymous keeps signed-in users out of signup/signin.
func (h *Handler) requireAnonymous(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFrom(r.Context()); ok {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth redirects anonymous requests to the signin page.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFrom(r.Context()); !ok {
			http.Redirect(w, r, "/auth/signin/", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireSuperuser implies requireAuth. An authenticated non-superuser
// gets 403 rather than a signin redirect: the two causes are distinct
// and bouncing an already signed-in user to the login form is a loop.
func (h *Handler) requireSuperuser(next http.Handler) http.Handler {
	return h.requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, _ := UserFrom(r.Context())
		if !u.IsSuperuser {
			h.renderForbidden(w, r)
			return
		}
		next.ServeHTTP(w, r)
	}))
}
