package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"panel/cmd/identity"
	"panel/cmd/internal/auth/session"
)

// Generic form-level error messages.
const (
	msgBadCredentials = "invalid username or password"
	msgThrottled      = "too many failed attempts, please try again later"
)

// Handler wires the HTML routes to the identity store, session service
// and auditor.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	store    identity.Store
	sessions *session.Service
	audit    Auditor
	renderer *Renderer
}

// NewHandler constructs the web Handler. audit may be nil to disable
// auditing and signin throttling (tests, bare dev mode).
func NewHandler(log *slog.Logger, cfg Config, store identity.Store, sessions *session.Service, audit Auditor) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if store == nil {
		return nil, errors.New("web: nil identity store")
	}
	if sessions == nil {
		return nil, errors.New("web: nil session service")
	}

	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}

	return &Handler{
		log:      log,
		cfg:      cfg,
		store:    store,
		sessions: sessions,
		audit:    audit,
		renderer: renderer,
	}, nil
}

// Register wires every route onto the mux. The table is explicit:
// adding a page means adding a row here, nothing registers itself.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}

	routes := []struct {
		pattern string
		handler http.Handler
	}{
		{"/{$}", h.page("home.html", "Home")},
		{"/modules/{$}", h.page("modules.html", "Modules")},
		{"/price/{$}", h.page("price.html", "Pricing")},
		{"/help/{$}", h.page("help.html", "Help")},

		{"/auth/signup/{$}", h.requireAnonymous(http.HandlerFunc(h.handleSignup))},
		{"/auth/signin/{$}", h.requireAnonymous(http.HandlerFunc(h.handleSignin))},
		{"/auth/logout/{$}", h.requireAuth(http.HandlerFunc(h.handleLogout))},

		{"/dashboard/{$}", h.requireAuth(http.HandlerFunc(h.handleDashboard))},
		{"/admin/{$}", h.requireSuperuser(http.HandlerFunc(h.handleAdmin))},
		{"/admin/edit/{$}", h.requireSuperuser(http.HandlerFunc(h.handleAdminEdit))},
	}

	for _, rt := range routes {
		mux.Handle(rt.pattern, h.withUser(rt.handler))
	}
}

// page serves a static template.
func (h *Handler) page(tmpl, title string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.render(w, r, http.StatusOK, tmpl, PageData{Title: title})
	})
}

// ---- auth ----

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.render(w, r, http.StatusOK, "signup.html", PageData{
			Title: "Sign up",
			Form:  SignupForm{},
		})

	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		form, errs := ParseSignupForm(r.PostForm)
		if errs != nil {
			h.render(w, r, http.StatusUnprocessableEntity, "signup.html", PageData{
				Title:  "Sign up",
				Form:   form,
				Errors: errs,
			})
			return
		}

		ctx := r.Context()
		now := time.Now().UTC()

		// Self-signup never grants privileges.
		u, err := h.store.CreateUser(ctx, identity.CreateUserInput{
			Username:   form.Username,
			Email:      form.Email,
			FirstName:  form.FirstName,
			SecondName: form.SecondName,
			Password:   form.Password1,
			Now:        now,
		})
		if err != nil {
			if field, ok := identity.ConflictField(err); ok {
				msg := "username already taken"
				if field == "email" {
					msg = "email already registered"
				}
				h.render(w, r, http.StatusUnprocessableEntity, "signup.html", PageData{
					Title:  "Sign up",
					Form:   form,
					Errors: map[string]string{field: msg},
				})
				return
			}
			if identity.IsInvalidInput(err) {
				h.render(w, r, http.StatusUnprocessableEntity, "signup.html", PageData{
					Title:  "Sign up",
					Form:   form,
					Errors: map[string]string{"form": err.Error()},
				})
				return
			}
			h.serverError(w, r, "web.signup.fail", err)
			return
		}

		h.insertAudit(ctx, now, AuditEvent{
			Action:    actionSignup,
			UserID:    &u.ID,
			IP:        h.clientIP(r),
			UserAgent: r.UserAgent(),
		})
		h.log.Info("auth.signup", "user_id", u.ID)

		http.Redirect(w, r, "/auth/signin/", http.StatusSeeOther)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleSignin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.render(w, r, http.StatusOK, "signin.html", PageData{
			Title: "Sign in",
			Form:  SigninForm{},
		})

	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		form, errs := ParseSigninForm(r.PostForm)
		if errs != nil {
			h.render(w, r, http.StatusUnprocessableEntity, "signin.html", PageData{
				Title:  "Sign in",
				Form:   form,
				Errors: errs,
			})
			return
		}

		ctx := r.Context()
		now := time.Now().UTC()
		ip := h.clientIP(r)
		ua := strings.TrimSpace(r.UserAgent())

		if h.signinThrottled(ctx, ip, now) {
			h.insertAudit(ctx, now, AuditEvent{
				Action:    actionSigninBlocked,
				IP:        ip,
				UserAgent: ua,
				Meta:      map[string]any{"username": identity.NormalizeUsername(form.Username)},
			})
			h.render(w, r, http.StatusTooManyRequests, "signin.html", PageData{
				Title:  "Sign in",
				Form:   SigninForm{Username: form.Username},
				Errors: map[string]string{"form": msgThrottled},
			})
			return
		}

		u, err := h.store.VerifyCredentials(ctx, form.Username, form.Password)
		if err != nil {
			if !identity.IsInvalidCredentials(err) {
				h.serverError(w, r, "web.signin.fail", err)
				return
			}
			h.insertAudit(ctx, now, AuditEvent{
				Action:    actionSigninFailed,
				IP:        ip,
				UserAgent: ua,
				Meta:      map[string]any{"username": identity.NormalizeUsername(form.Username)},
			})
			h.render(w, r, http.StatusUnprocessableEntity, "signin.html", PageData{
				Title:  "Sign in",
				Form:   SigninForm{Username: form.Username},
				Errors: map[string]string{"form": msgBadCredentials},
			})
			return
		}

		row, err := h.sessions.Login(ctx, w, now, u.ID, ua, ip)
		if err != nil {
			h.serverError(w, r, "web.signin.session.fail", err)
			return
		}

		h.insertAudit(ctx, now, AuditEvent{
			Action:    actionSigninSuccess,
			UserID:    &u.ID,
			SessionID: &row.ID,
			IP:        ip,
			UserAgent: ua,
		})
		h.log.Info("auth.signin", "user_id", u.ID)

		http.Redirect(w, r, "/dashboard/", http.StatusSeeOther)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	u, _ := UserFrom(ctx)
	var sessID *string
	if row, ok := SessionFrom(ctx); ok {
		sessID = &row.ID
	}

	if err := h.sessions.Logout(ctx, w, r, now); err != nil {
		h.serverError(w, r, "web.logout.fail", err)
		return
	}

	h.insertAudit(ctx, now, AuditEvent{
		Action:    actionSignout,
		UserID:    &u.ID,
		SessionID: sessID,
		IP:        h.clientIP(r),
		UserAgent: r.UserAgent(),
	})
	h.log.Info("auth.signout", "user_id", u.ID)

	http.Redirect(w, r, "/auth/signin/", http.StatusSeeOther)
}

// ---- authenticated pages ----

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	h.render(w, r, http.StatusOK, "dashboard.html", PageData{Title: "Dashboard"})
}

func (h *Handler) handleAdmin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.serverError(w, r, "web.admin.list.fail", err)
		return
	}

	h.render(w, r, http.StatusOK, "admin.html", PageData{
		Title: "Administration",
		Users: users,
	})
}

func (h *Handler) handleAdminEdit(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFrom(r.Context())

	switch r.Method {
	case http.MethodGet:
		h.render(w, r, http.StatusOK, "edit.html", PageData{
			Title: "Edit profile",
			Form: ProfileForm{
				FirstName:   u.FirstName,
				SecondName:  u.SecondName,
				IsStaff:     u.IsStaff,
				IsSuperuser: u.IsSuperuser,
				IsActive:    u.IsActive,
			},
		})

	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		form, errs := ParseProfileForm(r.PostForm)
		if errs != nil {
			h.render(w, r, http.StatusUnprocessableEntity, "edit.html", PageData{
				Title:  "Edit profile",
				Form:   form,
				Errors: errs,
			})
			return
		}

		ctx := r.Context()
		now := time.Now().UTC()

		updated, err := h.store.UpdateUser(ctx, identity.UpdateUserInput{
			ID:          u.ID,
			FirstName:   form.FirstName,
			SecondName:  form.SecondName,
			IsStaff:     form.IsStaff,
			IsSuperuser: form.IsSuperuser,
			IsActive:    form.IsActive,
			NewPassword: form.Password1,
			Now:         now,
		})
		if err != nil {
			if identity.IsInvalidInput(err) {
				h.render(w, r, http.StatusUnprocessableEntity, "edit.html", PageData{
					Title:  "Edit profile",
					Form:   form,
					Errors: map[string]string{"form": err.Error()},
				})
				return
			}
			h.serverError(w, r, "web.profile.update.fail", err)
			return
		}

		rotated := form.Password1 != ""
		if rotated {
			// Keep this session alive, sign out every other device.
			if _, err := h.sessions.RefreshAuth(ctx, w, r, now); err != nil {
				h.serverError(w, r, "web.profile.refresh.fail", err)
				return
			}
		}

		var sessID *string
		if row, ok := SessionFrom(ctx); ok {
			sessID = &row.ID
		}
		h.insertAudit(ctx, now, AuditEvent{
			Action:    actionProfileUpdate,
			UserID:    &updated.ID,
			SessionID: sessID,
			IP:        h.clientIP(r),
			UserAgent: r.UserAgent(),
			Meta:      map[string]any{"password_rotated": rotated},
		})
		h.log.Info("user.profile.update", "user_id", updated.ID, "password_rotated", rotated)

		http.Redirect(w, r, "/dashboard/", http.StatusSeeOther)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// ---- helpers ----

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page string, data PageData) {
	if data.User == nil {
		if u, ok := UserFrom(r.Context()); ok {
			data.User = &u
		}
	}
	if err := h.renderer.Render(w, status, page, data); err != nil {
		h.log.Error("web.render.fail", "page", page, "err", err)
	}
}

func (h *Handler) renderForbidden(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusForbidden, "forbidden.html", PageData{Title: "Forbidden"})
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, event string, err error) {
	h.log.Error(event, "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (h *Handler) insertAudit(ctx context.Context, now time.Time, e AuditEvent) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Insert(ctx, now, e); err != nil {
		h.log.Error("web.audit.insert.fail", "action", e.Action, "err", err)
	}
}

// signinThrottled reports whether an IP has burned through its failure
// budget. Auditor errors fail open: a broken audit store must not lock
// everyone out.
func (h *Handler) signinThrottled(ctx context.Context, ip net.IP, now time.Time) bool {
	if h.audit == nil || h.cfg.SigninMaxFailures <= 0 || ip == nil {
		return false
	}

	since := now.Add(-h.cfg.SigninFailureWindow)
	n, err := h.audit.CountSigninFailures(ctx, ip, since)
	if err != nil {
		h.log.Error("web.signin.throttle.fail", "err", err)
		return false
	}
	return n >= h.cfg.SigninMaxFailures
}

// clientIP extracts the peer address, honoring proxy headers only when
// configured to trust them.
func (h *Handler) clientIP(r *http.Request) net.IP {
	if h.cfg.TrustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
