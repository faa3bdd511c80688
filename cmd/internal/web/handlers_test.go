package web

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"panel/cmd/identity"
	"panel/cmd/internal/auth/session"
)

type testEnv struct {
	mux   *http.ServeMux
	store *identity.MemoryStore
	audit *MemoryAuditor
}

func newTestEnv(t *testing.T, mut func(*Config)) *testEnv {
	t.Helper()

	// Small argon2 params keep test hashing fast.
	t.Setenv("PANEL_ARGON2_MEMORY_KIB", "8192")
	t.Setenv("PANEL_ARGON2_ITERATIONS", "1")

	cfg := DefaultConfig()
	if mut != nil {
		mut(&cfg)
	}

	store := identity.NewMemoryStore()
	sessCfg := session.DefaultConfig()
	sessions := session.NewService(sessCfg, session.NewMemoryStore())
	audit := NewMemoryAuditor()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h, err := NewHandler(log, cfg, store, sessions, audit)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	mux := http.NewServeMux()
	h.Register(mux)

	return &testEnv{mux: mux, store: store, audit: audit}
}

func (e *testEnv) do(method, target string, form url.Values, cookies []*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rr := httptest.NewRecorder()
	e.mux.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) mustCreateUser(t *testing.T, username string, superuser bool) identity.User {
	t.Helper()

	u, err := e.store.CreateUser(context.Background(), identity.CreateUserInput{
		Username:    username,
		Email:       username + "@example.com",
		FirstName:   "Test",
		Password:    "Secret123!",
		IsSuperuser: superuser,
		Now:         time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return u
}

func (e *testEnv) signin(t *testing.T, username, password string) []*http.Cookie {
	t.Helper()

	rr := e.do(http.MethodPost, "/auth/signin/", url.Values{
		"username": {username},
		"password": {password},
	}, nil)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("signin: expected 303, got %d: %s", rr.Code, rr.Body.String())
	}

	var cookies []*http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Value != "" {
			cookies = append(cookies, c)
		}
	}
	if len(cookies) == 0 {
		t.Fatalf("signin: no session cookie set")
	}
	return cookies
}

func TestStaticPages(t *testing.T) {
	env := newTestEnv(t, nil)

	for path, title := range map[string]string{
		"/":         "Home",
		"/modules/": "Modules",
		"/price/":   "Pricing",
		"/help/":    "Help",
	} {
		rr := env.do(http.MethodGet, path, nil, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rr.Code)
		}
		if !strings.Contains(rr.Body.String(), title) {
			t.Fatalf("%s: body missing title %q", path, title)
		}
	}
}

func TestSignup_CreatesUserAndRedirects(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(http.MethodGet, "/auth/signup/", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET signup: expected 200, got %d", rr.Code)
	}

	rr = env.do(http.MethodPost, "/auth/signup/", signupValues(), nil)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("POST signup: expected 303, got %d: %s", rr.Code, rr.Body.String())
	}
	if loc := rr.Header().Get("Location"); loc != "/auth/signin/" {
		t.Fatalf("expected redirect to signin, got %q", loc)
	}

	u, err := env.store.GetUserByUsername(context.Background(), "mary")
	if err != nil {
		t.Fatalf("user not created: %v", err)
	}
	if u.IsStaff || u.IsSuperuser {
		t.Fatalf("self-signup must not grant privileges: %+v", u)
	}
	if !u.IsActive {
		t.Fatalf("new users must be active")
	}
}

func TestSignup_FieldErrorsRerender(t *testing.T) {
	env := newTestEnv(t, nil)

	v := signupValues()
	v.Set("password2", "Mismatch123!")
	rr := env.do(http.MethodPost, "/auth/signup/", v, nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), msgPasswordPair) {
		t.Fatalf("body missing mismatch message")
	}
	// Submitted values are echoed back.
	if !strings.Contains(rr.Body.String(), "mary@example.com") {
		t.Fatalf("body must echo submitted email")
	}
}

func TestSignup_DuplicateUsernameIsFieldError(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mustCreateUser(t, "mary", false)

	rr := env.do(http.MethodPost, "/auth/signup/", signupValues(), nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "username already taken") {
		t.Fatalf("body missing duplicate-username message: %s", rr.Body.String())
	}
}

func TestSignin_SuccessSetsSessionCookie(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mustCreateUser(t, "mary", false)

	cookies := env.signin(t, "mary", "Secret123!")

	rr := env.do(http.MethodGet, "/dashboard/", nil, cookies)
	if rr.Code != http.StatusOK {
		t.Fatalf("dashboard with session: expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "mary@example.com") {
		t.Fatalf("dashboard must show the signed-in user")
	}
}

func TestSignin_FailureIsGenericAndAudited(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mustCreateUser(t, "mary", false)

	for _, creds := range []url.Values{
		{"username": {"mary"}, "password": {"WrongPass1!"}},
		{"username": {"nobody"}, "password": {"WrongPass1!"}},
	} {
		rr := env.do(http.MethodPost, "/auth/signin/", creds, nil)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rr.Code)
		}
		// Unknown user and wrong password produce the same message.
		if !strings.Contains(rr.Body.String(), msgBadCredentials) {
			t.Fatalf("body missing generic credentials message")
		}
	}

	failures := 0
	for _, a := range env.audit.Actions() {
		if a == actionSigninFailed {
			failures++
		}
	}
	if failures != 2 {
		t.Fatalf("expected 2 failure audit rows, got %d", failures)
	}
}

func TestSignin_ThrottleBlocksAfterBudget(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.SigninMaxFailures = 2
	})
	env.mustCreateUser(t, "mary", false)

	bad := url.Values{"username": {"mary"}, "password": {"WrongPass1!"}}
	for i := 0; i < 2; i++ {
		if rr := env.do(http.MethodPost, "/auth/signin/", bad, nil); rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("attempt %d: expected 422, got %d", i, rr.Code)
		}
	}

	// Budget burned: even correct credentials are blocked now.
	rr := env.do(http.MethodPost, "/auth/signin/", url.Values{
		"username": {"mary"}, "password": {"Secret123!"},
	}, nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), msgThrottled) {
		t.Fatalf("body missing throttle message")
	}
}

func TestGuards_AnonymousRedirectedToSignin(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/dashboard/", "/admin/", "/admin/edit/"} {
		rr := env.do(http.MethodGet, path, nil, nil)
		if rr.Code != http.StatusSeeOther {
			t.Fatalf("%s: expected 303, got %d", path, rr.Code)
		}
		if loc := rr.Header().Get("Location"); loc != "/auth/signin/" {
			t.Fatalf("%s: expected signin redirect, got %q", path, loc)
		}
	}
}

func TestGuards_SignedInKeptOutOfAuthPages(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mustCreateUser(t, "mary", false)
	cookies := env.signin(t, "mary", "Secret123!")

	for _, path := range []string{"/auth/signup/", "/auth/signin/"} {
		rr := env.do(http.MethodGet, path, nil, cookies)
		if rr.Code != http.StatusSeeOther {
			t.Fatalf("%s: expected 303, got %d", path, rr.Code)
		}
		if loc := rr.Header().Get("Location"); loc != "/" {
			t.Fatalf("%s: expected home redirect, got %q", path, loc)
		}
	}
}

func TestGuards_NonSuperuserGets403(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mustCreateUser(t, "mary", false)
	cookies := env.signin(t, "mary", "Secret123!")

	for _, path := range []string{"/admin/", "/admin/edit/"} {
		rr := env.do(http.MethodGet, path, nil, cookies)
		if rr.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403, got %d", path, rr.Code)
		}
	}
}

func TestAdmin_ListsUsersInUsernameOrder(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mustCreateUser(t, "zoe", false)
	env.mustCreateUser(t, "root", true)
	env.mustCreateUser(t, "alice", false)
	cookies := env.signin(t, "root", "Secret123!")

	rr := env.do(http.MethodGet, "/admin/", nil, cookies)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	// The nav also shows the signed-in username, so only search the
	// listing table.
	body := rr.Body.String()
	start := strings.Index(body, "<table")
	if start < 0 {
		t.Fatalf("listing table missing")
	}
	table := body[start:]

	ia := strings.Index(table, "alice")
	ir := strings.Index(table, "root")
	iz := strings.Index(table, "zoe")
	if ia < 0 || ir < 0 || iz < 0 {
		t.Fatalf("listing missing users")
	}
	if !(ia < ir && ir < iz) {
		t.Fatalf("listing not in username order: alice=%d root=%d zoe=%d", ia, ir, iz)
	}
}

func TestLogout_RevokesSessionAndRedirects(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mustCreateUser(t, "mary", false)
	cookies := env.signin(t, "mary", "Secret123!")

	rr := env.do(http.MethodPost, "/auth/logout/", url.Values{}, cookies)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("logout: expected 303, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "/auth/signin/" {
		t.Fatalf("expected signin redirect, got %q", loc)
	}

	// Old cookie no longer authenticates.
	rr = env.do(http.MethodGet, "/dashboard/", nil, cookies)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("dashboard after logout: expected 303, got %d", rr.Code)
	}
}

func TestLogout_GetIsNotAllowed(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mustCreateUser(t, "mary", false)
	cookies := env.signin(t, "mary", "Secret123!")

	rr := env.do(http.MethodGet, "/auth/logout/", nil, cookies)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestAdminEdit_UpdatesProfile(t *testing.T) {
	env := newTestEnv(t, nil)
	u := env.mustCreateUser(t, "root", true)
	cookies := env.signin(t, "root", "Secret123!")

	rr := env.do(http.MethodGet, "/admin/edit/", nil, cookies)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET edit: expected 200, got %d", rr.Code)
	}
	// Username/email render read-only.
	if !strings.Contains(rr.Body.String(), "readonly") {
		t.Fatalf("edit form must render read-only identity fields")
	}

	rr = env.do(http.MethodPost, "/admin/edit/", url.Values{
		"first_name":   {"Rootara"},
		"second_name":  {"Admin"},
		"is_staff":     {"on"},
		"is_superuser": {"on"},
		"is_active":    {"on"},
	}, cookies)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("POST edit: expected 303, got %d: %s", rr.Code, rr.Body.String())
	}
	if loc := rr.Header().Get("Location"); loc != "/dashboard/" {
		t.Fatalf("expected dashboard redirect, got %q", loc)
	}

	got, err := env.store.GetUserByID(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if got.FirstName != "Rootara" || got.SecondName != "Admin" {
		t.Fatalf("names not updated: %+v", got)
	}

	// Blank password kept the old one working.
	if _, err := env.store.VerifyCredentials(context.Background(), "root", "Secret123!"); err != nil {
		t.Fatalf("old password must still verify: %v", err)
	}
}

func TestAdminEdit_PasswordRotationKeepsCurrentSession(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mustCreateUser(t, "root", true)

	cookiesA := env.signin(t, "root", "Secret123!")
	cookiesB := env.signin(t, "root", "Secret123!")

	rr := env.do(http.MethodPost, "/admin/edit/", url.Values{
		"first_name": {"Root"},
		"is_active":  {"on"},
		"password1":  {"NewSecret456!"},
		"password2":  {"NewSecret456!"},
	}, cookiesA)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("POST edit: expected 303, got %d: %s", rr.Code, rr.Body.String())
	}

	// The rotated cookie from the response keeps this device signed in.
	var rotated []*http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Value != "" {
			rotated = append(rotated, c)
		}
	}
	if len(rotated) == 0 {
		t.Fatalf("expected rotated session cookie on response")
	}
	if got := env.do(http.MethodGet, "/dashboard/", nil, rotated); got.Code != http.StatusOK {
		t.Fatalf("rotated session: expected 200, got %d", got.Code)
	}

	// The other device was signed out.
	if got := env.do(http.MethodGet, "/dashboard/", nil, cookiesB); got.Code != http.StatusSeeOther {
		t.Fatalf("other session: expected 303, got %d", got.Code)
	}

	// Only the new password verifies now.
	if _, err := env.store.VerifyCredentials(context.Background(), "root", "NewSecret456!"); err != nil {
		t.Fatalf("new password must verify: %v", err)
	}
	if _, err := env.store.VerifyCredentials(context.Background(), "root", "Secret123!"); err == nil {
		t.Fatalf("old password must no longer verify")
	}
}

func TestAdminEdit_DeactivatingSelfEndsAccess(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mustCreateUser(t, "root", true)
	cookies := env.signin(t, "root", "Secret123!")

	rr := env.do(http.MethodPost, "/admin/edit/", url.Values{
		"first_name":   {"Root"},
		"is_superuser": {"on"},
		// is_active unchecked deactivates the account
	}, cookies)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("POST edit: expected 303, got %d", rr.Code)
	}

	// Inactive users resolve as anonymous.
	if got := env.do(http.MethodGet, "/dashboard/", nil, cookies); got.Code != http.StatusSeeOther {
		t.Fatalf("inactive user: expected 303, got %d", got.Code)
	}
}
