package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"panel/cmd/identity"
)

//go:embed templates/*.html
var templateFS embed.FS

// PageData is the context every template receives.
type PageData struct {
	Title string

	// User is the signed-in user, nil for anonymous requests.
	User *identity.User

	// Errors maps field name -> message for form re-renders. The "form"
	// key carries a non-field error (bad credentials, throttling).
	Errors map[string]string

	// Form echoes the submitted values back into the inputs.
	Form any

	// Users is the admin listing.
	Users []identity.User
}

// pages lists every content template. Each is parsed together with the
// shared layout so a broken template fails construction, not a request.
var pages = []string{
	"home.html",
	"modules.html",
	"price.html",
	"help.html",
	"signup.html",
	"signin.html",
	"dashboard.html",
	"admin.html",
	"edit.html",
	"forbidden.html",
}

// Renderer holds the parsed page templates.
type Renderer struct {
	tmpl map[string]*template.Template
}

// NewRenderer parses all embedded templates up front.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{tmpl: make(map[string]*template.Template, len(pages))}
	for _, page := range pages {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("web: parse %s: %w", page, err)
		}
		r.tmpl[page] = t
	}
	return r, nil
}

// Render executes a page into a buffer first so a template failure can
// still become a clean 500 instead of a half-written body.
func (r *Renderer) Render(w http.ResponseWriter, status int, page string, data PageData) error {
	t, ok := r.tmpl[page]
	if !ok {
		return fmt.Errorf("web: unknown page %q", page)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
