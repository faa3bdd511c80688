// Package web is the HTML surface of the panel: form parsing and
// validation, guard middleware, template rendering, and the route
// handlers for auth, dashboard and administration pages.
//
// Handlers never talk to the database directly; they go through the
// identity.Store and session.Service boundaries so the same handlers run
// against Postgres in production and the in-memory stores in dev mode
// and tests.
package web
