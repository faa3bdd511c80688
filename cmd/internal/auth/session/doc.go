// Package session implements the cookie session layer of the panel.
//
// Sessions are opaque random tokens carried in an HttpOnly cookie; the server
// stores only a 64-char hex digest of the token. The service resolves the
// cookie to an active session on every guarded request, revokes it on
// signout, and rotates it after password or identity changes so the in-flight
// session survives while every other session of the user is invalidated.
package session
