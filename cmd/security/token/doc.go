// Package token generates and hashes the opaque session tokens carried in
// the session cookie.
//
// The plain token lives only on the client; the server stores a 64-char hex
// digest. When PANEL_TOKEN_HMAC_KEY is set the digest is HMAC-SHA256,
// otherwise plain SHA-256 (dev fallback).
package token
