package identity

import (
	"net/mail"
	"strings"
)

// NormalizeUsername performs case-insensitive canonicalization.
// Note: for now we only trim + lower-case. Additional rules (unicode
// confusables) can be added later behind a versioned policy.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidEmail reports whether s is a plausible RFC 5322 address.
// Display names ("Alice <a@x.com>") are rejected; only the bare address form
// is accepted.
func ValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Address == s
}
