package web

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"panel/cmd/identity"
)

// Field error messages are stable strings rendered next to form fields.
const (
	msgRequired     = "this field is required"
	msgPasswordPair = "passwords do not match"
	msgBadEmail     = "enter a valid email address"
)

func msgTooLong(max int) string {
	return fmt.Sprintf("must be at most %d characters", max)
}

// SignupForm is the parsed registration form.
type SignupForm struct {
	Username   string
	Email      string
	FirstName  string
	SecondName string
	Password1  string
	Password2  string
}

// SigninForm is the parsed login form.
type SigninForm struct {
	Username string
	Password string
}

// ProfileForm is the parsed profile-edit form. Username and email are
// rendered read-only and deliberately absent here: whatever the client
// posts for them is ignored.
type ProfileForm struct {
	FirstName  string
	SecondName string

	IsStaff     bool
	IsSuperuser bool
	IsActive    bool

	Password1 string
	Password2 string
}

// ParseSignupForm maps posted values to a SignupForm and validates field
// shape. The returned map is nil when the form is valid; uniqueness is
// the store's call and surfaces later as a field error on the same map.
func ParseSignupForm(v url.Values) (SignupForm, map[string]string) {
	f := SignupForm{
		Username:   strings.TrimSpace(v.Get("username")),
		Email:      strings.TrimSpace(v.Get("email")),
		FirstName:  strings.TrimSpace(v.Get("first_name")),
		SecondName: strings.TrimSpace(v.Get("second_name")),
		Password1:  v.Get("password1"),
		Password2:  v.Get("password2"),
	}

	errs := map[string]string{}

	requireName(errs, "username", f.Username)
	requireName(errs, "first_name", f.FirstName)
	if utf8.RuneCountInString(f.SecondName) > identity.MaxNameLen {
		errs["second_name"] = msgTooLong(identity.MaxNameLen)
	}

	switch {
	case f.Email == "":
		errs["email"] = msgRequired
	case !identity.ValidEmail(f.Email):
		errs["email"] = msgBadEmail
	}

	switch {
	case f.Password1 == "":
		errs["password1"] = msgRequired
	case f.Password2 == "":
		errs["password2"] = msgRequired
	case f.Password1 != f.Password2:
		errs["password2"] = msgPasswordPair
	default:
		if err := identity.ValidatePassword(f.Password1); err != nil {
			errs["password1"] = err.Error()
		}
	}

	if len(errs) == 0 {
		return f, nil
	}
	return f, errs
}

// ParseSigninForm checks presence only; credential quality is the
// store's call and every failure there collapses to one generic message.
func ParseSigninForm(v url.Values) (SigninForm, map[string]string) {
	f := SigninForm{
		Username: strings.TrimSpace(v.Get("username")),
		Password: v.Get("password"),
	}

	errs := map[string]string{}
	if f.Username == "" {
		errs["username"] = msgRequired
	}
	if f.Password == "" {
		errs["password"] = msgRequired
	}

	if len(errs) == 0 {
		return f, nil
	}
	return f, errs
}

// ParseProfileForm maps the profile-edit POST. A blank password pair
// keeps the stored hash; a non-blank pair must match and pass policy.
func ParseProfileForm(v url.Values) (ProfileForm, map[string]string) {
	f := ProfileForm{
		FirstName:   strings.TrimSpace(v.Get("first_name")),
		SecondName:  strings.TrimSpace(v.Get("second_name")),
		IsStaff:     checked(v, "is_staff"),
		IsSuperuser: checked(v, "is_superuser"),
		IsActive:    checked(v, "is_active"),
		Password1:   v.Get("password1"),
		Password2:   v.Get("password2"),
	}

	errs := map[string]string{}

	requireName(errs, "first_name", f.FirstName)
	if utf8.RuneCountInString(f.SecondName) > identity.MaxNameLen {
		errs["second_name"] = msgTooLong(identity.MaxNameLen)
	}

	if f.Password1 != "" || f.Password2 != "" {
		switch {
		case f.Password1 != f.Password2:
			errs["password2"] = msgPasswordPair
		default:
			if err := identity.ValidatePassword(f.Password1); err != nil {
				errs["password1"] = err.Error()
			}
		}
	}

	if len(errs) == 0 {
		return f, nil
	}
	return f, errs
}

func requireName(errs map[string]string, field, value string) {
	// Length is measured in runes, matching the store's limit.
	switch {
	case value == "":
		errs[field] = msgRequired
	case utf8.RuneCountInString(value) > identity.MaxNameLen:
		errs[field] = msgTooLong(identity.MaxNameLen)
	}
}

// checked reports whether an HTML checkbox was submitted.
// Browsers omit unchecked boxes entirely, so presence is the signal.
func checked(v url.Values, name string) bool {
	if !v.Has(name) {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v.Get(name))) {
	case "", "off", "false", "0":
		return false
	default:
		return true
	}
}
