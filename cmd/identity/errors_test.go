package identity

import (
	"errors"
	"fmt"
	"testing"
)

func TestConflictError_Unwrap(t *testing.T) {
	err := ConflictError{Op: "identity.CreateUser", Field: "email"}

	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected errors.Is(err, ErrConflict)")
	}
	if !IsConflict(fmt.Errorf("wrap: %w", err)) {
		t.Fatalf("expected IsConflict through wrapping")
	}

	field, ok := ConflictField(err)
	if !ok || field != "email" {
		t.Fatalf("unexpected field: %q %v", field, ok)
	}
}

func TestOpError_Kinds(t *testing.T) {
	err := OpError{Op: "identity.GetUserByID", Kind: ErrNotFound, Msg: "user"}
	if !IsNotFound(err) {
		t.Fatalf("expected IsNotFound")
	}

	err = OpError{Op: "identity.CreateUser", Kind: ErrInvalidInput}
	if !IsInvalidInput(err) {
		t.Fatalf("expected IsInvalidInput")
	}

	if err.Error() != "identity.CreateUser: invalid_input" {
		t.Fatalf("unexpected error string: %q", err.Error())
	}
}

func TestInvalidCredentials_SingleShape(t *testing.T) {
	a := invalidCredentials("identity.VerifyCredentials")
	b := invalidCredentials("identity.VerifyCredentials")
	if a.Error() != b.Error() {
		t.Fatalf("expected identical failure shapes")
	}
	if !IsInvalidCredentials(a) {
		t.Fatalf("expected IsInvalidCredentials")
	}
}
