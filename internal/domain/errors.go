package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateAccount   = errors.New("account already exists")
	ErrAlreadyVerified    = errors.New("account already verified")
	ErrExpired            = errors.New("otp expired")
	ErrInvalidCode        = errors.New("invalid otp")
	ErrTooManyAttempts    = errors.New("too many failed attempts")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDependencyTimeout  = errors.New("dependency timeout")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrBadRequest         = errors.New("bad request")
	ErrInternal           = errors.New("internal error")
)

// Machine-readable error kinds returned to API clients.
const (
	KindDuplicateAccount   = "DuplicateAccount"
	KindNotFound           = "NotFound"
	KindExpired            = "Expired"
	KindInvalidCode        = "InvalidCode"
	KindTooManyAttempts    = "TooManyAttempts"
	KindAlreadyVerified    = "AlreadyVerified"
	KindInvalidCredentials = "InvalidCredentials"
	KindDependencyTimeout  = "DependencyTimeout"
	KindUnauthorized       = "Unauthorized"
	KindInvalidInput       = "InvalidInput"
	KindInternal           = "Internal"
)

// Order matters: an error wrapping ErrInternal next to a more specific
// sentinel reports the specific kind.
var kinds = []struct {
	err  error
	kind string
}{
	{ErrDuplicateAccount, KindDuplicateAccount},
	{ErrAlreadyVerified, KindAlreadyVerified},
	{ErrExpired, KindExpired},
	{ErrTooManyAttempts, KindTooManyAttempts},
	{ErrInvalidCode, KindInvalidCode},
	{ErrNotFound, KindNotFound},
	{ErrInvalidCredentials, KindInvalidCredentials},
	{ErrDependencyTimeout, KindDependencyTimeout},
	{ErrUnauthorized, KindUnauthorized},
	{ErrBadRequest, KindInvalidInput},
}

// KindOf returns the error kind of err. Unclassified errors are Internal.
func KindOf(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// IsBusiness reports whether err is an expected outcome of a state
// transition rather than a dependency failure.
func IsBusiness(err error) bool {
	switch KindOf(err) {
	case KindDependencyTimeout, KindInternal:
		return false
	}
	return true
}

// AttemptError is a wrong-code outcome that still leaves budget on the challenge.
type AttemptError struct {
	Remaining int
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("invalid otp: %d attempts remaining", e.Remaining)
}

func (e *AttemptError) Unwrap() error { return ErrInvalidCode }
