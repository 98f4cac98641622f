package auth

import (
	"errors"
	"fmt"
	"time"
)

var (
	UserNotFoundErr         = errors.New("user not found")
	UserBannedErr           = errors.New("user banned")
	WrongCredentialsErr     = errors.New("wrong credentials")
	VerificationRequiredErr = errors.New("account verification required")
	UseFederatedLoginErr    = errors.New("account uses federated login")
	FederatedAccountErr     = errors.New("not available for federated accounts")
	EmailInUseErr           = errors.New("email is already in use")
	AlreadyVerifiedErr      = errors.New("user already verified")
)

// Kind classifies a failure for the caller-facing surface. Every error leaving
// the Service carries exactly one Kind so the HTTP layer can pick a status
// without string matching.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindConflict
	KindUnauthorized
	KindRateLimited
	KindForbidden
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindRateLimited:
		return "rate_limited"
	case KindForbidden:
		return "forbidden"
	case KindUnavailable:
		return "unavailable"
	}
	return "unknown"
}

// Error wraps an underlying failure with its Kind. RetryAfter is set only for
// KindRateLimited.
type Error struct {
	Kind       Kind
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E tags err with a Kind.
func E(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the Kind from an error chain, or 0 if untyped.
func KindOf(err error) Kind {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return 0
}
