// Package otp implements the one-time-password ledger: a single active code
// per account, issued under a cooldown and consumed exactly once.
package otp

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrWrongOTP covers every failed check: no pending code, an expired code,
	// or a mismatched code. Callers cannot distinguish which, deliberately.
	ErrWrongOTP = errors.New("wrong otp")
	// ErrNoPendingCode is the store-level absence signal translated to
	// ErrWrongOTP by the ledger.
	ErrNoPendingCode = errors.New("no pending otp record")
	// ErrUnavailable is returned when the backing store cannot be reached
	// within the caller's deadline.
	ErrUnavailable = errors.New("otp store unavailable")
)

// Record is the single pending verification code for an account.
type Record struct {
	UserID    int64
	Code      string // Fixed-width 6-digit numeric code
	ExpiresAt time.Time
}

// Expired reports whether the record has passed its expiry at the given time.
func (r *Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Repo stores at most one unconsumed record per account.
type Repo interface {
	// Replace atomically removes any prior record for the account and stores
	// the new one. A concurrent Replace for the same account must never leave
	// two records behind; the store's per-account uniqueness is the backstop.
	Replace(ctx context.Context, record *Record) error

	// Get returns the pending record for the account, or ErrNoPendingCode.
	Get(ctx context.Context, userID int64) (*Record, error)

	// Delete removes the pending record. Absence is not an error.
	Delete(ctx context.Context, userID int64) error
}
