package users

import (
	"context"
	"errors"
	"time"
)

// Store-level failures. Implementations translate their native errors into
// these so callers can pick the right caller-facing code.
var (
	ErrNotFound          = errors.New("account not found")
	ErrDuplicateEmail    = errors.New("email already in use")
	ErrDuplicateUsername = errors.New("username already taken")
	ErrOTPCooldown       = errors.New("otp cooldown active")
	ErrUnavailable       = errors.New("credential store unavailable")
)

// Repo is the credential-store boundary. The store enforces uniqueness on
// email and username as the final backstop for check-then-act races.
type Repo interface {
	// Create inserts the account and fills in its assigned ID and timestamps.
	// Uniqueness violations surface as ErrDuplicateEmail or ErrDuplicateUsername.
	Create(ctx context.Context, account *Account) (*Account, error)

	GetByID(ctx context.Context, id int64) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)

	UpdatePasswordHash(ctx context.Context, id int64, newHash string) error
	SetVerified(ctx context.Context, id int64, verified bool) error
	SetRole(ctx context.Context, id int64, role RoleType) error
	SetBanned(ctx context.Context, id int64, banned bool) error

	// ClaimOTPSlot atomically checks the account's cooldown anchor and bumps it
	// to now. When the account is still inside the cooldown window it returns
	// the remaining wait and ErrOTPCooldown without moving the anchor. The
	// check and the bump must not be separable by a concurrent claim.
	ClaimOTPSlot(ctx context.Context, id int64, now time.Time, cooldown time.Duration) (time.Duration, error)

	// Delete removes the account. Session and OTP rows for the account are the
	// caller's responsibility (or the store's, via cascading constraints).
	Delete(ctx context.Context, id int64) error

	List(ctx context.Context, offset, limit int) ([]*Account, error)
}
