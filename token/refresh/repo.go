// Package refresh manages the durable set of outstanding refresh sessions.
// Each session is a single-use capability: a successful rotation consumes it
// and issues a replacement atomically.
package refresh

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRevoked is returned when a structurally valid refresh token is not
	// present in the store: it was rotated, logged out, or expired. A revoked
	// token always terminates the session; there is no best-effort recovery.
	ErrRevoked = errors.New("refresh token revoked or not found")
	// ErrUnavailable is returned when the backing store cannot be reached
	// within the caller's deadline.
	ErrUnavailable = errors.New("refresh session store unavailable")
)

// Session represents a single outstanding refresh capability.
type Session struct {
	Token     string    // The signed refresh token string (unique)
	UserID    int64     // Owning account
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session has passed its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Repo manages server-side storage of refresh sessions, keyed by token string.
type Repo interface {
	Create(ctx context.Context, session *Session) error

	// Get returns the session for the given token. Naturally-expired rows are
	// removed lazily and reported as ErrRevoked.
	Get(ctx context.Context, token string) (*Session, error)

	// Rotate consumes oldToken and persists next as a single atomic unit.
	// When oldToken is no longer present - already rotated, logged out, or
	// expired - it returns ErrRevoked and persists nothing. Under concurrent
	// rotation of the same token exactly one call succeeds.
	Rotate(ctx context.Context, oldToken string, next *Session) error

	// Delete removes a session by its token. Missing tokens are not an error.
	Delete(ctx context.Context, token string) error

	// DeleteAllForUser removes every session owned by the account.
	DeleteAllForUser(ctx context.Context, userID int64) error
}
