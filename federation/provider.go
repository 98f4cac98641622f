// Package federation links third-party identities (GitHub, Google) to local
// accounts. Providers resolve an authorization code into an Identity; the
// Resolver maps that identity onto the account store.
package federation

import (
	"context"
	"errors"

	"github.com/acadnet/acadnet/users"
)

var (
	// ErrInvalidCode is returned when the authorization code exchange fails.
	ErrInvalidCode = errors.New("invalid authorization code")

	// ErrMissingVerifiedEmail is returned when the provider holds no verified
	// email address for the authorizing user.
	ErrMissingVerifiedEmail = errors.New("no verified email on provider account")

	// ErrProviderMismatch is returned when the resolved email already belongs
	// to an account registered through a different provider.
	ErrProviderMismatch = errors.New("account registered with a different provider")
)

// Identity is the provider-agnostic result of a completed authorization flow.
type Identity struct {
	Provider      users.AuthProvider
	Email         string
	EmailVerified bool
	Handle        string
	FullName      string
}

// Provider is implemented by each upstream identity provider.
type Provider interface {
	Name() users.AuthProvider
	AuthURL(state string) string
	ResolveIdentity(ctx context.Context, code string) (Identity, error)
}
