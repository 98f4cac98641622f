package federation

import (
	"context"
	"fmt"

	perrors "github.com/pkg/errors"

	"github.com/acadnet/acadnet/users"
)

// Resolver maps a provider Identity onto the account store, creating the
// account on first login.
type Resolver struct {
	accounts users.Repo
}

func NewResolver(accounts users.Repo) *Resolver {
	return &Resolver{accounts: accounts}
}

// Resolve returns the local account for the identity. A returning federated
// user gets their existing account; a first-time user gets a fresh verified
// account with a username derived from the provider handle, suffixed until
// unique. An email already claimed through a different provider is refused.
func (r *Resolver) Resolve(ctx context.Context, identity Identity) (*users.Account, error) {
	if identity.Email == "" || !identity.EmailVerified {
		return nil, ErrMissingVerifiedEmail
	}
	email := users.NormalizeEmail(identity.Email)

	account, err := r.accounts.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if account.Provider != identity.Provider {
			return nil, ErrProviderMismatch
		}
		return account, nil
	case perrors.Is(err, users.ErrNotFound):
		// first login, fall through to creation
	default:
		return nil, perrors.Wrap(err, "[Resolve] lookup by email")
	}

	account, err = r.createAccount(ctx, identity, email)
	if perrors.Is(err, users.ErrDuplicateUsername) {
		// Another resolve for the same handle won the race between our
		// availability scan and the insert. Rescan once.
		account, err = r.createAccount(ctx, identity, email)
	}
	if err != nil {
		return nil, perrors.Wrap(err, "[Resolve] create account")
	}
	return account, nil
}

func (r *Resolver) createAccount(ctx context.Context, identity Identity, email string) (*users.Account, error) {
	handle := identity.Handle
	if handle == "" {
		handle = handleFromEmail(email)
	}
	username, err := r.availableUsername(ctx, users.NormalizeUsername(handle))
	if err != nil {
		return nil, err
	}

	account := &users.Account{
		Email:        email,
		Username:     username,
		FullName:     identity.FullName,
		PasswordHash: users.FederatedPassword,
		Provider:     identity.Provider,
		Role:         users.RoleUser,
		Verified:     true,
		LastOTPAt:    users.LastOTPEpoch,
	}
	return r.accounts.Create(ctx, account)
}

func (r *Resolver) availableUsername(ctx context.Context, base string) (string, error) {
	candidate := base
	for suffix := 1; ; suffix++ {
		_, err := r.accounts.GetByUsername(ctx, candidate)
		if perrors.Is(err, users.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", perrors.Wrap(err, "[availableUsername] lookup")
		}
		candidate = fmt.Sprintf("%s_%d", base, suffix)
	}
}
