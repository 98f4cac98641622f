package refresh

import (
	"context"
	"errors"
	"time"

	"github.com/acadnet/acadnet/token"
	"github.com/acadnet/acadnet/users"
)

// ErrInvalidToken is returned when a refresh token fails signature or expiry
// verification before the store is ever consulted.
var ErrInvalidToken = errors.New("invalid refresh token")

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Manager drives refresh session creation, rotation, and the check-only
// heartbeat over a Repo and the token codec.
type Manager struct {
	repo  Repo
	codec *token.Codec
}

// NewManager creates a new refresh session manager.
func NewManager(repo Repo, codec *token.Codec) *Manager {
	return &Manager{
		repo:  repo,
		codec: codec,
	}
}

// Issue mints a refresh token for the account and persists its session row.
func (m *Manager) Issue(ctx context.Context, userID int64, role users.RoleType) (string, error) {
	refreshToken, err := m.codec.IssueRefresh(userID, role)
	if err != nil {
		return "", err
	}

	now := NowTimeFunc()
	if err := m.repo.Create(ctx, &Session{
		Token:     refreshToken,
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.codec.RefreshTTL()),
	}); err != nil {
		return "", err
	}

	return refreshToken, nil
}

// Rotate executes the rotation protocol: verify the signature and expiry
// (ErrInvalidToken), consume the stored session (ErrRevoked when it was
// already rotated or logged out), and mint a replacement. The consume and the
// replacement insert are one atomic unit in the store, so a token is never
// valid for more than one successful rotation.
func (m *Manager) Rotate(ctx context.Context, oldToken string) (*token.Claims, string, error) {
	claims, err := m.codec.VerifyRefresh(oldToken)
	if err != nil {
		return nil, "", ErrInvalidToken
	}

	newToken, err := m.codec.IssueRefresh(claims.UserID, claims.Role)
	if err != nil {
		return nil, "", err
	}

	now := NowTimeFunc()
	if err := m.repo.Rotate(ctx, oldToken, &Session{
		Token:     newToken,
		UserID:    claims.UserID,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.codec.RefreshTTL()),
	}); err != nil {
		return nil, "", err
	}

	return claims, newToken, nil
}

// Check is the lookup-only heartbeat: it confirms signature validity and store
// presence but never consumes the session. The explicit Rotate path is the
// only one that rotates.
func (m *Manager) Check(ctx context.Context, refreshToken string) (*token.Claims, error) {
	claims, err := m.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	if _, err := m.repo.Get(ctx, refreshToken); err != nil {
		return nil, err
	}

	return claims, nil
}

// Revoke deletes exactly the given session. Unknown tokens are ignored.
func (m *Manager) Revoke(ctx context.Context, refreshToken string) error {
	return m.repo.Delete(ctx, refreshToken)
}

// RevokeAll deletes every session owned by the account.
func (m *Manager) RevokeAll(ctx context.Context, userID int64) error {
	return m.repo.DeleteAllForUser(ctx, userID)
}
