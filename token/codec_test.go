package token_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acadnet/acadnet/token"
	"github.com/acadnet/acadnet/users"
)

func TestIssueAndVerifyAccess(t *testing.T) {
	codec := token.NewCodec("access-secret", "refresh-secret", token.WithIssuer("acadnet"))

	raw, err := codec.IssueAccess(42, users.RoleUser)
	require.NoError(t, err)

	claims, err := codec.VerifyAccess(raw)
	require.NoError(t, err)
	require.Equal(t, int64(42), claims.UserID)
	require.Equal(t, users.RoleUser, claims.Role)
	require.Equal(t, "acadnet", claims.Issuer)
}

func TestRefreshTokenFailsAccessVerification(t *testing.T) {
	codec := token.NewCodec("access-secret", "refresh-secret")

	raw, err := codec.IssueRefresh(42, users.RoleUser)
	require.NoError(t, err)

	_, err = codec.VerifyAccess(raw)
	require.ErrorIs(t, err, token.ErrMalformedToken)

	_, err = codec.VerifyRefresh(raw)
	require.NoError(t, err)
}

func TestExpiredAccessToken(t *testing.T) {
	now := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	codec := token.NewCodec("access-secret", "refresh-secret",
		token.WithNowFunc(func() time.Time { return now }))

	raw, err := codec.IssueAccess(42, users.RoleUser)
	require.NoError(t, err)

	now = now.Add(16 * time.Minute)
	_, err = codec.VerifyAccess(raw)
	require.ErrorIs(t, err, token.ErrExpiredToken)
}

func TestTamperedTokenIsMalformed(t *testing.T) {
	codec := token.NewCodec("access-secret", "refresh-secret")
	other := token.NewCodec("different-secret", "refresh-secret")

	raw, err := other.IssueAccess(42, users.RoleUser)
	require.NoError(t, err)

	_, err = codec.VerifyAccess(raw)
	require.ErrorIs(t, err, token.ErrMalformedToken)

	_, err = codec.VerifyAccess("not.a.token")
	require.ErrorIs(t, err, token.ErrMalformedToken)
}

func TestCustomExpiryWindows(t *testing.T) {
	codec := token.NewCodec("a", "b", token.WithTokenExpiry(time.Minute, time.Hour))
	require.Equal(t, time.Minute, codec.AccessTTL())
	require.Equal(t, time.Hour, codec.RefreshTTL())
}
