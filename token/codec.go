// Package token implements the signed-claim token codec. Access and refresh
// tokens carry the same claim shape but are signed with independent secrets
// and live for independent windows. The codec holds no mutable state and
// performs no I/O.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/acadnet/acadnet/users"
)

var (
	// ErrExpiredToken is returned when a token's signature is valid but its
	// expiry has passed. Callers react by attempting a refresh.
	ErrExpiredToken = errors.New("token expired")
	// ErrMalformedToken is returned for any structurally or cryptographically
	// invalid token. Callers react by forcing a full re-login.
	ErrMalformedToken = errors.New("token malformed or signature invalid")
)

// Claims are the signed claims carried by both token kinds.
type Claims struct {
	UserID int64          `json:"id"`
	Role   users.RoleType `json:"role"`
	jwt.RegisteredClaims
}

// Codec signs and verifies access and refresh tokens. The two kinds use
// distinct signers so a refresh token can never pass access verification and
// vice versa.
type Codec struct {
	access     Signer
	refresh    Signer
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	nowFunc    func() time.Time
}

// CodecOption defines a function type to modify the Codec instance.
type CodecOption func(*Codec)

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.nowFunc = now
	}
}

// WithIssuer sets the iss claim stamped into every token.
func WithIssuer(issuer string) CodecOption {
	return func(c *Codec) {
		c.issuer = issuer
	}
}

// WithTokenExpiry overrides the default access (15m) and refresh (7d) windows.
func WithTokenExpiry(accessTTL, refreshTTL time.Duration) CodecOption {
	return func(c *Codec) {
		c.accessTTL = accessTTL
		c.refreshTTL = refreshTTL
	}
}

// NewCodec creates a codec from the two independent signing secrets.
func NewCodec(accessSecret, refreshSecret string, options ...CodecOption) *Codec {
	c := &Codec{
		access:     NewHMACSigner(accessSecret),
		refresh:    NewHMACSigner(refreshSecret),
		accessTTL:  15 * time.Minute,
		refreshTTL: 7 * 24 * time.Hour,
		nowFunc:    time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// AccessTTL returns the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// IssueAccess signs a short-lived access token for the account.
func (c *Codec) IssueAccess(userID int64, role users.RoleType) (string, error) {
	return c.issue(c.access, userID, role, c.accessTTL)
}

// IssueRefresh signs a long-lived refresh token for the account. The returned
// string is also the key under which the refresh session row is stored.
func (c *Codec) IssueRefresh(userID int64, role users.RoleType) (string, error) {
	return c.issue(c.refresh, userID, role, c.refreshTTL)
}

// VerifyAccess parses and validates an access token.
func (c *Codec) VerifyAccess(raw string) (*Claims, error) {
	return c.verify(c.access, raw)
}

// VerifyRefresh parses and validates a refresh token.
func (c *Codec) VerifyRefresh(raw string) (*Claims, error) {
	return c.verify(c.refresh, raw)
}

func (c *Codec) issue(signer Signer, userID int64, role users.RoleType, ttl time.Duration) (string, error) {
	now := c.nowFunc()
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
		},
	}
	return signer.Sign(claims)
}

func (c *Codec) verify(signer Signer, raw string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, signer.GetVerificationKey,
		jwt.WithValidMethods([]string{signer.GetSigningMethod().Alg()}),
		jwt.WithTimeFunc(c.nowFunc),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrMalformedToken
	}
	if !parsed.Valid {
		return nil, ErrMalformedToken
	}
	return claims, nil
}
