package federation

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/acadnet/acadnet/users"
)

// GoogleProvider authenticates through Google's OIDC issuer. Identity data
// comes from the verified ID token rather than a userinfo call.
type GoogleProvider struct {
	conf     *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

func NewGoogleProvider(ctx context.Context, clientID, clientSecret, redirectURL string) (*GoogleProvider, error) {
	provider, err := oidc.NewProvider(ctx, "https://accounts.google.com")
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}
	return &GoogleProvider{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
			Endpoint:     provider.Endpoint(),
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

func (p *GoogleProvider) Name() users.AuthProvider {
	return users.ProviderGoogle
}

func (p *GoogleProvider) AuthURL(state string) string {
	return p.conf.AuthCodeURL(state)
}

func (p *GoogleProvider) ResolveIdentity(ctx context.Context, code string) (Identity, error) {
	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return Identity{}, ErrInvalidCode
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok {
		return Identity{}, fmt.Errorf("no id_token in token response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return Identity{}, fmt.Errorf("verify id token: %w", err)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return Identity{}, fmt.Errorf("extract claims: %w", err)
	}

	email := strings.ToLower(claims.Email)
	return Identity{
		Provider:      users.ProviderGoogle,
		Email:         email,
		EmailVerified: claims.EmailVerified,
		Handle:        handleFromEmail(email),
		FullName:      claims.Name,
	}, nil
}

// handleFromEmail derives a username candidate from the local part of the
// address. Google profiles carry no handle of their own.
func handleFromEmail(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}

var _ Provider = (*GoogleProvider)(nil)
