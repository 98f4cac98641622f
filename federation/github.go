package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/acadnet/acadnet/users"
)

// GitHubProvider authenticates against GitHub's OAuth2 API. The user:email
// scope is required: the profile email can be private, in which case the
// verified address has to come from the /user/emails endpoint.
type GitHubProvider struct {
	conf       *oauth2.Config
	httpClient *http.Client
}

func NewGitHubProvider(clientID, clientSecret, redirectURL string) *GitHubProvider {
	return &GitHubProvider{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"user:email"},
			Endpoint:     github.Endpoint,
		},
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *GitHubProvider) Name() users.AuthProvider {
	return users.ProviderGithub
}

func (p *GitHubProvider) AuthURL(state string) string {
	return p.conf.AuthCodeURL(state)
}

func (p *GitHubProvider) ResolveIdentity(ctx context.Context, code string) (Identity, error) {
	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return Identity{}, ErrInvalidCode
	}

	profile, err := p.fetchUser(ctx, tok.AccessToken)
	if err != nil {
		return Identity{}, fmt.Errorf("fetch github user: %w", err)
	}

	email := strings.ToLower(profile.Email)
	verified := email != ""
	if email == "" {
		emails, err := p.fetchEmails(ctx, tok.AccessToken)
		if err != nil {
			return Identity{}, fmt.Errorf("fetch github emails: %w", err)
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				email = strings.ToLower(e.Email)
				verified = true
				break
			}
		}
	}

	return Identity{
		Provider:      users.ProviderGithub,
		Email:         email,
		EmailVerified: verified,
		Handle:        profile.Login,
		FullName:      profile.Name,
	}, nil
}

func (p *GitHubProvider) fetchUser(ctx context.Context, accessToken string) (*ghUser, error) {
	var user ghUser
	if err := p.getJSON(ctx, "https://api.github.com/user", accessToken, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (p *GitHubProvider) fetchEmails(ctx context.Context, accessToken string) ([]ghEmail, error) {
	var emails []ghEmail
	if err := p.getJSON(ctx, "https://api.github.com/user/emails", accessToken, &emails); err != nil {
		return nil, err
	}
	return emails, nil
}

func (p *GitHubProvider) getJSON(ctx context.Context, url, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github api returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type ghUser struct {
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type ghEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

var _ Provider = (*GitHubProvider)(nil)
