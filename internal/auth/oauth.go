package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	githubUserURL = "https://api.github.com/user"
	googleUserURL = "https://www.googleapis.com/oauth2/v3/userinfo"
)

// Identity is the provider-neutral profile returned by an OAuth exchange.
type Identity struct {
	Provider  string
	Subject   string // stable provider user ID
	Email     string
	Name      string
	AvatarURL string
}

// OAuthProvider is one Authorization Code flow sign-in option.
type OAuthProvider interface {
	Name() string
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*Identity, error)
}

// GitHubProvider signs users in with GitHub.
type GitHubProvider struct {
	config  *oauth2.Config
	userURL string
}

var _ OAuthProvider = (*GitHubProvider)(nil)

// NewGitHubProvider requests the read:user and user:email scopes.
// callbackURL must match the OAuth App's configured callback exactly.
func NewGitHubProvider(clientID, clientSecret, callbackURL string) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     endpoints.GitHub,
		},
		userURL: githubUserURL,
	}
}

func (p *GitHubProvider) Name() string { return "github" }

// AuthURL returns the GitHub authorization URL. state is echoed back on the
// callback and must be checked against the state cookie.
func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the code for a token and loads the GitHub profile.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*Identity, error) {
	var gh struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := exchangeAndFetch(ctx, p.config, code, p.userURL, &gh); err != nil {
		return nil, err
	}
	if gh.ID == 0 {
		return nil, fmt.Errorf("auth: GitHub returned an invalid user (ID = 0)")
	}

	name := gh.Name
	if name == "" {
		name = gh.Login
	}
	return &Identity{
		Provider:  "github",
		Subject:   strconv.FormatInt(gh.ID, 10),
		Email:     gh.Email,
		Name:      name,
		AvatarURL: gh.AvatarURL,
	}, nil
}

// GoogleProvider signs users in with Google (OpenID userinfo).
type GoogleProvider struct {
	config  *oauth2.Config
	userURL string
}

var _ OAuthProvider = (*GoogleProvider)(nil)

// NewGoogleProvider requests the openid, email and profile scopes.
func NewGoogleProvider(clientID, clientSecret, callbackURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     endpoints.Google,
		},
		userURL: googleUserURL,
	}
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the code for a token and loads the userinfo document.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*Identity, error) {
	var g struct {
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := exchangeAndFetch(ctx, p.config, code, p.userURL, &g); err != nil {
		return nil, err
	}
	if g.Sub == "" {
		return nil, fmt.Errorf("auth: Google returned a userinfo without sub")
	}
	return &Identity{
		Provider:  "google",
		Subject:   g.Sub,
		Email:     g.Email,
		Name:      g.Name,
		AvatarURL: g.Picture,
	}, nil
}

// exchangeAndFetch performs the server-side code exchange and decodes the
// provider's profile endpoint into out.
func exchangeAndFetch(ctx context.Context, cfg *oauth2.Config, code, userURL string, out any) error {
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	client := cfg.Client(ctx, token)
	resp, err := client.Get(userURL)
	if err != nil {
		return fmt.Errorf("auth: calling profile API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth: profile API returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("auth: decoding profile response: %w", err)
	}
	return nil
}
