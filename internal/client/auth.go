package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/app-builder/internal/model"
)

// Session is a signed-in user and its bearer token.
type Session struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// Register creates an account and stores the returned session.
func (c *Client) Register(ctx context.Context, email, password, name string) (*Session, error) {
	body := map[string]string{"email": email, "password": password, "name": name}
	return c.signIn(ctx, "/auth/register", body)
}

// Login stores the session returned for email and password.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	return c.signIn(ctx, "/auth/login", body)
}

func (c *Client) signIn(ctx context.Context, path string, body any) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodPost, path, body, &s); err != nil {
		return nil, err
	}
	if s.Token == "" {
		return nil, fmt.Errorf("%s: server returned no token", path)
	}
	if err := c.store.SetSession(s.Token, s.User); err != nil {
		return nil, err
	}
	return &s, nil
}

// DevSignIn stores a local session without contacting the server. Ids
// look like dev_<random> and tokens like dev-token-<random>.
func (c *Client) DevSignIn(email, name string) (*Session, error) {
	if !c.devMode {
		return nil, ErrDevModeDisabled
	}
	email = strings.TrimSpace(email)
	if email == "" {
		email = "dev@example.com"
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Dev User"
	}
	now := c.now().UTC()
	s := &Session{
		Token: "dev-token-" + xid.New().String(),
		User: &model.User{
			ID:        "dev_" + xid.New().String(),
			Email:     email,
			Name:      name,
			Provider:  "dev",
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	if err := c.store.SetSession(s.Token, s.User); err != nil {
		return nil, err
	}
	return s, nil
}

// Me returns the signed-in user. Dev sessions are answered locally.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	st, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	if c.devMode && strings.HasPrefix(st.Token, "dev-token-") && st.User != nil {
		return st.User, nil
	}

	var u model.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Logout asks the server to drop its cookie and always clears the local
// session. Only a local failure is returned.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil); err != nil {
		c.logger.Debug("logout request failed", slog.String("error", err.Error()))
	}
	return c.store.ClearSession()
}
