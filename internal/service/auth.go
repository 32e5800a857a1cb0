package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/sakif/app-builder/internal/apperror"
	"github.com/sakif/app-builder/internal/auth"
	"github.com/sakif/app-builder/internal/model"
	"github.com/sakif/app-builder/internal/repository"
)

const (
	MinPasswordLength = 8
	MaxNameLength     = 100
)

// AuthService handles registration, login and OAuth sign-in.
//
//	AuthHandler (HTTP) → AuthService → UserRepository (DB)
//	                                 ↘ TokenService (JWT)
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	providers map[string]auth.OAuthProvider
	logger    *slog.Logger
}

// NewAuthService wires the auth dependencies. Only configured OAuth
// providers should be passed.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
	providers ...auth.OAuthProvider,
) *AuthService {
	byName := make(map[string]auth.OAuthProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		providers: byName,
		logger:    logger,
	}
}

// AuthResult bundles the user and the issued JWT so the handler can set
// the cookie and respond in one step.
type AuthResult struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// Register creates a password account and signs it in.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)

	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, apperror.ValidationFailed("email", "a valid email address is required")
	}
	if len(password) < MinPasswordLength {
		return nil, apperror.ValidationFailed("password", fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > auth.MaxPasswordBytes {
		return nil, apperror.ValidationFailed("password", fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
	}
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	if len(name) > MaxNameLength {
		return nil, apperror.ValidationFailed("name", fmt.Sprintf("name must be %d characters or fewer", MaxNameLength))
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{Email: email, Name: name, PasswordHash: hash, Provider: model.ProviderPassword}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, &apperror.AppError{Err: apperror.ErrConflict, Message: "Email already registered", Field: "email"}
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered", slog.String("userID", user.ID))
	return s.issue(user)
}

// Login checks credentials. Unknown email and wrong password produce the
// same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	invalid := apperror.Unauthorized("Invalid email or password")

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: loading user: %w", err)
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}
	return s.issue(user)
}

// OAuthProvider returns a configured provider by name.
func (s *AuthService) OAuthProvider(name string) (auth.OAuthProvider, bool) {
	p, ok := s.providers[name]
	return p, ok
}

// LoginWithOAuth completes an Authorization Code callback: the code is
// exchanged, the user upserted on (provider, subject) and a token issued.
func (s *AuthService) LoginWithOAuth(ctx context.Context, provider, code string) (*AuthResult, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, apperror.Unavailable(provider + " sign-in is not configured")
	}
	if code == "" {
		return nil, apperror.ValidationFailed("code", "missing authorization code")
	}

	id, err := p.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %s exchange: %w", provider, err)
	}

	user := &model.User{
		Email:      strings.ToLower(id.Email),
		Name:       id.Name,
		Provider:   id.Provider,
		ProviderID: id.Subject,
		AvatarURL:  id.AvatarURL,
	}
	if err := s.users.UpsertOAuthUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting %s user %s: %w", provider, id.Subject, err)
	}

	s.logger.Info("user authenticated via OAuth",
		slog.String("userID", user.ID),
		slog.String("provider", provider),
	)
	return s.issue(user)
}

// GetUserByID backs /api/auth/me.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.Unauthorized("not authenticated")
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}
