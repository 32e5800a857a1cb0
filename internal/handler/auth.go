package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/app-builder/internal/apperror"
	"github.com/sakif/app-builder/internal/auth"
	"github.com/sakif/app-builder/internal/service"
)

const stateCookie = "oauth_state"

// AuthHandler serves password sign-in, the OAuth flows and the session
// endpoints.
//
//	HandleRegister / HandleLogin → JSON {token, user} plus the token cookie
//	HandleOAuthLogin             → redirect to the provider
//	HandleGoogleURL              → {auth_url} for SPA-driven redirects
//	HandleOAuthCallback          → verify state, sign in, redirect to the app
//	HandleLogout / HandleMe      → session helpers
type AuthHandler struct {
	auth        *service.AuthService
	tokenTTL    time.Duration
	frontendURL string
	secure      bool
	logger      *slog.Logger
}

// NewAuthHandler creates an AuthHandler. Cookies are marked Secure when
// frontendURL is served over https.
func NewAuthHandler(authService *service.AuthService, tokenTTL time.Duration, frontendURL string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:        authService,
		tokenTTL:    tokenTTL,
		frontendURL: strings.TrimSuffix(frontendURL, "/"),
		secure:      strings.HasPrefix(frontendURL, "https://"),
		logger:      logger,
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// HandleRegister creates a password account.
//
// HTTP: POST /api/auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		logError(h.logger, r, "register failed", err)
		writeError(w, err)
		return
	}

	h.setTokenCookie(w, result.Token)
	writeJSON(w, http.StatusCreated, result)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin checks email and password.
//
// HTTP: POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		logError(h.logger, r, "login failed", err)
		writeError(w, err)
		return
	}

	h.setTokenCookie(w, result.Token)
	writeJSON(w, http.StatusOK, result)
}

// HandleOAuthLogin redirects the browser to the provider's consent page.
// A random state is kept in a short-lived cookie and checked on callback.
//
// HTTP: GET /api/auth/{provider}/login
func (h *AuthHandler) HandleOAuthLogin(provider string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := h.auth.OAuthProvider(provider)
		if !ok {
			writeError(w, apperror.Unavailable(provider+" sign-in is not configured"))
			return
		}
		http.Redirect(w, r, p.AuthURL(h.newState(w)), http.StatusTemporaryRedirect)
	}
}

// GoogleAuthURLResponse is returned by HandleGoogleURL.
type GoogleAuthURLResponse struct {
	AuthURL string `json:"auth_url,omitempty"`
	Message string `json:"message,omitempty"`
}

// HandleGoogleURL returns the Google consent URL for the frontend to open.
//
// HTTP: GET /api/auth/google
func (h *AuthHandler) HandleGoogleURL(w http.ResponseWriter, r *http.Request) {
	p, ok := h.auth.OAuthProvider("google")
	if !ok {
		writeJSON(w, http.StatusOK, GoogleAuthURLResponse{Message: "Google OAuth not configured on server."})
		return
	}
	writeJSON(w, http.StatusOK, GoogleAuthURLResponse{AuthURL: p.AuthURL(h.newState(w))})
}

// HandleOAuthCallback completes the Authorization Code flow.
//
// HTTP: GET /api/auth/{provider}/callback?code=xxx&state=yyy
//
//  1. Validate the state parameter against the cookie
//  2. Exchange the code and upsert the user
//  3. Issue the JWT cookie
//  4. Redirect to the app
func (h *AuthHandler) HandleOAuthCallback(provider string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		cookie, err := r.Cookie(stateCookie)
		if err != nil || cookie.Value == "" || q.Get("state") != cookie.Value {
			h.logger.Warn("auth callback: state mismatch", slog.String("provider", provider))
			writeError(w, apperror.ValidationFailed("state", "invalid OAuth state"))
			return
		}
		// single use
		http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

		if errParam := q.Get("error"); errParam != "" {
			h.logger.Info("auth callback: user denied authorization",
				slog.String("provider", provider),
				slog.String("error", errParam),
			)
			http.Redirect(w, r, h.frontendURL+"/?auth=denied", http.StatusSeeOther)
			return
		}

		result, err := h.auth.LoginWithOAuth(r.Context(), provider, q.Get("code"))
		if err != nil {
			h.logger.Error("auth callback: sign-in failed",
				slog.String("provider", provider),
				slog.String("error", err.Error()),
			)
			if status, _ := statusFor(err); status != http.StatusInternalServerError {
				writeError(w, err)
				return
			}
			http.Redirect(w, r, h.frontendURL+"/?auth=failed", http.StatusSeeOther)
			return
		}

		h.setTokenCookie(w, result.Token)
		http.Redirect(w, r, h.frontendURL+"/", http.StatusSeeOther)
	}
}

// HandleLogout deletes the token cookie. JWTs are stateless, so a copied
// token stays valid until it expires.
//
// HTTP: POST /api/auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, MessageResponse{Message: "logged out"})
}

// HandleMe returns the signed-in user.
//
// HTTP: GET /api/auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	user, err := h.auth.GetUserByID(r.Context(), id)
	if err != nil {
		logError(h.logger, r, "HandleMe: loading user", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) newState(w http.ResponseWriter) string {
	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return state
}

func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.tokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
