// Package client talks to the app builder API on behalf of the CLI.
//
// It injects the stored bearer token into every request, drops the session
// when the server answers 401, and in dev mode falls back to offline
// behaviour (local projects, canned chat replies) when the server cannot be
// reached.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	// EnvBackendURL overrides the default backend when no flag is given.
	EnvBackendURL = "BUILDER_BACKEND_URL"
	// EnvDevAuth set to "true" enables dev mode for any backend.
	EnvDevAuth = "BUILDER_DEV_AUTH"

	DefaultBaseURL = "http://localhost:8000"
	apiPrefix      = "/api"
)

// ErrUnauthorized means the server rejected the stored session. The session
// has been cleared and the user has to log in again.
var ErrUnauthorized = errors.New("session expired, please log in")

// ErrDevModeDisabled is returned by offline operations outside dev mode.
var ErrDevModeDisabled = errors.New("dev mode is disabled")

// APIError is a non-2xx answer decoded from the server's error body.
type APIError struct {
	Status  int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Type)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

// ResolveBaseURL picks the backend origin: explicit value, then
// $BUILDER_BACKEND_URL, then DefaultBaseURL. Trailing slashes and a trailing
// /api are removed so callers may pass either form.
func ResolveBaseURL(explicit string) string {
	base := explicit
	if base == "" {
		base = os.Getenv(EnvBackendURL)
	}
	if base == "" {
		base = DefaultBaseURL
	}
	base = strings.TrimRight(base, "/")
	return strings.TrimSuffix(base, apiPrefix)
}

// DevModeEnabled reports whether offline fallbacks apply: devAuth is "true"
// or the backend host is localhost or 127.0.0.1.
func DevModeEnabled(baseURL, devAuth string) bool {
	if devAuth == "true" {
		return true
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1":
		return true
	}
	return false
}

// Client calls the API under <base>/api.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      *LocalStore
	devMode    bool
	devDelay   time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default client. Streaming calls rely on the
// client having no overall timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithDevMode overrides the environment-derived dev mode.
func WithDevMode(on bool) Option {
	return func(c *Client) { c.devMode = on }
}

// WithDevStreamDelay sets the pause between words of a dev reply.
func WithDevStreamDelay(d time.Duration) Option {
	return func(c *Client) { c.devDelay = d }
}

// WithClock is used by tests to pin offline ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New builds a client for baseURL, as returned by ResolveBaseURL.
func New(baseURL string, store *LocalStore, opts ...Option) *Client {
	base := ResolveBaseURL(baseURL)
	c := &Client{
		baseURL:    base,
		httpClient: &http.Client{},
		store:      store,
		devMode:    DevModeEnabled(base, os.Getenv(EnvDevAuth)),
		devDelay:   DevStreamDelay,
		now:        time.Now,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL is the backend origin without the /api prefix.
func (c *Client) BaseURL() string { return c.baseURL }

// DevMode reports whether offline fallbacks are enabled.
func (c *Client) DevMode() bool { return c.devMode }

// Store is the local state backing this client.
func (c *Client) Store() *LocalStore { return c.store }

// newRequest builds a request for an API path such as "/projects". body is
// JSON-encoded when not nil.
func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.store.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// send performs req and returns the response when the status is 2xx. Other
// statuses are decoded into an *APIError, or ErrUnauthorized for an
// intercepted 401. The caller closes the body.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	apiErr := decodeError(resp)
	c.logger.Debug("api error",
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Int("status", resp.StatusCode),
		slog.String("message", apiErr.Message),
	)

	path := strings.TrimPrefix(req.URL.Path, apiPrefix)
	if resp.StatusCode == http.StatusUnauthorized && !isAuthPath(path) {
		if err := c.store.ClearSession(); err != nil {
			c.logger.Warn("clearing session", slog.String("error", err.Error()))
		}
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.Message)
	}
	return nil, apiErr
}

// do sends a JSON request and decodes a JSON answer into out (if not nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) *APIError {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body)
	msg := body.Message
	if msg == "" {
		msg = resp.Status
	}
	return &APIError{Status: resp.StatusCode, Type: body.Error, Message: msg}
}

// isAuthPath lists the paths whose 401 is an answer, not an expired session.
func isAuthPath(path string) bool {
	for _, p := range []string{"/auth/login", "/auth/register", "/auth/callback"} {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return strings.HasPrefix(path, "/auth/") && strings.HasSuffix(path, "/callback")
}

// Health is the server's liveness report.
type Health struct {
	Status       string   `json:"status"`
	Database     string   `json:"database"`
	LLM          string   `json:"llm"`
	LLMAvailable bool     `json:"llm_available"`
	Platforms    []string `json:"platforms"`
}

// Health reports the server status. A 503 answer is still decoded.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("decoding health: %w", err)
	}
	return &h, nil
}
