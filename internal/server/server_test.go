package server_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/app-builder/internal/auth"
	"github.com/sakif/app-builder/internal/codegen"
	"github.com/sakif/app-builder/internal/config"
	"github.com/sakif/app-builder/internal/deploy"
	"github.com/sakif/app-builder/internal/export"
	"github.com/sakif/app-builder/internal/gitpush"
	"github.com/sakif/app-builder/internal/model"
	"github.com/sakif/app-builder/internal/ratelimit"
	sqliteRepo "github.com/sakif/app-builder/internal/repository/sqlite"
	"github.com/sakif/app-builder/internal/server"
	"github.com/sakif/app-builder/internal/service"
)

// stubProvider always deploys successfully.
type stubProvider struct{}

func (stubProvider) Name() string { return "stub" }

func (stubProvider) Deploy(_ context.Context, b deploy.Bundle) (*deploy.Result, error) {
	return &deploy.Result{Success: true, Platform: "stub", URL: "https://" + b.ProjectID + ".stub.dev", DeploymentID: "stub-1", Status: "ready"}, nil
}

func (stubProvider) Status(context.Context, string) (*deploy.Status, error) {
	return &deploy.Status{Status: "READY"}, nil
}

func instantTimer(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

type testEnv struct {
	srv    *httptest.Server
	tokens *auth.TokenService
}

func newTestEnv(t *testing.T, limiter ratelimit.Limiter) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	require.NoError(t, err)

	snapshots := service.NewSnapshotService(db, db, 0, logger)
	projects := service.NewProjectService(db, snapshots, codegen.NewGenerator(nil, logger), logger)
	registry := deploy.NewRegistry(stubProvider{})

	cfg := config.Default().Server
	cfg.CORSOrigins = []string{"http://localhost:3000"}

	s := server.New(cfg, server.Deps{
		DB:        db,
		Tokens:    tokens,
		Limiter:   limiter,
		Auth:      service.NewAuthService(db, tokens, auth.NewPasswordService(auth.WithCost(4)), logger),
		Projects:  projects,
		Snapshots: snapshots,
		Deploys:   service.NewDeployService(registry, db, projects, logger, deploy.WithTimer(instantTimer)),
		Exports:   service.NewExportService(projects, export.NewExporter(nil), gitpush.New(), logger),
		Chat:      service.NewChatService(nil, logger),
	}, logger)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, tokens: tokens}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (e *testEnv) register(t *testing.T, email string) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": email, "password": "password123", "name": "Tester",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	out := decode[service.AuthResult](t, resp)
	require.NotEmpty(t, out.Token)
	return out.Token
}

func (e *testEnv) generate(t *testing.T, token, prompt string) model.Project {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/projects/generate", token, map[string]string{"prompt": prompt})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[model.Project](t, resp)
}

// events reads an SSE body into (event, data) pairs up to [DONE].
func events(t *testing.T, resp *http.Response) [][2]string {
	t.Helper()
	var out [][2]string
	event := ""
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 1<<20), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := strings.TrimPrefix(line, "data: ")
			out = append(out, [2]string{event, data})
			if data == "[DONE]" {
				return out
			}
		case line == "":
			event = ""
		}
	}
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string]any](t, resp)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "none", body["llm"])
	assert.Equal(t, []any{"stub"}, body["platforms"])
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.register(t, "flow@example.com")

	t.Run("me", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/auth/me", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "flow@example.com", decode[model.User](t, resp).Email)
	})

	t.Run("me without token", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/auth/me", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("duplicate register", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
			"email": "flow@example.com", "password": "password123",
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "Email already registered", decode[map[string]string](t, resp)["message"])
	})

	t.Run("login", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
			"email": "flow@example.com", "password": "password123",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, decode[service.AuthResult](t, resp).Token)

		var cookie *http.Cookie
		for _, c := range resp.Cookies() {
			if c.Name == auth.CookieName {
				cookie = c
			}
		}
		require.NotNil(t, cookie, "login sets the token cookie")
		assert.True(t, cookie.HttpOnly)
	})

	t.Run("bad password", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
			"email": "flow@example.com", "password": "wrong-password",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("google not configured", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/auth/google", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "Google OAuth not configured on server.", decode[map[string]string](t, resp)["message"])
	})

	t.Run("github not configured", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/auth/github/login", "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}

func TestProjectLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.register(t, "owner@example.com")

	p := env.generate(t, token, "a calculator app")
	require.NotEmpty(t, p.ID)
	i := p.FileIndex("src/App.js")
	require.GreaterOrEqual(t, i, 0)
	assert.Contains(t, p.Files[i].Content, "setA")

	t.Run("list", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/projects", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		list := decode[[]model.Project](t, resp)
		require.Len(t, list, 1)
		assert.Equal(t, p.ID, list[0].ID)
	})

	t.Run("preview", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/projects/"+p.ID+"/preview", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
		body, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(body), "<html")
	})

	t.Run("put files and snapshot", func(t *testing.T) {
		resp := env.do(t, http.MethodPut, "/api/projects/"+p.ID+"/files", token, map[string]any{
			"files": []model.File{{Path: "src/extra.js", Content: "export const x = 1;"}},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = env.do(t, http.MethodPost, "/api/projects/"+p.ID+"/snapshots", token, map[string]string{"message": "checkpoint"})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		created := decode[map[string]any](t, resp)
		assert.Equal(t, true, created["created"])

		resp = env.do(t, http.MethodGet, "/api/projects/"+p.ID+"/snapshots", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		snaps := decode[[]model.Snapshot](t, resp)
		require.Len(t, snaps, 2)
		assert.Equal(t, "checkpoint", snaps[0].Message)

		resp = env.do(t, http.MethodGet, "/api/projects/"+p.ID+"/snapshots/compare?from="+snaps[1].ID+"&to="+snaps[0].ID, token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		diff := decode[model.SnapshotDiff](t, resp)
		assert.Equal(t, []string{"src/extra.js"}, diff.Added)

		resp = env.do(t, http.MethodPost, "/api/projects/"+p.ID+"/snapshots/"+snaps[1].ID+"/restore", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		restored := decode[model.Project](t, resp)
		assert.Equal(t, -1, restored.FileIndex("src/extra.js"))
		assert.Equal(t, snaps[1].ID, restored.LastRestoredFrom)
	})

	t.Run("plan", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/projects/"+p.ID+"/chat/plan", token, map[string]string{"message": "add history"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, decode[map[string]string](t, resp)["response"], "Your goal: add history")
	})

	t.Run("other user sees 404", func(t *testing.T) {
		other := env.register(t, "other@example.com")
		resp := env.do(t, http.MethodGet, "/api/projects/"+p.ID, other, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("delete", func(t *testing.T) {
		resp := env.do(t, http.MethodDelete, "/api/projects/"+p.ID, token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp = env.do(t, http.MethodGet, "/api/projects/"+p.ID, token, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestPreview_NoEntryFile(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.register(t, "noentry@example.com")

	resp := env.do(t, http.MethodPost, "/api/projects", token, map[string]string{"name": "empty"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	p := decode[model.Project](t, resp)

	resp = env.do(t, http.MethodGet, "/api/projects/"+p.ID+"/preview", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "No App.js file found", decode[map[string]string](t, resp)["message"])
}

func TestGenerateStream(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.register(t, "stream@example.com")

	resp := env.do(t, http.MethodPost, "/api/generate/stream", token, map[string]string{"prompt": "todo list"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	evs := events(t, resp)
	require.NotEmpty(t, evs)
	assert.Equal(t, "[DONE]", evs[len(evs)-1][1])

	var steps int
	var project model.Project
	for _, ev := range evs {
		switch ev[0] {
		case "progress":
			steps++
		case "project":
			require.NoError(t, json.Unmarshal([]byte(ev[1]), &project))
		}
	}
	assert.Equal(t, 4, steps)
	assert.NotEmpty(t, project.ID)
}

func TestDeploy(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.register(t, "deploy@example.com")
	p := env.generate(t, token, "landing page")

	resp := env.do(t, http.MethodPost, "/api/projects/"+p.ID+"/deploy?platform=stub", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[deploy.Result](t, resp)
	require.True(t, res.Success)
	require.NotEmpty(t, res.DeploymentID)

	resp = env.do(t, http.MethodGet, "/api/deployments/"+res.DeploymentID+"/status", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[service.StatusResult](t, resp)
	assert.Equal(t, "READY", st.Provider.Status)

	resp = env.do(t, http.MethodPost, "/api/projects/"+p.ID+"/deploy?platform=nowhere", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	failed := decode[deploy.Result](t, resp)
	assert.False(t, failed.Success)
	assert.Equal(t, "Unknown platform: nowhere", failed.Error)
}

func TestDeployStream(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.register(t, "stages@example.com")
	p := env.generate(t, token, "landing page")

	resp := env.do(t, http.MethodGet, "/api/projects/"+p.ID+"/deploy/stream?platform=stub", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var last []deploy.Stage
	var result deploy.Result
	for _, ev := range events(t, resp) {
		switch ev[0] {
		case "stages":
			var e struct {
				Stages []deploy.Stage `json:"stages"`
			}
			require.NoError(t, json.Unmarshal([]byte(ev[1]), &e))
			last = e.Stages
		case "result":
			require.NoError(t, json.Unmarshal([]byte(ev[1]), &result))
		}
	}

	require.Len(t, last, len(deploy.DefaultStages()))
	for _, s := range last {
		assert.Equal(t, deploy.StageSuccess, s.Status, s.Key)
	}
	assert.True(t, result.Success)
}

func TestExport_Inline(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.register(t, "export@example.com")
	p := env.generate(t, token, "notes app")

	resp := env.do(t, http.MethodPost, "/api/projects/"+p.ID+"/export", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[export.Result](t, resp)
	assert.True(t, res.ExportReady)
	assert.Len(t, res.Files, len(p.Files))

	resp = env.do(t, http.MethodPost, "/api/projects/"+p.ID+"/export/github", token, map[string]string{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pkg := decode[service.GitHubPackage](t, resp)
	assert.True(t, pkg.DeploymentReady)

	resp = env.do(t, http.MethodPost, "/api/github/push", token, map[string]string{"owner": "o", "repo": "r"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatMessage(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodPost, "/api/chat/message", "", map[string]string{"message": "hello world"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var data []string
	for _, ev := range events(t, resp) {
		data = append(data, ev[1])
	}
	assert.Equal(t, []string{"Echo:", "hello", "world", "[DONE]"}, data)

	resp = env.do(t, http.MethodPost, "/api/chat/message", "", map[string]string{"message": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, ratelimit.NewMemoryLimiter(2, time.Minute))

	for i := 0; i < 2; i++ {
		resp := env.do(t, http.MethodPost, "/api/chat/message", "", map[string]string{"message": "hi"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		io.Copy(io.Discard, resp.Body)
	}
	resp := env.do(t, http.MethodPost, "/api/chat/message", "", map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil)

	req, err := http.NewRequest(http.MethodOptions, env.srv.URL+"/api/projects", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}
