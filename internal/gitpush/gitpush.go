// Package gitpush commits a project's files to a GitHub repository through
// the git data API: one blob per file, one tree, one commit, one ref update.
package gitpush

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sakif/app-builder/internal/apperror"
	"github.com/sakif/app-builder/internal/model"
)

const (
	githubAPI = "https://api.github.com"

	DefaultBranch  = "main"
	DefaultMessage = "Update from App Builder"
)

// Request names the target repository. IncludePaths limits the pushed
// files to exact paths or directory prefixes; empty pushes everything.
type Request struct {
	Token         string   `json:"token"`
	Owner         string   `json:"owner"`
	Repo          string   `json:"repo"`
	Branch        string   `json:"branch"`
	CommitMessage string   `json:"commit_message"`
	IncludePaths  []string `json:"include_paths"`
}

// Validate trims the request and fills defaults.
func (r *Request) Validate() error {
	r.Token = strings.TrimSpace(r.Token)
	r.Owner = strings.TrimSpace(r.Owner)
	r.Repo = strings.TrimSpace(r.Repo)
	r.Branch = strings.TrimSpace(r.Branch)
	r.CommitMessage = strings.TrimSpace(r.CommitMessage)

	switch {
	case r.Token == "":
		return apperror.ValidationFailed("token", "a GitHub personal access token is required")
	case r.Owner == "" || r.Repo == "":
		return apperror.ValidationFailed("repo", "owner and repository are required")
	}
	if r.Branch == "" {
		r.Branch = DefaultBranch
	}
	if r.CommitMessage == "" {
		r.CommitMessage = DefaultMessage
	}
	return nil
}

// Result is returned after the ref has been moved to the new commit.
type Result struct {
	CommitSHA   string `json:"commit_sha"`
	FilesPushed int    `json:"files_pushed"`
	Branch      string `json:"branch"`
	URL         string `json:"url"`
}

// Filter keeps files whose path equals an include path or lies under it.
func Filter(files []model.File, include []string) []model.File {
	if len(include) == 0 {
		return files
	}
	prefixes := make([]string, 0, len(include))
	for _, p := range include {
		p = strings.Trim(strings.TrimPrefix(strings.TrimSpace(p), "./"), "/")
		if p != "" {
			prefixes = append(prefixes, p)
		}
	}

	var out []model.File
	for _, f := range files {
		path := strings.TrimPrefix(f.Path, "/")
		for _, p := range prefixes {
			if path == p || strings.HasPrefix(path, p+"/") {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// Client talks to the GitHub REST API. Blob uploads run concurrently and
// share one rate limiter.
type Client struct {
	baseURL     string
	http        *http.Client
	limiter     *rate.Limiter
	concurrency int
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a GitHub Enterprise or test server.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(url, "/") }
}

func New(opts ...Option) *Client {
	c := &Client{
		baseURL:     githubAPI,
		http:        &http.Client{Timeout: 60 * time.Second},
		limiter:     rate.NewLimiter(rate.Every(100*time.Millisecond), 5),
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Push commits files on top of the branch head. A missing branch is
// created from the default branch; an empty repository is initialised.
func (c *Client) Push(ctx context.Context, req Request, files []model.File) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	files = Filter(files, req.IncludePaths)
	if len(files) == 0 {
		return nil, apperror.ValidationFailed("include_paths", "no project files match include_paths")
	}

	repo := "/repos/" + url.PathEscape(req.Owner) + "/" + url.PathEscape(req.Repo)

	head, exists, err := c.branchHead(ctx, req, repo)
	if err != nil {
		return nil, err
	}

	var commit struct {
		Tree struct {
			SHA string `json:"sha"`
		} `json:"tree"`
	}
	if err := c.do(ctx, req.Token, http.MethodGet, repo+"/git/commits/"+head, nil, &commit); err != nil {
		return nil, fmt.Errorf("loading head commit: %w", err)
	}

	shas, err := c.createBlobs(ctx, req.Token, repo, files)
	if err != nil {
		return nil, err
	}

	type treeEntry struct {
		Path string `json:"path"`
		Mode string `json:"mode"`
		Type string `json:"type"`
		SHA  string `json:"sha"`
	}
	entries := make([]treeEntry, len(files))
	for i, f := range files {
		entries[i] = treeEntry{Path: strings.TrimPrefix(f.Path, "/"), Mode: "100644", Type: "blob", SHA: shas[i]}
	}

	var tree struct {
		SHA string `json:"sha"`
	}
	if err := c.do(ctx, req.Token, http.MethodPost, repo+"/git/trees",
		map[string]any{"base_tree": commit.Tree.SHA, "tree": entries}, &tree); err != nil {
		return nil, fmt.Errorf("creating tree: %w", err)
	}

	var newCommit struct {
		SHA string `json:"sha"`
	}
	if err := c.do(ctx, req.Token, http.MethodPost, repo+"/git/commits",
		map[string]any{"message": req.CommitMessage, "tree": tree.SHA, "parents": []string{head}}, &newCommit); err != nil {
		return nil, fmt.Errorf("creating commit: %w", err)
	}

	if exists {
		err = c.do(ctx, req.Token, http.MethodPatch, repo+"/git/refs/heads/"+req.Branch,
			map[string]any{"sha": newCommit.SHA, "force": false}, nil)
	} else {
		err = c.do(ctx, req.Token, http.MethodPost, repo+"/git/refs",
			map[string]any{"ref": "refs/heads/" + req.Branch, "sha": newCommit.SHA}, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("updating branch %s: %w", req.Branch, err)
	}

	return &Result{
		CommitSHA:   newCommit.SHA,
		FilesPushed: len(files),
		Branch:      req.Branch,
		URL:         fmt.Sprintf("https://github.com/%s/%s/commit/%s", req.Owner, req.Repo, newCommit.SHA),
	}, nil
}

// branchHead returns the commit the push builds on and whether the branch
// already exists.
func (c *Client) branchHead(ctx context.Context, req Request, repo string) (string, bool, error) {
	sha, err := c.refSHA(ctx, req.Token, repo, req.Branch)
	if err == nil {
		return sha, true, nil
	}
	if !isStatus(err, http.StatusNotFound, http.StatusConflict) {
		return "", false, fmt.Errorf("loading branch %s: %w", req.Branch, err)
	}

	var info struct {
		DefaultBranch string `json:"default_branch"`
	}
	if err := c.do(ctx, req.Token, http.MethodGet, repo, nil, &info); err != nil {
		return "", false, fmt.Errorf("loading repository: %w", err)
	}
	if info.DefaultBranch == "" {
		info.DefaultBranch = DefaultBranch
	}

	sha, err = c.refSHA(ctx, req.Token, repo, info.DefaultBranch)
	if err == nil {
		return sha, info.DefaultBranch == req.Branch, nil
	}
	if !isStatus(err, http.StatusNotFound, http.StatusConflict) {
		return "", false, fmt.Errorf("loading branch %s: %w", info.DefaultBranch, err)
	}

	// The git data API refuses to work on an empty repository, so the
	// first commit goes through the contents API.
	if err := c.do(ctx, req.Token, http.MethodPut, repo+"/contents/.gitkeep", map[string]any{
		"message": "Initialize repository",
		"content": base64.StdEncoding.EncodeToString(nil),
		"branch":  req.Branch,
	}, nil); err != nil {
		return "", false, fmt.Errorf("initializing empty repository: %w", err)
	}
	sha, err = c.refSHA(ctx, req.Token, repo, req.Branch)
	if err != nil {
		return "", false, fmt.Errorf("loading branch %s: %w", req.Branch, err)
	}
	return sha, true, nil
}

func (c *Client) refSHA(ctx context.Context, token, repo, branch string) (string, error) {
	var ref struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	if err := c.do(ctx, token, http.MethodGet, repo+"/git/ref/heads/"+branch, nil, &ref); err != nil {
		return "", err
	}
	return ref.Object.SHA, nil
}

// createBlobs uploads every file and returns blob SHAs in file order.
func (c *Client) createBlobs(ctx context.Context, token, repo string, files []model.File) ([]string, error) {
	shas := make([]string, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, f := range files {
		g.Go(func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
			var blob struct {
				SHA string `json:"sha"`
			}
			if err := c.do(ctx, token, http.MethodPost, repo+"/git/blobs",
				map[string]string{"content": f.Content, "encoding": "utf-8"}, &blob); err != nil {
				return fmt.Errorf("creating blob for %s: %w", f.Path, err)
			}
			shas[i] = blob.SHA
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return shas, nil
}

// apiError is a non-2xx GitHub response.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("github: %d %s", e.Status, e.Message)
}

func isStatus(err error, codes ...int) bool {
	var ae *apiError
	if !errors.As(err, &ae) {
		return false
	}
	for _, c := range codes {
		if ae.Status == c {
			return true
		}
	}
	return false
}

func (c *Client) do(ctx context.Context, token, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	// The GitHub token is a request field; it must never surface as a 401
	// of the builder API.
	if resp.StatusCode == http.StatusUnauthorized {
		return apperror.ValidationFailed("token", "GitHub rejected the access token")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var msg struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&msg)
		return &apiError{Status: resp.StatusCode, Message: msg.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
