// Package deploy publishes a project's files to a hosting platform and
// drives the staged deployment console shown while a deploy is running.
package deploy

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sakif/app-builder/internal/config"
	"github.com/sakif/app-builder/internal/model"
)

// Bundle is what a provider deploys.
type Bundle struct {
	ProjectID string
	Name      string
	Files     []model.File
}

// Result is the outcome of one deploy call. Providers report platform
// failures with Success false and Error set rather than a Go error.
type Result struct {
	Success      bool   `json:"success"`
	Platform     string `json:"platform,omitempty"`
	URL          string `json:"url,omitempty"`
	DeploymentID string `json:"deployment_id,omitempty"`
	Status       string `json:"status,omitempty"`
	Message      string `json:"message,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Status is the provider-side state of a deployment.
type Status struct {
	Status  string `json:"status"`
	URL     string `json:"url,omitempty"`
	Created string `json:"created,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Provider deploys bundles to one platform.
type Provider interface {
	Name() string
	Deploy(ctx context.Context, b Bundle) (*Result, error)
	Status(ctx context.Context, id string) (*Status, error)
}

func failed(platform, msg string) *Result {
	return &Result{Success: false, Platform: platform, Error: msg}
}

func notConfigured(platform string) *Result {
	return failed(platform, strings.ToUpper(platform)+"_TOKEN not configured")
}

// slug turns a project name into a platform project name.
func slug(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 120 * time.Second}
}

// Registry routes deploy calls by platform name.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// NewRegistryFromConfig registers the hosted platforms. A platform without
// a token is still registered and reports itself as not configured.
func NewRegistryFromConfig(cfg config.DeployConfig, extra ...Provider) *Registry {
	providers := []Provider{
		NewVercel(cfg.VercelToken),
		NewNetlify(cfg.NetlifyToken),
		NewRailway(cfg.RailwayToken),
	}
	return NewRegistry(append(providers, extra...)...)
}

// Platforms lists registered platform names in sorted order.
func (r *Registry) Platforms() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Deploy never returns a Go error: transport failures become a failed Result.
func (r *Registry) Deploy(ctx context.Context, platform string, b Bundle) *Result {
	p, ok := r.providers[platform]
	if !ok {
		return failed(platform, "Unknown platform: "+platform)
	}
	res, err := p.Deploy(ctx, b)
	if err != nil {
		return failed(platform, err.Error())
	}
	if res.Platform == "" {
		res.Platform = platform
	}
	return res
}

func (r *Registry) Status(ctx context.Context, platform, id string) (*Status, error) {
	p, ok := r.providers[platform]
	if !ok {
		return &Status{Status: "unknown"}, nil
	}
	st, err := p.Status(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("checking %s deployment %s: %w", platform, id, err)
	}
	return st, nil
}
