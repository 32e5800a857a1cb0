// Package docker deploys a project locally: the rendered preview and the
// project files are copied into an nginx container published on a random
// host port.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/sakif/app-builder/internal/deploy"
	"github.com/sakif/app-builder/internal/model"
)

const (
	labelProject = "app-builder.project"
	sitePort     = nat.Port("80/tcp")
)

// Provider implements deploy.Provider with the local Docker engine.
// At most one container runs per project; redeploying replaces it.
type Provider struct {
	cli    *client.Client
	config Config
	logger *slog.Logger

	mu      sync.Mutex
	running map[string]string // project ID -> container ID
}

var _ deploy.Provider = (*Provider)(nil)

// New connects to the engine from the environment and pulls the image.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Provider, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	pullCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	logger.Info("ensuring docker image is available", slog.String("image", cfg.Image))
	reader, err := cli.ImagePull(pullCtx, cfg.Image, image.PullOptions{})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()
	// the pull only completes once the progress stream is drained
	_, _ = io.Copy(io.Discard, reader)
	logger.Info("docker image is ready")

	return &Provider{
		cli:     cli,
		config:  cfg,
		logger:  logger,
		running: make(map[string]string),
	}, nil
}

func (p *Provider) Name() string { return model.PlatformDocker }

// Deploy starts a fresh container for the project and returns its URL.
func (p *Provider) Deploy(ctx context.Context, b deploy.Bundle) (*deploy.Result, error) {
	site, err := siteArchive(b.Files)
	if err != nil {
		if isNoEntry(err) {
			return &deploy.Result{Success: false, Platform: model.PlatformDocker, Error: err.Error()}, nil
		}
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if old, ok := p.running[b.ProjectID]; ok {
		p.removeContainer(old)
		delete(p.running, b.ProjectID)
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.StartTimeout)
	defer cancel()

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			sitePort: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: ""}},
		},
		Resources: container.Resources{
			Memory:   p.config.MemoryLimit,
			NanoCPUs: int64(p.config.CPULimit * 1e9),
		},
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
	}

	resp, err := p.cli.ContainerCreate(ctx, &container.Config{
		Image:        p.config.Image,
		ExposedPorts: nat.PortSet{sitePort: struct{}{}},
		Labels:       map[string]string{labelProject: b.ProjectID},
	}, hostConfig, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("ContainerCreate failed: %w", err)
	}

	if err := p.cli.CopyToContainer(ctx, resp.ID, p.config.HTMLDir, bytes.NewReader(site), container.CopyToContainerOptions{}); err != nil {
		p.removeContainer(resp.ID)
		return nil, fmt.Errorf("CopyToContainer failed: %w", err)
	}

	if err := p.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		p.removeContainer(resp.ID)
		return nil, fmt.Errorf("ContainerStart failed: %w", err)
	}

	info, err := p.cli.ContainerInspect(ctx, resp.ID)
	if err != nil {
		p.removeContainer(resp.ID)
		return nil, fmt.Errorf("ContainerInspect failed: %w", err)
	}
	var port string
	if info.NetworkSettings != nil {
		port = hostPort(info.NetworkSettings.Ports)
	}
	if port == "" {
		p.removeContainer(resp.ID)
		return nil, fmt.Errorf("container %s has no published port", shortID(resp.ID))
	}

	p.running[b.ProjectID] = resp.ID
	p.logger.Info("project deployed to container",
		slog.String("project_id", b.ProjectID),
		slog.String("container", shortID(resp.ID)),
		slog.String("port", port),
	)

	return &deploy.Result{
		Success:      true,
		Platform:     model.PlatformDocker,
		URL:          siteURL(p.config.PublicHost, port),
		DeploymentID: resp.ID,
		Status:       "running",
	}, nil
}

// Status reports the container state, e.g. running or exited.
func (p *Provider) Status(ctx context.Context, id string) (*deploy.Status, error) {
	info, err := p.cli.ContainerInspect(ctx, id)
	if err != nil {
		if client.IsErrNotFound(err) {
			return &deploy.Status{Status: "unknown"}, nil
		}
		return nil, fmt.Errorf("ContainerInspect failed: %w", err)
	}
	st := &deploy.Status{Status: "unknown", Created: info.Created}
	if info.State != nil {
		st.Status = info.State.Status
	}
	if info.NetworkSettings != nil {
		if port := hostPort(info.NetworkSettings.Ports); port != "" {
			st.URL = siteURL(p.config.PublicHost, port)
		}
	}
	return st, nil
}

// Close removes every container this provider started and closes the client.
func (p *Provider) Close() error {
	p.mu.Lock()
	for projectID, id := range p.running {
		p.removeContainer(id)
		delete(p.running, projectID)
	}
	p.mu.Unlock()
	return p.cli.Close()
}

// removeContainer force removes a container by ID.
func (p *Provider) removeContainer(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := p.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
	if err != nil && !client.IsErrNotFound(err) {
		p.logger.Error("failed to remove container", slog.String("id", shortID(id)), slog.String("error", err.Error()))
	}
}

func hostPort(ports nat.PortMap) string {
	for _, b := range ports[sitePort] {
		if b.HostPort != "" {
			return b.HostPort
		}
	}
	return ""
}

func siteURL(host, port string) string {
	return fmt.Sprintf("http://%s:%s", host, port)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
