package docker

import (
	"time"

	"github.com/sakif/app-builder/internal/config"
)

// Config holds the configuration for local container deploys.
type Config struct {
	// Image serves the site; it must serve files from HTMLDir on port 80.
	Image string
	// HTMLDir is the document root inside the container.
	HTMLDir string
	// PublicHost is the host name used in the returned URL.
	PublicHost string
	// MemoryLimit is the maximum amount of memory the container can use (in bytes).
	MemoryLimit int64
	// CPULimit is the number of CPUs the container can use.
	CPULimit float64
	// StartTimeout bounds create, copy and start of one deploy.
	StartTimeout time.Duration
}

// DefaultConfig serves sites from nginx:alpine on localhost.
func DefaultConfig() Config {
	return Config{
		Image:        "nginx:alpine",
		HTMLDir:      "/usr/share/nginx/html",
		PublicHost:   "localhost",
		MemoryLimit:  64 * 1024 * 1024,
		CPULimit:     0.5,
		StartTimeout: 30 * time.Second,
	}
}

// ConfigFrom overlays the deploy section of the app config on DefaultConfig.
func ConfigFrom(cfg config.DeployConfig) Config {
	c := DefaultConfig()
	if cfg.DockerImage != "" {
		c.Image = cfg.DockerImage
	}
	if cfg.DockerHost != "" {
		c.PublicHost = cfg.DockerHost
	}
	return c
}
