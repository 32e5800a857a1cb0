package model

import "time"

// Deployment platforms.
const (
	PlatformVercel  = "vercel"
	PlatformNetlify = "netlify"
	PlatformRailway = "railway"
	PlatformDocker  = "docker"
)

// Deployment records the outcome of one deploy call for a project.
type Deployment struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	Platform   string    `json:"platform"`
	Status     string    `json:"status"`
	URL        string    `json:"url,omitempty"`
	ProviderID string    `json:"deployment_id,omitempty"`
	Message    string    `json:"message,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
