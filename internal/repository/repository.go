// Package repository declares the storage interfaces the service layer
// depends on. Implementations live in subpackages (see repository/sqlite).
package repository

import (
	"context"

	"github.com/sakif/app-builder/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

type UserRepository interface {
	// CreateUser inserts a password user. Duplicate emails return apperror.ErrConflict.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// UpsertOAuthUser inserts or refreshes a user keyed by (Provider, ProviderID).
	UpsertOAuthUser(ctx context.Context, user *model.User) error
}

type ProjectRepository interface {
	CreateProject(ctx context.Context, project *model.Project) error
	// GetProject returns the project with its files and latest deployment.
	GetProject(ctx context.Context, id string) (*model.Project, error)
	// ListProjects returns a user's projects newest first, without file contents.
	ListProjects(ctx context.Context, userID string, opts ListOptions) ([]model.Project, error)
	// UpdateProject saves metadata and replaces the file set.
	UpdateProject(ctx context.Context, project *model.Project) error
	DeleteProject(ctx context.Context, id string) error
}

type SnapshotRepository interface {
	CreateSnapshot(ctx context.Context, snap *model.Snapshot) error
	GetSnapshot(ctx context.Context, projectID, id string) (*model.Snapshot, error)
	LatestSnapshot(ctx context.Context, projectID string) (*model.Snapshot, error)
	// ListSnapshots returns snapshots newest first without files. limit <= 0 means all.
	ListSnapshots(ctx context.Context, projectID string, limit int) ([]model.Snapshot, error)
	DeleteSnapshots(ctx context.Context, projectID string, ids []string) (int64, error)
	SnapshotProjectIDs(ctx context.Context) ([]string, error)
}

type DeploymentRepository interface {
	CreateDeployment(ctx context.Context, d *model.Deployment) error
	GetDeployment(ctx context.Context, id string) (*model.Deployment, error)
}
