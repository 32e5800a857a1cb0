package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/app-builder/internal/apperror"
	"github.com/sakif/app-builder/internal/model"
	"github.com/sakif/app-builder/internal/repository"
)

var _ repository.DeploymentRepository = (*DB)(nil)

const deploymentColumns = `id, project_id, platform, status, url, provider_id, message, error, created_at`

// CreateDeployment records a deploy outcome. The caller assigns ID.
func (db *DB) CreateDeployment(ctx context.Context, d *model.Deployment) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	// stored as text; a single zone keeps ORDER BY created_at chronological
	d.CreatedAt = d.CreatedAt.UTC()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO deployments (`+deploymentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ProjectID, d.Platform, d.Status, d.URL, d.ProviderID, d.Message, d.Error, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating deployment: %w", err)
	}
	return nil
}

// GetDeployment returns a deployment by ID.
func (db *DB) GetDeployment(ctx context.Context, id string) (*model.Deployment, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+deploymentColumns+` FROM deployments WHERE id = ?`, id)
	d, err := scanDeployment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("deployment", id)
		}
		return nil, fmt.Errorf("sqlite: getting deployment %s: %w", id, err)
	}
	return d, nil
}

func (db *DB) latestDeployment(ctx context.Context, projectID string) (*model.Deployment, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+deploymentColumns+` FROM deployments
		 WHERE project_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, projectID)
	d, err := scanDeployment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("deployment", "latest of "+projectID)
		}
		return nil, fmt.Errorf("sqlite: getting latest deployment of %s: %w", projectID, err)
	}
	return d, nil
}

func scanDeployment(s scanner) (*model.Deployment, error) {
	var d model.Deployment
	if err := s.Scan(
		&d.ID, &d.ProjectID, &d.Platform, &d.Status, &d.URL, &d.ProviderID, &d.Message, &d.Error, &d.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &d, nil
}
