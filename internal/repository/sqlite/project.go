package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/app-builder/internal/apperror"
	"github.com/sakif/app-builder/internal/model"
	"github.com/sakif/app-builder/internal/repository"
)

var _ repository.ProjectRepository = (*DB)(nil)

const projectColumns = `id, user_id, name, description, prompt, tech_frontend, tech_backend, tech_database,
	status, required_services, last_restored_from, created_at, updated_at`

// CreateProject inserts a project and its files in one transaction.
// An ID is generated when the caller did not set one.
func (db *DB) CreateProject(ctx context.Context, p *model.Project) error {
	if p.ID == "" {
		p.ID = xid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = model.ProjectActive
	}

	services, err := json.Marshal(nonNil(p.RequiredServices))
	if err != nil {
		return fmt.Errorf("sqlite: encoding required services: %w", err)
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO projects (`+projectColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.UserID, p.Name, p.Description, p.Prompt,
			p.TechStack.Frontend, p.TechStack.Backend, p.TechStack.Database,
			p.Status, string(services), p.LastRestoredFrom, p.CreatedAt, p.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict("project", p.ID)
			}
			return fmt.Errorf("sqlite: creating project: %w", err)
		}
		return insertFiles(ctx, tx, p.ID, p.Files)
	})
}

// GetProject loads a project, its files in order and its latest deployment.
func (db *DB) GetProject(ctx context.Context, id string) (*model.Project, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("project", id)
		}
		return nil, fmt.Errorf("sqlite: getting project %s: %w", id, err)
	}

	files, err := db.projectFiles(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Files = files

	d, err := db.latestDeployment(ctx, id)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}
	p.Deployment = d

	return p, nil
}

// ListProjects returns a user's projects newest first. Files are not loaded.
func (db *DB) ListProjects(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Project, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects
		 WHERE user_id = ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing projects: %w", err)
	}
	defer rows.Close()

	projects := make([]model.Project, 0, limit)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning project row: %w", err)
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating projects: %w", err)
	}
	return projects, nil
}

// UpdateProject saves metadata and replaces the whole file set.
func (db *DB) UpdateProject(ctx context.Context, p *model.Project) error {
	p.UpdatedAt = time.Now().UTC()

	services, err := json.Marshal(nonNil(p.RequiredServices))
	if err != nil {
		return fmt.Errorf("sqlite: encoding required services: %w", err)
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE projects
			 SET name = ?, description = ?, prompt = ?, tech_frontend = ?, tech_backend = ?,
			     tech_database = ?, status = ?, required_services = ?, last_restored_from = ?, updated_at = ?
			 WHERE id = ?`,
			p.Name, p.Description, p.Prompt,
			p.TechStack.Frontend, p.TechStack.Backend, p.TechStack.Database,
			p.Status, string(services), p.LastRestoredFrom, p.UpdatedAt, p.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating project %s: %w", p.ID, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if n == 0 {
			return apperror.NotFound("project", p.ID)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM project_files WHERE project_id = ?`, p.ID); err != nil {
			return fmt.Errorf("sqlite: clearing files of %s: %w", p.ID, err)
		}
		return insertFiles(ctx, tx, p.ID, p.Files)
	})
}

// DeleteProject removes a project. Files, snapshots and deployments cascade.
func (db *DB) DeleteProject(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting project %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("project", id)
	}
	return nil
}

func (db *DB) projectFiles(ctx context.Context, projectID string) ([]model.File, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT path, content, language FROM project_files
		 WHERE project_id = ? ORDER BY position`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing files of %s: %w", projectID, err)
	}
	defer rows.Close()

	files := []model.File{}
	for rows.Next() {
		var f model.File
		if err := rows.Scan(&f.Path, &f.Content, &f.Language); err != nil {
			return nil, fmt.Errorf("sqlite: scanning file row: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating files: %w", err)
	}
	return files, nil
}

func insertFiles(ctx context.Context, tx *sql.Tx, projectID string, files []model.File) error {
	for i, f := range files {
		lang := f.Language
		if lang == "" {
			lang = model.LanguageFor(f.Path)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO project_files (project_id, path, content, language, position)
			 VALUES (?, ?, ?, ?, ?)`,
			projectID, f.Path, f.Content, lang, i,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.ValidationFailed("files", fmt.Sprintf("duplicate file path %q", f.Path))
			}
			return fmt.Errorf("sqlite: inserting file %s: %w", f.Path, err)
		}
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanProject(s scanner) (*model.Project, error) {
	var p model.Project
	var services string
	err := s.Scan(
		&p.ID, &p.UserID, &p.Name, &p.Description, &p.Prompt,
		&p.TechStack.Frontend, &p.TechStack.Backend, &p.TechStack.Database,
		&p.Status, &services, &p.LastRestoredFrom, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if services != "" {
		if err := json.Unmarshal([]byte(services), &p.RequiredServices); err != nil {
			return nil, fmt.Errorf("decoding required services: %w", err)
		}
	}
	return &p, nil
}

func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
