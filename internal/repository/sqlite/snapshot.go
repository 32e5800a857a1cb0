package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sakif/app-builder/internal/apperror"
	"github.com/sakif/app-builder/internal/model"
	"github.com/sakif/app-builder/internal/repository"
)

var _ repository.SnapshotRepository = (*DB)(nil)

const snapshotColumns = `id, project_id, message, created_at, file_count, total_size, auto_created, content_hash`

// CreateSnapshot stores a snapshot. The caller assigns ID and CreatedAt.
func (db *DB) CreateSnapshot(ctx context.Context, s *model.Snapshot) error {
	files, err := json.Marshal(s.Files)
	if err != nil {
		return fmt.Errorf("sqlite: encoding snapshot files: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO snapshots (`+snapshotColumns+`, files)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.ProjectID, s.Message, s.CreatedAt.UTC(), s.FileCount, s.TotalSize,
		s.AutoCreated, s.ContentHash, string(files),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("snapshot", s.ID)
		}
		return fmt.Errorf("sqlite: creating snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns a snapshot including its files.
func (db *DB) GetSnapshot(ctx context.Context, projectID, id string) (*model.Snapshot, error) {
	var s model.Snapshot
	var files string
	err := db.conn.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+`, files FROM snapshots WHERE project_id = ? AND id = ?`,
		projectID, id,
	).Scan(
		&s.ID, &s.ProjectID, &s.Message, &s.CreatedAt, &s.FileCount, &s.TotalSize,
		&s.AutoCreated, &s.ContentHash, &files,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("snapshot", id)
		}
		return nil, fmt.Errorf("sqlite: getting snapshot %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(files), &s.Files); err != nil {
		return nil, fmt.Errorf("sqlite: decoding snapshot files: %w", err)
	}
	return &s, nil
}

// LatestSnapshot returns the newest snapshot of a project without files.
func (db *DB) LatestSnapshot(ctx context.Context, projectID string) (*model.Snapshot, error) {
	snaps, err := db.ListSnapshots(ctx, projectID, 1)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, apperror.NotFound("snapshot", "latest of "+projectID)
	}
	return &snaps[0], nil
}

// ListSnapshots returns snapshots newest first, without files.
func (db *DB) ListSnapshots(ctx context.Context, projectID string, limit int) ([]model.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshots
		WHERE project_id = ?
		ORDER BY created_at DESC, rowid DESC`
	args := []any{projectID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing snapshots: %w", err)
	}
	defer rows.Close()

	snaps := []model.Snapshot{}
	for rows.Next() {
		var s model.Snapshot
		if err := rows.Scan(
			&s.ID, &s.ProjectID, &s.Message, &s.CreatedAt, &s.FileCount, &s.TotalSize,
			&s.AutoCreated, &s.ContentHash,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning snapshot row: %w", err)
		}
		snaps = append(snaps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating snapshots: %w", err)
	}
	return snaps, nil
}

// DeleteSnapshots removes the given snapshots of one project and reports how
// many rows were deleted.
func (db *DB) DeleteSnapshots(ctx context.Context, projectID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, projectID)
	for _, id := range ids {
		args = append(args, id)
	}

	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM snapshots WHERE project_id = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting snapshots of %s: %w", projectID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}

// SnapshotProjectIDs lists every project that has at least one snapshot.
func (db *DB) SnapshotProjectIDs(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT DISTINCT project_id FROM snapshots ORDER BY project_id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing snapshot projects: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning project id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating snapshot projects: %w", err)
	}
	return ids, nil
}
