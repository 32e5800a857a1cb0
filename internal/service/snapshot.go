package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/sakif/app-builder/internal/apperror"
	"github.com/sakif/app-builder/internal/model"
	"github.com/sakif/app-builder/internal/repository"
)

const (
	SnapshotListLimit   = 50
	DefaultKeepAuto     = 50
	autoSnapshotMessage = "Auto-save"
	manualSnapshotMsg   = "Manual snapshot"
	restoreSnapshotMsg  = "Auto-save before restore"
)

// ContentHash is the SHA-256 over files sorted by path, each written as
// "path:content".
func ContentHash(files []model.File) string {
	sorted := make([]model.File, len(files))
	copy(sorted, files)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	h := sha256.New()
	for _, f := range sorted {
		h.Write([]byte(f.Path))
		h.Write([]byte{':'})
		h.Write([]byte(f.Content))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SnapshotID formats snap_YYYYmmdd_HHMMSS_<hash8>.
func SnapshotID(t time.Time, hash string) string {
	if len(hash) > 8 {
		hash = hash[:8]
	}
	return "snap_" + t.UTC().Format("20060102_150405") + "_" + hash
}

// SnapshotService is the version history of projects. Callers authorize
// access to the project before calling in.
type SnapshotService struct {
	snapshots repository.SnapshotRepository
	projects  repository.ProjectRepository
	keepAuto  int
	now       func() time.Time
	logger    *slog.Logger
}

func NewSnapshotService(snapshots repository.SnapshotRepository, projects repository.ProjectRepository, keepAuto int, logger *slog.Logger) *SnapshotService {
	if keepAuto <= 0 {
		keepAuto = DefaultKeepAuto
	}
	return &SnapshotService{
		snapshots: snapshots,
		projects:  projects,
		keepAuto:  keepAuto,
		now:       time.Now,
		logger:    logger,
	}
}

// Create snapshots the project's current files. When nothing changed since
// the latest snapshot, that snapshot is returned with created false.
func (s *SnapshotService) Create(ctx context.Context, p *model.Project, message string, auto bool) (*model.Snapshot, bool, error) {
	hash := ContentHash(p.Files)

	latest, err := s.snapshots.LatestSnapshot(ctx, p.ID)
	switch {
	case err == nil && latest.ContentHash == hash:
		return latest, false, nil
	case err != nil && !errors.Is(err, apperror.ErrNotFound):
		return nil, false, fmt.Errorf("loading latest snapshot: %w", err)
	}

	message = strings.TrimSpace(message)
	if message == "" {
		message = manualSnapshotMsg
		if auto {
			message = autoSnapshotMessage
		}
	}

	now := s.now()
	files := make([]model.File, len(p.Files))
	copy(files, p.Files)
	total := 0
	for _, f := range files {
		total += len(f.Content)
	}

	snap := &model.Snapshot{
		ProjectID:   p.ID,
		Message:     message,
		CreatedAt:   now.UTC(),
		FileCount:   len(files),
		TotalSize:   total,
		AutoCreated: auto,
		ContentHash: hash,
		Files:       files,
	}
	if err := s.insert(ctx, snap, SnapshotID(now, hash)); err != nil {
		return nil, false, fmt.Errorf("creating snapshot: %w", err)
	}

	s.logger.Info("snapshot created",
		slog.String("project_id", p.ID),
		slog.String("snapshot_id", snap.ID),
		slog.Bool("auto", auto),
		slog.Int("files", snap.FileCount),
	)
	return snap, true, nil
}

// maxIDAttempts bounds the "_N" suffixes tried when an id is taken.
const maxIDAttempts = 10

// insert stores snap under base, or base_2, base_3... when a snapshot of
// the same project already uses the id (same second, same files).
func (s *SnapshotService) insert(ctx context.Context, snap *model.Snapshot, base string) error {
	var err error
	for n := 1; n <= maxIDAttempts; n++ {
		snap.ID = base
		if n > 1 {
			snap.ID = fmt.Sprintf("%s_%d", base, n)
		}
		err = s.snapshots.CreateSnapshot(ctx, snap)
		if !errors.Is(err, apperror.ErrConflict) {
			return err
		}
	}
	return err
}

// List returns the newest snapshots without file contents.
func (s *SnapshotService) List(ctx context.Context, projectID string) ([]model.Snapshot, error) {
	snaps, err := s.snapshots.ListSnapshots(ctx, projectID, SnapshotListLimit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	return snaps, nil
}

func (s *SnapshotService) Get(ctx context.Context, projectID, id string) (*model.Snapshot, error) {
	snap, err := s.snapshots.GetSnapshot(ctx, projectID, id)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot %s: %w", id, err)
	}
	return snap, nil
}

// Restore saves the current state as an automatic snapshot, then replaces
// the project's files with the snapshot's. Last write wins.
func (s *SnapshotService) Restore(ctx context.Context, p *model.Project, id string) (*model.Project, error) {
	snap, err := s.snapshots.GetSnapshot(ctx, p.ID, id)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot %s: %w", id, err)
	}

	if _, _, err := s.Create(ctx, p, restoreSnapshotMsg, true); err != nil {
		return nil, fmt.Errorf("saving state before restore: %w", err)
	}

	p.Files = make([]model.File, len(snap.Files))
	copy(p.Files, snap.Files)
	p.LastRestoredFrom = snap.ID
	if err := s.projects.UpdateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("restoring snapshot %s: %w", id, err)
	}

	s.logger.Info("snapshot restored", slog.String("project_id", p.ID), slog.String("snapshot_id", snap.ID))
	return p, nil
}

// Compare lists paths added, removed and modified going from one snapshot
// to the other. Each list is sorted.
func (s *SnapshotService) Compare(ctx context.Context, projectID, fromID, toID string) (*model.SnapshotDiff, error) {
	if fromID == "" || toID == "" {
		return nil, apperror.ValidationFailed("from", "both from and to snapshot ids are required")
	}
	from, err := s.snapshots.GetSnapshot(ctx, projectID, fromID)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot %s: %w", fromID, err)
	}
	to, err := s.snapshots.GetSnapshot(ctx, projectID, toID)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot %s: %w", toID, err)
	}
	return Diff(from, to), nil
}

// Diff compares two file sets by path and content.
func Diff(from, to *model.Snapshot) *model.SnapshotDiff {
	before := make(map[string]string, len(from.Files))
	for _, f := range from.Files {
		before[f.Path] = f.Content
	}
	after := make(map[string]string, len(to.Files))
	for _, f := range to.Files {
		after[f.Path] = f.Content
	}

	d := &model.SnapshotDiff{From: from.ID, To: to.ID, Added: []string{}, Removed: []string{}, Modified: []string{}}
	for path, content := range after {
		old, ok := before[path]
		switch {
		case !ok:
			d.Added = append(d.Added, path)
		case old != content:
			d.Modified = append(d.Modified, path)
		}
	}
	for path := range before {
		if _, ok := after[path]; !ok {
			d.Removed = append(d.Removed, path)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Strings(d.Modified)
	return d
}

// Prune deletes automatic snapshots beyond the newest keepAuto. Manual
// snapshots are never pruned.
func (s *SnapshotService) Prune(ctx context.Context, projectID string) (int64, error) {
	all, err := s.snapshots.ListSnapshots(ctx, projectID, 0)
	if err != nil {
		return 0, fmt.Errorf("listing snapshots: %w", err)
	}

	var stale []string
	autos := 0
	for _, snap := range all {
		if !snap.AutoCreated {
			continue
		}
		autos++
		if autos > s.keepAuto {
			stale = append(stale, snap.ID)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	n, err := s.snapshots.DeleteSnapshots(ctx, projectID, stale)
	if err != nil {
		return 0, fmt.Errorf("deleting snapshots: %w", err)
	}
	return n, nil
}

// PruneAll prunes every project that has snapshots and returns the number
// deleted per project. A failing project is logged and skipped.
func (s *SnapshotService) PruneAll(ctx context.Context) (map[string]int64, error) {
	ids, err := s.snapshots.SnapshotProjectIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing projects with snapshots: %w", err)
	}

	deleted := make(map[string]int64)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		n, err := s.Prune(ctx, id)
		if err != nil {
			s.logger.Error("snapshot prune failed", slog.String("project_id", id), slog.String("error", err.Error()))
			continue
		}
		if n > 0 {
			deleted[id] = n
		}
	}
	return deleted, nil
}
