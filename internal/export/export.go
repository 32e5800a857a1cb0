package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/sakif/app-builder/internal/model"
	"github.com/sakif/app-builder/internal/storage"
)

// LinkTTL is how long a presigned download URL stays valid.
const LinkTTL = 15 * time.Minute

const instructions = "Import into your preferred host or push to GitHub."

// Result describes an export. Files is set when no object store is
// configured; DownloadURL otherwise.
type Result struct {
	ProjectID    string       `json:"project_id"`
	Name         string       `json:"name"`
	Files        []model.File `json:"files,omitempty"`
	ExportReady  bool         `json:"export_ready"`
	Instructions string       `json:"instructions"`
	DownloadURL  string       `json:"download_url,omitempty"`
	ObjectKey    string       `json:"object_key,omitempty"`
	ExpiresAt    *time.Time   `json:"expires_at,omitempty"`
	Size         int          `json:"size,omitempty"`
}

// Exporter publishes project archives. A nil store exports inline.
type Exporter struct {
	store storage.ObjectStore
	now   func() time.Time
}

func NewExporter(store storage.ObjectStore) *Exporter {
	return &Exporter{store: store, now: time.Now}
}

// ObjectKey is where the archive of projectID created at t is stored.
func ObjectKey(projectID string, t time.Time) string {
	return fmt.Sprintf("exports/%s/%d.zip", projectID, t.Unix())
}

func (e *Exporter) Export(ctx context.Context, p *model.Project) (*Result, error) {
	res := &Result{
		ProjectID:    p.ID,
		Name:         p.Name,
		ExportReady:  true,
		Instructions: instructions,
	}
	if e.store == nil {
		res.Files = p.Files
		return res, nil
	}

	archive, err := Zip(p.Files)
	if err != nil {
		return nil, err
	}

	now := e.now()
	key := ObjectKey(p.ID, now)
	if err := e.store.Put(ctx, key, bytes.NewReader(archive), int64(len(archive)), "application/zip"); err != nil {
		return nil, fmt.Errorf("uploading export: %w", err)
	}
	link, err := e.store.PresignGet(ctx, key, LinkTTL)
	if err != nil {
		return nil, fmt.Errorf("presigning export: %w", err)
	}

	expires := now.Add(LinkTTL).UTC()
	res.DownloadURL = link
	res.ObjectKey = key
	res.ExpiresAt = &expires
	res.Size = len(archive)
	return res, nil
}
