package model

import "time"

// Snapshot is an immutable copy of a project's file set.
// Files is omitted from list responses.
type Snapshot struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
	FileCount   int       `json:"file_count"`
	TotalSize   int       `json:"total_size"`
	AutoCreated bool      `json:"auto_created"`
	ContentHash string    `json:"content_hash"`
	Files       []File    `json:"files,omitempty"`
}

// SnapshotDiff lists the paths that differ between two snapshots.
type SnapshotDiff struct {
	From     string   `json:"from"`
	To       string   `json:"to"`
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Modified []string `json:"modified"`
}
