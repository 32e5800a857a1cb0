// Package export packages a project's files as a zip archive and, when object
// storage is configured, publishes it behind a short-lived download URL.
package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sakif/app-builder/internal/model"
)

// archiveTime is stamped on every entry so identical file sets produce
// identical archives.
var archiveTime = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Zip writes files into a zip archive in path order. Leading slashes are
// removed and paths escaping the archive root are rejected.
func Zip(files []model.File) ([]byte, error) {
	sorted := make([]model.File, len(files))
	copy(sorted, files)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range sorted {
		name := strings.TrimLeft(f.Path, "/")
		if name == "" || name == ".." || strings.HasPrefix(name, "../") || strings.Contains(name, "/../") {
			return nil, fmt.Errorf("export: invalid path %q", f.Path)
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: archiveTime,
		})
		if err != nil {
			return nil, fmt.Errorf("export: adding %s: %w", name, err)
		}
		if _, err := w.Write([]byte(f.Content)); err != nil {
			return nil, fmt.Errorf("export: writing %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("export: closing archive: %w", err)
	}
	return buf.Bytes(), nil
}
