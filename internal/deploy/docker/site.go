package docker

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sakif/app-builder/internal/model"
	"github.com/sakif/app-builder/internal/preview"
)

var siteTime = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// siteArchive packs the project files plus a rendered index.html into the
// tar stream CopyToContainer expects. Projects without an App.js entry get
// no index.html and are rejected.
func siteArchive(files []model.File) ([]byte, error) {
	index, err := preview.Build(files)
	if err != nil {
		return nil, err
	}

	entries := map[string]string{"index.html": index}
	for _, f := range files {
		name := strings.TrimLeft(f.Path, "/")
		if name == "" || strings.Contains(name, "..") {
			return nil, fmt.Errorf("docker: invalid path %q", f.Path)
		}
		if name == "index.html" {
			continue
		}
		entries[name] = f.Content
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, name := range names {
		content := entries[name]
		hdr := &tar.Header{
			Name:    name,
			Mode:    0o644,
			Size:    int64(len(content)),
			ModTime: siteTime,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("docker: writing header %s: %w", name, err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			return nil, fmt.Errorf("docker: writing %s: %w", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("docker: closing archive: %w", err)
	}
	return buf.Bytes(), nil
}

func isNoEntry(err error) bool {
	return errors.Is(err, preview.ErrNoEntry)
}
