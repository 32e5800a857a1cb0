package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/sakif/app-builder/internal/codegen"
	"github.com/sakif/app-builder/internal/export"
	"github.com/sakif/app-builder/internal/gitpush"
	"github.com/sakif/app-builder/internal/model"
	"github.com/sakif/app-builder/internal/preview"
	"github.com/sakif/app-builder/internal/scaffold"
)

// canFallBack reports whether err should be answered from local state.
func (c *Client) canFallBack(err error) bool {
	if !c.devMode || err == nil {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// IsOffline reports whether p exists only in the local store.
func IsOffline(p *model.Project) bool {
	return p != nil && p.UserID == scaffold.DevUserID
}

// ListProjects returns the caller's projects. In dev mode a failed call is
// answered with the offline projects.
func (c *Client) ListProjects(ctx context.Context) ([]model.Project, error) {
	var projects []model.Project
	err := c.do(ctx, http.MethodGet, "/projects", nil, &projects)
	if err == nil {
		return projects, nil
	}
	if !c.canFallBack(err) {
		return nil, err
	}
	c.logger.Info("listing offline projects", slog.String("error", err.Error()))
	return c.store.DevProjects()
}

// GetProject loads one project with its files. In dev mode an offline
// project with the same id answers a failed call.
func (c *Client) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(id), nil, &p)
	if err == nil {
		return &p, nil
	}
	if c.canFallBack(err) {
		if local, ok, lerr := c.store.DevProject(id); lerr == nil && ok {
			return &local, nil
		}
	}
	return nil, err
}

// CreateProject creates an empty project.
func (c *Client) CreateProject(ctx context.Context, name, description string) (*model.Project, error) {
	body := map[string]string{"name": name, "description": description}
	var p model.Project
	if err := c.do(ctx, http.MethodPost, "/projects", body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Generate asks the server to build a project from prompt. In dev mode a
// failed call creates the project offline instead; offline reports which
// path was taken.
func (c *Client) Generate(ctx context.Context, prompt string, stack *model.TechStack) (p *model.Project, offline bool, err error) {
	body := struct {
		Prompt    string           `json:"prompt"`
		TechStack *model.TechStack `json:"tech_stack,omitempty"`
	}{Prompt: prompt, TechStack: stack}

	var out model.Project
	err = c.do(ctx, http.MethodPost, "/projects/generate", body, &out)
	if err == nil {
		return &out, false, nil
	}
	if !c.canFallBack(err) {
		return nil, false, err
	}

	c.logger.Info("generation failed, creating project offline", slog.String("error", err.Error()))
	p, err = c.CreateOffline(prompt)
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// CreateOffline scaffolds a project from prompt and stores it under a fresh
// dev_ id in the local store.
func (c *Client) CreateOffline(prompt string) (*model.Project, error) {
	if !c.devMode {
		return nil, ErrDevModeDisabled
	}

	now := c.now()
	id := scaffold.NewID(now)
	err := c.store.Update(func(st *State) error {
		if st.DevProjects == nil {
			st.DevProjects = make(map[string]model.Project)
		}
		for i := 1; ; i++ {
			if _, taken := st.DevProjects[id]; !taken {
				break
			}
			id = fmt.Sprintf("%s_%d", scaffold.NewID(now), i)
		}
		st.DevProjects[id] = scaffold.Project(id, prompt, now)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storing offline project: %w", err)
	}

	p, _, err := c.store.DevProject(id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DeleteProject removes a server project, or an offline one by id.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	if strings.HasPrefix(id, "dev_") {
		removed := false
		err := c.store.Update(func(st *State) error {
			if _, ok := st.DevProjects[id]; ok {
				delete(st.DevProjects, id)
				removed = true
			}
			return nil
		})
		if err != nil || removed {
			return err
		}
	}
	return c.do(ctx, http.MethodDelete, "/projects/"+url.PathEscape(id), nil, nil)
}

// PutFiles upserts files by path.
func (c *Client) PutFiles(ctx context.Context, id string, files []model.File) (*model.Project, error) {
	body := map[string][]model.File{"files": files}
	var p model.Project
	if err := c.do(ctx, http.MethodPut, "/projects/"+url.PathEscape(id)+"/files", body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

type chatTurn struct {
	Message string              `json:"message"`
	History []model.ChatMessage `json:"history,omitempty"`
}

// Plan asks for a planning reply. Files are not changed.
func (c *Client) Plan(ctx context.Context, id, message string, history []model.ChatMessage) (string, error) {
	var out struct {
		Response string `json:"response"`
	}
	err := c.do(ctx, http.MethodPost, "/projects/"+url.PathEscape(id)+"/chat/plan", chatTurn{message, history}, &out)
	if err != nil {
		return "", err
	}
	return out.Response, nil
}

// Build asks the model to change the project and returns the applied
// updates.
func (c *Client) Build(ctx context.Context, id, message string, history []model.ChatMessage) (*codegen.BuildReply, error) {
	var out codegen.BuildReply
	err := c.do(ctx, http.MethodPost, "/projects/"+url.PathEscape(id)+"/chat/build", chatTurn{message, history}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Preview renders p locally. The document is the same one the server
// serves for the same files.
func Preview(p *model.Project, editable bool) (string, error) {
	if editable {
		return preview.BuildEditable(p.Files)
	}
	return preview.Build(p.Files)
}

// WritePreview renders p into path, creating parent directories.
func WritePreview(p *model.Project, editable bool, path string) error {
	html, err := Preview(p, editable)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating preview directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return fmt.Errorf("writing preview: %w", err)
	}
	return nil
}

// SaveStyles overwrites the first stylesheet of a project with styles.
// Offline projects are updated in the local store.
func (c *Client) SaveStyles(ctx context.Context, id, styles string) (*model.Project, bool, error) {
	if local, ok, err := c.store.DevProject(id); err == nil && ok {
		files, saved := preview.SaveStyles(local.Files, styles)
		if !saved {
			return &local, false, nil
		}
		local.Files = files
		local.UpdatedAt = c.now().UTC()
		if err := c.store.PutDevProject(local); err != nil {
			return nil, false, err
		}
		return &local, true, nil
	}

	var out struct {
		Saved   bool           `json:"saved"`
		Project *model.Project `json:"project"`
	}
	if err := c.do(ctx, http.MethodPost, "/projects/"+url.PathEscape(id)+"/styles", map[string]string{"styles": styles}, &out); err != nil {
		return nil, false, err
	}
	return out.Project, out.Saved, nil
}

// ListSnapshots returns the newest snapshots without file contents.
func (c *Client) ListSnapshots(ctx context.Context, id string) ([]model.Snapshot, error) {
	var snaps []model.Snapshot
	if err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(id)+"/snapshots", nil, &snaps); err != nil {
		return nil, err
	}
	return snaps, nil
}

// CreateSnapshot takes a manual snapshot; created is false when the files
// match the latest snapshot.
func (c *Client) CreateSnapshot(ctx context.Context, id, message string) (snap *model.Snapshot, created bool, err error) {
	var out struct {
		Snapshot *model.Snapshot `json:"snapshot"`
		Created  bool            `json:"created"`
	}
	if err := c.do(ctx, http.MethodPost, "/projects/"+url.PathEscape(id)+"/snapshots", map[string]string{"message": message}, &out); err != nil {
		return nil, false, err
	}
	return out.Snapshot, out.Created, nil
}

// RestoreSnapshot replaces the project files with those of snapshotID.
func (c *Client) RestoreSnapshot(ctx context.Context, id, snapshotID string) (*model.Project, error) {
	var p model.Project
	path := "/projects/" + url.PathEscape(id) + "/snapshots/" + url.PathEscape(snapshotID) + "/restore"
	if err := c.do(ctx, http.MethodPost, path, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CompareSnapshots lists the paths that differ between two snapshots.
func (c *Client) CompareSnapshots(ctx context.Context, id, from, to string) (*model.SnapshotDiff, error) {
	q := url.Values{"from": {from}, "to": {to}}
	var diff model.SnapshotDiff
	if err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(id)+"/snapshots/compare?"+q.Encode(), nil, &diff); err != nil {
		return nil, err
	}
	return &diff, nil
}

// Export requests an archive link or the inline file list.
func (c *Client) Export(ctx context.Context, id string) (*export.Result, error) {
	var res export.Result
	if err := c.do(ctx, http.MethodPost, "/projects/"+url.PathEscape(id)+"/export", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// PushGitHub commits a project's files to a GitHub repository.
func (c *Client) PushGitHub(ctx context.Context, id string, req gitpush.Request) (*gitpush.Result, error) {
	var res gitpush.Result
	if err := c.do(ctx, http.MethodPost, "/projects/"+url.PathEscape(id)+"/export/github", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
