package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/app-builder/internal/apperror"
	"github.com/sakif/app-builder/internal/model"
	"github.com/sakif/app-builder/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeUserRepo is an in-memory repository.UserRepository.
type fakeUserRepo struct {
	mu      sync.Mutex
	users   map[string]*model.User
	getErr  error
	saveErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) CreateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	for _, existing := range f.users {
		if existing.Provider == model.ProviderPassword && existing.Email == u.Email {
			return apperror.Conflict("user", u.Email)
		}
	}
	u.ID = xid.New().String()
	u.CreatedAt, u.UpdatedAt = time.Now(), time.Now()
	c := *u
	f.users[u.ID] = &c
	return nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	c := *u
	return &c, nil
}

func (f *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range f.users {
		if u.Provider == model.ProviderPassword && u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeUserRepo) UpsertOAuthUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	for _, existing := range f.users {
		if existing.Provider == u.Provider && existing.ProviderID == u.ProviderID {
			existing.Email, existing.Name, existing.AvatarURL = u.Email, u.Name, u.AvatarURL
			*u = *existing
			return nil
		}
	}
	u.ID = xid.New().String()
	c := *u
	f.users[u.ID] = &c
	return nil
}

// fakeStore implements the project, snapshot and deployment repositories.
type fakeStore struct {
	mu          sync.Mutex
	projects    map[string]*model.Project
	order       []string
	snapshots   map[string][]model.Snapshot // project ID -> insertion order
	deployments map[string]*model.Deployment
	updateErr   error
	snapErr     error
}

var (
	_ repository.ProjectRepository    = (*fakeStore)(nil)
	_ repository.SnapshotRepository   = (*fakeStore)(nil)
	_ repository.DeploymentRepository = (*fakeStore)(nil)
)

func newFakeStore() *fakeStore {
	return &fakeStore{
		projects:    make(map[string]*model.Project),
		snapshots:   make(map[string][]model.Snapshot),
		deployments: make(map[string]*model.Deployment),
	}
}

func cloneProject(p *model.Project) *model.Project {
	c := *p
	c.Files = append([]model.File(nil), p.Files...)
	c.RequiredServices = append([]string(nil), p.RequiredServices...)
	return &c
}

func (f *fakeStore) CreateProject(_ context.Context, p *model.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID == "" {
		p.ID = xid.New().String()
	}
	p.CreatedAt, p.UpdatedAt = time.Now(), time.Now()
	f.projects[p.ID] = cloneProject(p)
	f.order = append(f.order, p.ID)
	return nil
}

func (f *fakeStore) GetProject(_ context.Context, id string) (*model.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return nil, apperror.NotFound("project", id)
	}
	return cloneProject(p), nil
}

func (f *fakeStore) ListProjects(_ context.Context, userID string, opts repository.ListOptions) ([]model.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Project
	for i := len(f.order) - 1; i >= 0; i-- {
		p, ok := f.projects[f.order[i]]
		if !ok || p.UserID != userID {
			continue
		}
		c := *p
		c.Files = nil
		out = append(out, c)
	}
	if opts.Offset < len(out) {
		out = out[opts.Offset:]
	} else {
		out = nil
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (f *fakeStore) UpdateProject(_ context.Context, p *model.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.projects[p.ID]; !ok {
		return apperror.NotFound("project", p.ID)
	}
	p.UpdatedAt = time.Now()
	f.projects[p.ID] = cloneProject(p)
	return nil
}

func (f *fakeStore) DeleteProject(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[id]; !ok {
		return apperror.NotFound("project", id)
	}
	delete(f.projects, id)
	delete(f.snapshots, id)
	return nil
}

func (f *fakeStore) CreateSnapshot(_ context.Context, s *model.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapErr != nil {
		return f.snapErr
	}
	for _, existing := range f.snapshots[s.ProjectID] {
		if existing.ID == s.ID {
			return apperror.Conflict("snapshot", s.ID)
		}
	}
	c := *s
	c.Files = append([]model.File(nil), s.Files...)
	f.snapshots[s.ProjectID] = append(f.snapshots[s.ProjectID], c)
	return nil
}

func (f *fakeStore) GetSnapshot(_ context.Context, projectID, id string) (*model.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.snapshots[projectID] {
		if s.ID == id {
			c := s
			return &c, nil
		}
	}
	return nil, apperror.NotFound("snapshot", id)
}

func (f *fakeStore) LatestSnapshot(_ context.Context, projectID string) (*model.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.snapshots[projectID]
	if len(list) == 0 {
		return nil, apperror.NotFound("snapshot", "latest")
	}
	c := list[len(list)-1]
	return &c, nil
}

func (f *fakeStore) ListSnapshots(_ context.Context, projectID string, limit int) ([]model.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.snapshots[projectID]
	out := make([]model.Snapshot, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		c := list[i]
		c.Files = nil
		out = append(out, c)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) DeleteSnapshots(_ context.Context, projectID string, ids []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	var kept []model.Snapshot
	var n int64
	for _, s := range f.snapshots[projectID] {
		if drop[s.ID] {
			n++
			continue
		}
		kept = append(kept, s)
	}
	f.snapshots[projectID] = kept
	return n, nil
}

func (f *fakeStore) SnapshotProjectIDs(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, list := range f.snapshots {
		if len(list) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeStore) CreateDeployment(_ context.Context, d *model.Deployment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *d
	f.deployments[d.ID] = &c
	return nil
}

func (f *fakeStore) GetDeployment(_ context.Context, id string) (*model.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deployments[id]
	if !ok {
		return nil, apperror.NotFound("deployment", id)
	}
	c := *d
	return &c, nil
}

func (f *fakeStore) snapshotCount(projectID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.snapshots[projectID])
}
