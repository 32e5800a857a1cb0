package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sakif/app-builder/internal/model"
)

// State is the persisted client state. The keys mirror what a browser
// session keeps in local storage.
type State struct {
	Token       string                   `json:"token,omitempty"`
	User        *model.User              `json:"user,omitempty"`
	DevProjects map[string]model.Project `json:"dev_projects,omitempty"`
}

// LocalStore keeps State in one JSON file. Every read and write covers the
// whole file; the last write wins.
type LocalStore struct {
	path string
	mu   sync.Mutex
}

// OpenStore does not touch the file; a missing file reads as empty state.
func OpenStore(path string) *LocalStore {
	return &LocalStore{path: path}
}

// DefaultStorePath is ~/.app-builder/state.json, or ./.app-builder.json
// when the home directory is unknown.
func DefaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".app-builder.json"
	}
	return filepath.Join(home, ".app-builder", "state.json")
}

// Path is the backing file.
func (s *LocalStore) Path() string { return s.path }

// Load reads the current state.
func (s *LocalStore) Load() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Update applies fn to the current state and writes the result back.
// Nothing is written when fn returns an error.
func (s *LocalStore) Update(fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.read()
	if err != nil {
		return err
	}
	if err := fn(&st); err != nil {
		return err
	}
	return s.write(st)
}

// Token returns the stored bearer token, or "" when none is stored or the
// file cannot be read.
func (s *LocalStore) Token() string {
	st, err := s.Load()
	if err != nil {
		return ""
	}
	return st.Token
}

// SetSession stores token and user together.
func (s *LocalStore) SetSession(token string, user *model.User) error {
	return s.Update(func(st *State) error {
		st.Token = token
		st.User = user
		return nil
	})
}

// ClearSession removes token and user and keeps dev projects.
func (s *LocalStore) ClearSession() error {
	return s.Update(func(st *State) error {
		st.Token = ""
		st.User = nil
		return nil
	})
}

// PutDevProject inserts or replaces p under p.ID.
func (s *LocalStore) PutDevProject(p model.Project) error {
	return s.Update(func(st *State) error {
		if st.DevProjects == nil {
			st.DevProjects = make(map[string]model.Project)
		}
		st.DevProjects[p.ID] = p
		return nil
	})
}

// DevProject returns the offline project stored under id.
func (s *LocalStore) DevProject(id string) (model.Project, bool, error) {
	st, err := s.Load()
	if err != nil {
		return model.Project{}, false, err
	}
	p, ok := st.DevProjects[id]
	return p, ok, nil
}

// DevProjects returns the offline projects, newest first.
func (s *LocalStore) DevProjects() ([]model.Project, error) {
	st, err := s.Load()
	if err != nil {
		return nil, err
	}
	out := make([]model.Project, 0, len(st.DevProjects))
	for _, p := range st.DevProjects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *LocalStore) read() (State, error) {
	var st State
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("reading local store: %w", err)
	}
	if len(data) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("decoding local store %s: %w", s.path, err)
	}
	return st, nil
}

// write replaces the file through a rename so readers never see a partial
// document.
func (s *LocalStore) write(st State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding local store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating local store directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing local store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing local store: %w", err)
	}
	return nil
}
