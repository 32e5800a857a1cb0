package model

import (
	"path"
	"strings"
	"time"
)

// Project statuses.
const (
	ProjectActive     = "active"
	ProjectGenerating = "generating"
	ProjectFailed     = "failed"
)

// TechStack describes the stack a project was generated for.
type TechStack struct {
	Frontend string `json:"frontend"`
	Backend  string `json:"backend"`
	Database string `json:"database"`
}

// DefaultTechStack is used when a generation request does not name one.
var DefaultTechStack = TechStack{Frontend: "React", Backend: "FastAPI", Database: "MongoDB"}

// File is one source file of a project. Path is unique within a project.
type File struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

// LanguageFor derives the language tag from the extension of p.
// A path without an extension yields "txt".
func LanguageFor(p string) string {
	ext := path.Ext(p)
	if ext == "" || ext == "." {
		return "txt"
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Project is a generated application: metadata plus an ordered file list.
type Project struct {
	ID               string      `json:"project_id"`
	UserID           string      `json:"user_id"`
	Name             string      `json:"name"`
	Description      string      `json:"description"`
	Prompt           string      `json:"prompt"`
	TechStack        TechStack   `json:"tech_stack"`
	Files            []File      `json:"files"`
	Status           string      `json:"status"`
	RequiredServices []string    `json:"required_services,omitempty"`
	Deployment       *Deployment `json:"deployment,omitempty"`
	LastRestoredFrom string      `json:"last_restored_from,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// FileIndex returns the position of the file with the given path, or -1.
func (p *Project) FileIndex(filePath string) int {
	for i := range p.Files {
		if p.Files[i].Path == filePath {
			return i
		}
	}
	return -1
}

// UpsertFile replaces the file with the same path or appends it.
// An empty language is derived from the path.
func (p *Project) UpsertFile(f File) {
	if f.Language == "" {
		f.Language = LanguageFor(f.Path)
	}
	if i := p.FileIndex(f.Path); i >= 0 {
		p.Files[i] = f
		return
	}
	p.Files = append(p.Files, f)
}
