// Package service holds the business rules of the app builder. Handlers
// parse HTTP and call in here; services talk to repositories, the code
// generator and the deploy providers, and return apperror values that the
// handlers map to status codes.
//
//	main.go creates:  DB → Repository → Service → Handler
//	At runtime:       Handler calls Service calls Repository calls DB
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/app-builder/internal/apperror"
	"github.com/sakif/app-builder/internal/codegen"
	"github.com/sakif/app-builder/internal/model"
	"github.com/sakif/app-builder/internal/preview"
	"github.com/sakif/app-builder/internal/repository"
)

const (
	MaxProjectNameLength = 100
	MaxPromptLength      = 10000
	MaxFileBytes         = 1 << 20
	MaxFilesPerProject   = 500
	DefaultListLimit     = 20
	MaxListLimit         = 100
)

// ProjectService owns projects and their files. Every method that takes a
// userID hides projects of other users behind ErrNotFound.
type ProjectService struct {
	projects  repository.ProjectRepository
	snapshots *SnapshotService
	generator *codegen.Generator
	logger    *slog.Logger
}

func NewProjectService(projects repository.ProjectRepository, snapshots *SnapshotService, generator *codegen.Generator, logger *slog.Logger) *ProjectService {
	return &ProjectService{
		projects:  projects,
		snapshots: snapshots,
		generator: generator,
		logger:    logger,
	}
}

// Get returns the caller's project with files.
func (s *ProjectService) Get(ctx context.Context, userID, id string) (*model.Project, error) {
	p, err := s.projects.GetProject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading project %s: %w", id, err)
	}
	if p.UserID != userID {
		return nil, apperror.NotFound("project", id)
	}
	return p, nil
}

// List returns the caller's projects newest first, without files.
func (s *ProjectService) List(ctx context.Context, userID string, limit, offset int) ([]model.Project, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	projects, err := s.projects.ListProjects(ctx, userID, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	return projects, nil
}

// Create saves an empty project.
func (s *ProjectService) Create(ctx context.Context, userID, name, description string, stack *model.TechStack) (*model.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "project name is required")
	}
	if utf8.RuneCountInString(name) > MaxProjectNameLength {
		return nil, apperror.ValidationFailed("name", fmt.Sprintf("project name must be %d characters or fewer", MaxProjectNameLength))
	}

	p := &model.Project{
		UserID:      userID,
		Name:        name,
		Description: strings.TrimSpace(description),
		TechStack:   stackOrDefault(stack),
		Files:       []model.File{},
		Status:      model.ProjectActive,
	}
	if err := s.projects.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}
	s.logger.Info("project created", slog.String("project_id", p.ID), slog.String("user_id", userID))
	return p, nil
}

// Generate runs one generation and stores the result as a new project with
// an automatic snapshot. progress, if set, is told about each step.
func (s *ProjectService) Generate(ctx context.Context, userID, prompt string, stack *model.TechStack, progress func(step string)) (*model.Project, error) {
	report := func(step string) {
		if progress != nil {
			progress(step)
		}
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, apperror.ValidationFailed("prompt", "prompt is required")
	}
	if utf8.RuneCountInString(prompt) > MaxPromptLength {
		return nil, apperror.ValidationFailed("prompt", fmt.Sprintf("prompt must be %d characters or fewer", MaxPromptLength))
	}
	ts := stackOrDefault(stack)

	report("Analyzing requirements")
	report("Generating application files")
	res, err := s.generator.Generate(ctx, prompt, ts)
	if err != nil {
		return nil, fmt.Errorf("generating project: %w", err)
	}

	report("Saving project")
	p := &model.Project{
		UserID:           userID,
		Name:             res.AppName,
		Description:      res.Description,
		Prompt:           prompt,
		TechStack:        ts,
		Files:            res.Files,
		Status:           model.ProjectActive,
		RequiredServices: res.RequiredServices,
	}
	if err := s.projects.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("saving generated project: %w", err)
	}

	report("Creating snapshot")
	s.autoSnapshot(ctx, p)

	s.logger.Info("project generated",
		slog.String("project_id", p.ID),
		slog.Int("files", len(p.Files)),
		slog.Bool("fallback", res.Fallback),
	)
	return p, nil
}

// Delete removes the project, its files and its snapshots.
func (s *ProjectService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.projects.DeleteProject(ctx, id); err != nil {
		return fmt.Errorf("deleting project %s: %w", id, err)
	}
	s.logger.Info("project deleted", slog.String("project_id", id))
	return nil
}

// PutFiles upserts files by path and keeps the order of existing files.
func (s *ProjectService) PutFiles(ctx context.Context, userID, id string, files []model.File) (*model.Project, error) {
	if len(files) == 0 {
		return nil, apperror.ValidationFailed("files", "at least one file is required")
	}
	for _, f := range files {
		if err := validateFile(f); err != nil {
			return nil, err
		}
	}

	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		f.Path = strings.TrimSpace(f.Path)
		p.UpsertFile(f)
	}
	if len(p.Files) > MaxFilesPerProject {
		return nil, apperror.ValidationFailed("files", fmt.Sprintf("a project holds at most %d files", MaxFilesPerProject))
	}
	if err := s.projects.UpdateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("saving files: %w", err)
	}
	return p, nil
}

// Plan answers a planning message without touching files.
func (s *ProjectService) Plan(ctx context.Context, userID, id, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", apperror.ValidationFailed("message", "message is required")
	}
	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return "", err
	}
	return codegen.Plan(p, message), nil
}

// Build asks the generator for file updates, applies them and snapshots
// the result when anything changed.
func (s *ProjectService) Build(ctx context.Context, userID, id, message string, history []model.ChatMessage) (*codegen.BuildReply, error) {
	if strings.TrimSpace(message) == "" {
		return nil, apperror.ValidationFailed("message", "message is required")
	}
	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	reply, err := s.generator.Build(ctx, p, message, history)
	if err != nil {
		return nil, fmt.Errorf("building changes: %w", err)
	}
	if len(reply.FileUpdates) == 0 {
		return reply, nil
	}

	for _, u := range reply.FileUpdates {
		p.UpsertFile(model.File{Path: u.Path, Content: u.Content})
	}
	if err := s.projects.UpdateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("applying file updates: %w", err)
	}
	s.autoSnapshot(ctx, p)
	return reply, nil
}

// Preview renders the project's live preview, or the visual-editor
// variant when editable is set.
func (s *ProjectService) Preview(ctx context.Context, userID, id string, editable bool) (string, error) {
	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return "", err
	}
	render := preview.Build
	if editable {
		render = preview.BuildEditable
	}
	html, err := render(p.Files)
	if err != nil {
		if errors.Is(err, preview.ErrNoEntry) {
			return "", apperror.ValidationFailed("files", err.Error())
		}
		return "", fmt.Errorf("rendering preview: %w", err)
	}
	return html, nil
}

// SaveStyles overwrites the first CSS file with styleText. It reports false
// when the project has no CSS file; nothing is saved then.
func (s *ProjectService) SaveStyles(ctx context.Context, userID, id, styleText string) (*model.Project, bool, error) {
	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, false, err
	}
	files, ok := preview.SaveStyles(p.Files, styleText)
	if !ok {
		return p, false, nil
	}
	p.Files = files
	if err := s.projects.UpdateProject(ctx, p); err != nil {
		return nil, false, fmt.Errorf("saving styles: %w", err)
	}
	return p, true, nil
}

// autoSnapshot failures are logged; the change itself already succeeded.
func (s *ProjectService) autoSnapshot(ctx context.Context, p *model.Project) {
	if s.snapshots == nil {
		return
	}
	if _, _, err := s.snapshots.Create(ctx, p, "", true); err != nil {
		s.logger.Warn("auto snapshot failed", slog.String("project_id", p.ID), slog.String("error", err.Error()))
	}
}

func validateFile(f model.File) error {
	path := strings.TrimSpace(f.Path)
	switch {
	case path == "":
		return apperror.ValidationFailed("path", "file path is required")
	case strings.Contains(path, ".."):
		return apperror.ValidationFailed("path", "file path must not contain '..'")
	case len(f.Content) > MaxFileBytes:
		return apperror.ValidationFailed("content", fmt.Sprintf("%s exceeds %d bytes", path, MaxFileBytes))
	}
	return nil
}

func stackOrDefault(stack *model.TechStack) model.TechStack {
	if stack == nil {
		return model.DefaultTechStack
	}
	ts := *stack
	if ts.Frontend == "" {
		ts.Frontend = model.DefaultTechStack.Frontend
	}
	if ts.Backend == "" {
		ts.Backend = model.DefaultTechStack.Backend
	}
	if ts.Database == "" {
		ts.Database = model.DefaultTechStack.Database
	}
	return ts
}
