package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/sakif/app-builder/internal/export"
	"github.com/sakif/app-builder/internal/gitpush"
	"github.com/sakif/app-builder/internal/model"
)

// ExportService hands projects out as archives or commits.
type ExportService struct {
	projects *ProjectService
	exporter *export.Exporter
	git      *gitpush.Client
	logger   *slog.Logger
}

func NewExportService(projects *ProjectService, exporter *export.Exporter, git *gitpush.Client, logger *slog.Logger) *ExportService {
	return &ExportService{projects: projects, exporter: exporter, git: git, logger: logger}
}

// Export packages the caller's project.
func (s *ExportService) Export(ctx context.Context, userID, projectID string) (*export.Result, error) {
	p, err := s.projects.Get(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	res, err := s.exporter.Export(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("exporting project %s: %w", projectID, err)
	}
	s.logger.Info("project exported", slog.String("project_id", p.ID), slog.Bool("presigned", res.DownloadURL != ""))
	return res, nil
}

// GitHubPackage is the repository-ready view of a project.
type GitHubPackage struct {
	ProjectName     string       `json:"project_name"`
	Description     string       `json:"description"`
	Files           []model.File `json:"files"`
	DeploymentReady bool         `json:"deployment_ready"`
}

// Package returns the project as files ready to commit.
func (s *ExportService) Package(ctx context.Context, userID, projectID string) (*GitHubPackage, error) {
	p, err := s.projects.Get(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	name := p.Name
	if name == "" {
		name = "project_" + p.ID
	}
	return &GitHubPackage{ProjectName: name, Description: p.Description, Files: p.Files, DeploymentReady: true}, nil
}

// PushProject commits the caller's project to GitHub.
func (s *ExportService) PushProject(ctx context.Context, userID, projectID string, req gitpush.Request) (*gitpush.Result, error) {
	p, err := s.projects.Get(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	return s.Push(ctx, req, p.Files)
}

// PushWorkspace commits all of the caller's projects, each under a
// directory named after the project.
func (s *ExportService) PushWorkspace(ctx context.Context, userID string, req gitpush.Request) (*gitpush.Result, error) {
	list, err := s.projects.List(ctx, userID, MaxListLimit, 0)
	if err != nil {
		return nil, err
	}

	var files []model.File
	used := make(map[string]bool, len(list))
	for _, summary := range list {
		p, err := s.projects.Get(ctx, userID, summary.ID)
		if err != nil {
			return nil, err
		}
		dir := workspaceDir(p, used)
		for _, f := range p.Files {
			f.Path = dir + "/" + strings.TrimPrefix(f.Path, "/")
			files = append(files, f)
		}
	}
	return s.Push(ctx, req, files)
}

func workspaceDir(p *model.Project, used map[string]bool) string {
	dir := strings.Trim(strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return '-'
		}
		return -1
	}, p.Name), "-")
	if dir == "" || used[dir] {
		dir = strings.TrimPrefix(dir+"-"+p.ID, "-")
	}
	used[dir] = true
	return dir
}

// Push commits files to GitHub.
func (s *ExportService) Push(ctx context.Context, req gitpush.Request, files []model.File) (*gitpush.Result, error) {
	res, err := s.git.Push(ctx, req, files)
	if err != nil {
		return nil, err
	}
	s.logger.Info("pushed to github",
		slog.String("repo", req.Owner+"/"+req.Repo),
		slog.String("branch", res.Branch),
		slog.Int("files", res.FilesPushed),
	)
	return res, nil
}
