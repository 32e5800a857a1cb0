package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/app-builder/internal/apperror"
	"github.com/sakif/app-builder/internal/deploy"
	"github.com/sakif/app-builder/internal/model"
	"github.com/sakif/app-builder/internal/repository"
)

// DeployService runs deploys through the platform registry and records
// every outcome, successful or not.
type DeployService struct {
	registry    *deploy.Registry
	deployments repository.DeploymentRepository
	projects    *ProjectService
	pipeline    []deploy.PipelineOption
	logger      *slog.Logger
}

// NewDeployService takes extra pipeline options, used by tests to replace
// the stage timers.
func NewDeployService(registry *deploy.Registry, deployments repository.DeploymentRepository, projects *ProjectService, logger *slog.Logger, opts ...deploy.PipelineOption) *DeployService {
	return &DeployService{
		registry:    registry,
		deployments: deployments,
		projects:    projects,
		pipeline:    opts,
		logger:      logger,
	}
}

// Platforms lists the registered deploy targets.
func (s *DeployService) Platforms() []string {
	return s.registry.Platforms()
}

// Deploy makes one deploy call for the caller's project.
func (s *DeployService) Deploy(ctx context.Context, userID, projectID, platform string) (*deploy.Result, error) {
	p, err := s.projects.Get(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	return s.deploy(ctx, p, normalizePlatform(platform))
}

// DeployStaged runs the deploy behind the stage pipeline; onChange sees
// every stage transition. The returned error is non-nil when the pipeline
// ended in a failed stage.
func (s *DeployService) DeployStaged(ctx context.Context, userID, projectID, platform string, onChange func([]deploy.Stage)) (*deploy.Result, []deploy.Stage, error) {
	p, err := s.projects.Get(ctx, userID, projectID)
	if err != nil {
		return nil, nil, err
	}
	platform = normalizePlatform(platform)

	opts := append([]deploy.PipelineOption{}, s.pipeline...)
	if onChange != nil {
		opts = append(opts, deploy.WithObserver(onChange))
	}
	pl := deploy.NewPipeline(opts...)
	res, err := pl.Run(ctx, func(ctx context.Context) (*deploy.Result, error) {
		return s.deploy(ctx, p, platform)
	})
	return res, pl.Stages(), err
}

func (s *DeployService) deploy(ctx context.Context, p *model.Project, platform string) (*deploy.Result, error) {
	start := time.Now()
	res := s.registry.Deploy(ctx, platform, deploy.Bundle{ProjectID: p.ID, Name: p.Name, Files: p.Files})

	status := res.Status
	if !res.Success {
		status = "failed"
	}
	d := &model.Deployment{
		ID:         uuid.NewString(),
		ProjectID:  p.ID,
		Platform:   platform,
		Status:     status,
		URL:        res.URL,
		ProviderID: res.DeploymentID,
		Message:    res.Message,
		Error:      res.Error,
	}
	if err := s.deployments.CreateDeployment(ctx, d); err != nil {
		return nil, fmt.Errorf("recording deployment: %w", err)
	}

	level := slog.LevelInfo
	if !res.Success {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "deploy finished",
		slog.String("project_id", p.ID),
		slog.String("platform", platform),
		slog.String("deployment_id", d.ID),
		slog.Bool("success", res.Success),
		slog.Duration("duration", time.Since(start)),
	)

	// clients look deployments up by the recorded id
	res.DeploymentID = d.ID
	return res, nil
}

// StatusResult joins the recorded deployment with the provider's view.
type StatusResult struct {
	Deployment *model.Deployment `json:"deployment"`
	Provider   *deploy.Status    `json:"provider"`
}

// Status reports a recorded deployment of one of the caller's projects.
func (s *DeployService) Status(ctx context.Context, userID, deploymentID string) (*StatusResult, error) {
	d, err := s.deployments.GetDeployment(ctx, deploymentID)
	if err != nil {
		return nil, fmt.Errorf("loading deployment %s: %w", deploymentID, err)
	}
	if _, err := s.projects.Get(ctx, userID, d.ProjectID); err != nil {
		return nil, apperror.NotFound("deployment", deploymentID)
	}

	if d.ProviderID == "" {
		return &StatusResult{Deployment: d, Provider: &deploy.Status{Status: d.Status, URL: d.URL}}, nil
	}
	st, err := s.registry.Status(ctx, d.Platform, d.ProviderID)
	if err != nil {
		s.logger.Warn("provider status failed", slog.String("deployment_id", d.ID), slog.String("error", err.Error()))
		st = &deploy.Status{Status: "error", Error: err.Error()}
	}
	return &StatusResult{Deployment: d, Provider: st}, nil
}

func normalizePlatform(platform string) string {
	platform = strings.ToLower(strings.TrimSpace(platform))
	if platform == "" {
		return model.PlatformVercel
	}
	return platform
}
