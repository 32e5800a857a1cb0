package cli

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sakif/app-builder/internal/deploy"
)

var stageMarks = map[deploy.StageStatus]string{
	deploy.StagePending: " ",
	deploy.StageActive:  ">",
	deploy.StageSuccess: "ok",
	deploy.StageError:   "!!",
}

// consoleRenderer prints a line for every stage whose status changed.
type consoleRenderer struct {
	mu   sync.Mutex
	a    *App
	last map[string]deploy.StageStatus
}

func (r *consoleRenderer) observe(stages []deploy.Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range stages {
		if r.last[s.Key] == s.Status {
			continue
		}
		r.last[s.Key] = s.Status
		if s.Status == deploy.StagePending {
			continue
		}
		line := fmt.Sprintf("[%2s] %-10s", stageMarks[s.Status], s.Label)
		if s.Status == deploy.StageActive {
			line += " " + s.Log
		}
		r.a.printf("%s\n", line)
	}
}

// deployOptions lets tests replace the stage timers.
var deployOptions []deploy.PipelineOption

func cmdDeploy(ctx context.Context, a *App, args []string) error {
	fs := a.flags("deploy")
	platform := fs.String("platform", "vercel", "vercel, netlify, railway or docker")
	rest, err := parse(fs, args, 1)
	if err != nil {
		return err
	}

	r := &consoleRenderer{a: a, last: make(map[string]deploy.StageStatus)}
	opts := append([]deploy.PipelineOption{deploy.WithObserver(r.observe)}, deployOptions...)

	a.printf("Deploying %s to %s\n", rest[0], *platform)
	res, _, err := a.client.DeployConsole(ctx, rest[0], *platform, opts...)
	if err != nil {
		if errors.Is(err, deploy.ErrDeployFailed) {
			return fmt.Errorf("deploy to %s failed: %w", *platform, err)
		}
		return err
	}

	switch {
	case res.URL != "":
		a.printf("Live at %s\n", res.URL)
	case res.Message != "":
		a.printf("%s\n", res.Message)
	default:
		a.printf("Deployment %s: %s\n", res.DeploymentID, res.Status)
	}
	if res.DeploymentID != "" {
		a.printf("Check progress with: builder status %s\n", res.DeploymentID)
	}
	return nil
}
