package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sakif/app-builder/internal/apperror"
	"github.com/sakif/app-builder/internal/deploy"
	"github.com/sakif/app-builder/internal/model"
)

// fakeProvider is a deploy.Provider with a canned outcome.
type fakeProvider struct {
	mu      sync.Mutex
	name    string
	result  *deploy.Result
	err     error
	status  *deploy.Status
	bundles []deploy.Bundle
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Deploy(_ context.Context, b deploy.Bundle) (*deploy.Result, error) {
	p.mu.Lock()
	p.bundles = append(p.bundles, b)
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	res := *p.result
	return &res, nil
}

func (p *fakeProvider) Status(context.Context, string) (*deploy.Status, error) {
	return p.status, nil
}

// instantTimer fires every stage timer immediately.
func instantTimer(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func newTestDeployService(t *testing.T, store *fakeStore, providers ...deploy.Provider) *DeployService {
	t.Helper()
	projects := newTestProjectService(t, store, nil)
	return NewDeployService(deploy.NewRegistry(providers...), store, projects, discardLogger(), deploy.WithTimer(instantTimer))
}

func TestDeploy_RecordsDeployment(t *testing.T) {
	store := newFakeStore()
	vercel := &fakeProvider{name: "vercel", result: &deploy.Result{
		Success: true, Platform: "vercel", URL: "https://demo.vercel.app", DeploymentID: "dpl_1", Status: "QUEUED",
	}}
	svc := newTestDeployService(t, store, vercel)
	p := seedProject(t, store, "u1", model.File{Path: "src/App.js", Content: "x"})

	res, err := svc.Deploy(context.Background(), "u1", p.ID, "")
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	if !res.Success || res.URL != "https://demo.vercel.app" {
		t.Errorf("result = %+v", res)
	}
	if len(vercel.bundles) != 1 || vercel.bundles[0].ProjectID != p.ID {
		t.Errorf("bundles = %+v", vercel.bundles)
	}

	d, err := store.GetDeployment(context.Background(), res.DeploymentID)
	if err != nil {
		t.Fatalf("deployment not recorded under %q: %v", res.DeploymentID, err)
	}
	if d.ProviderID != "dpl_1" || d.Status != "QUEUED" || d.Platform != "vercel" {
		t.Errorf("recorded deployment = %+v", d)
	}
}

func TestDeploy_UnknownPlatformRecordsFailure(t *testing.T) {
	store := newFakeStore()
	svc := newTestDeployService(t, store)
	p := seedProject(t, store, "u1")

	res, err := svc.Deploy(context.Background(), "u1", p.ID, "heroku")
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	if res.Success || res.Error != "Unknown platform: heroku" {
		t.Errorf("result = %+v", res)
	}
	d, err := store.GetDeployment(context.Background(), res.DeploymentID)
	if err != nil {
		t.Fatalf("GetDeployment() error = %v", err)
	}
	if d.Status != "failed" {
		t.Errorf("Status = %q, want failed", d.Status)
	}
}

func TestDeploy_OtherUsersProject(t *testing.T) {
	store := newFakeStore()
	svc := newTestDeployService(t, store)
	p := seedProject(t, store, "owner")

	if _, err := svc.Deploy(context.Background(), "intruder", p.ID, "vercel"); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Deploy() error = %v, want ErrNotFound", err)
	}
}

func TestDeployStaged(t *testing.T) {
	tests := []struct {
		name    string
		result  *deploy.Result
		wantErr bool
	}{
		{"success", &deploy.Result{Success: true, Platform: "vercel", Status: "READY"}, false},
		{"failure", &deploy.Result{Success: false, Platform: "vercel", Error: "boom"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			svc := newTestDeployService(t, store, &fakeProvider{name: "vercel", result: tt.result})
			p := seedProject(t, store, "u1")

			var changes int
			_, stages, err := svc.DeployStaged(context.Background(), "u1", p.ID, "vercel", func([]deploy.Stage) {
				changes++
			})
			if changes == 0 {
				t.Error("observer never called")
			}

			if !tt.wantErr {
				if err != nil {
					t.Fatalf("DeployStaged() error = %v", err)
				}
				for _, s := range stages {
					if s.Status != deploy.StageSuccess {
						t.Errorf("stage %s = %s, want success", s.Key, s.Status)
					}
				}
				return
			}

			if !errors.Is(err, deploy.ErrDeployFailed) {
				t.Fatalf("DeployStaged() error = %v, want ErrDeployFailed", err)
			}
			failedAt := -1
			for i, s := range stages {
				if s.Status == deploy.StageError {
					failedAt = i
					break
				}
			}
			if failedAt < 0 {
				t.Fatalf("no stage in error: %+v", stages)
			}
			for i, s := range stages {
				want := deploy.StagePending
				switch {
				case i < failedAt:
					want = deploy.StageSuccess
				case i == failedAt:
					want = deploy.StageError
				}
				if s.Status != want {
					t.Errorf("stage %d = %s, want %s", i, s.Status, want)
				}
			}
		})
	}
}

func TestDeployStatus(t *testing.T) {
	store := newFakeStore()
	vercel := &fakeProvider{
		name:   "vercel",
		result: &deploy.Result{Success: true, Platform: "vercel", DeploymentID: "dpl_9", Status: "QUEUED"},
		status: &deploy.Status{Status: "READY", URL: "demo.vercel.app"},
	}
	svc := newTestDeployService(t, store, vercel)
	p := seedProject(t, store, "u1")
	ctx := context.Background()

	res, err := svc.Deploy(ctx, "u1", p.ID, "vercel")
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}

	st, err := svc.Status(ctx, "u1", res.DeploymentID)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Provider.Status != "READY" || st.Deployment.ID != res.DeploymentID {
		t.Errorf("status = %+v / %+v", st.Deployment, st.Provider)
	}

	if _, err := svc.Status(ctx, "intruder", res.DeploymentID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Status() by other user error = %v, want ErrNotFound", err)
	}
	if _, err := svc.Status(ctx, "u1", "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Status() of unknown deployment error = %v, want ErrNotFound", err)
	}
}
