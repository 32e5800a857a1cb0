package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/app-builder/internal/apperror"
	"github.com/sakif/app-builder/internal/model"
	"github.com/sakif/app-builder/internal/repository"
)

func createTestProject(t *testing.T, db *DB, userID, name string) *model.Project {
	t.Helper()
	p := &model.Project{
		UserID:    userID,
		Name:      name,
		Prompt:    "build " + name,
		TechStack: model.DefaultTechStack,
		Files: []model.File{
			{Path: "src/App.js", Content: "export default function App(){}", Language: "js"},
			{Path: "src/index.css", Content: "body{}"},
		},
		RequiredServices: []string{"database"},
	}
	if err := db.CreateProject(context.Background(), p); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	return p
}

func TestCreateAndGetProject(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "owner@example.com")
	created := createTestProject(t, db, u.ID, "todo")

	if created.ID == "" {
		t.Fatal("CreateProject() did not set ID")
	}
	if created.Status != model.ProjectActive {
		t.Errorf("Status = %q, want %q", created.Status, model.ProjectActive)
	}

	got, err := db.GetProject(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetProject() error = %v", err)
	}

	if got.Name != "todo" || got.UserID != u.ID {
		t.Errorf("got %q owned by %q, want %q owned by %q", got.Name, got.UserID, "todo", u.ID)
	}
	if got.TechStack != model.DefaultTechStack {
		t.Errorf("TechStack = %+v, want %+v", got.TechStack, model.DefaultTechStack)
	}
	if len(got.Files) != 2 {
		t.Fatalf("len(Files) = %d, want 2", len(got.Files))
	}
	if got.Files[0].Path != "src/App.js" || got.Files[1].Path != "src/index.css" {
		t.Errorf("file order not preserved: %q, %q", got.Files[0].Path, got.Files[1].Path)
	}
	if got.Files[1].Language != "css" {
		t.Errorf("derived language = %q, want css", got.Files[1].Language)
	}
	if len(got.RequiredServices) != 1 || got.RequiredServices[0] != "database" {
		t.Errorf("RequiredServices = %v, want [database]", got.RequiredServices)
	}
	if got.Deployment != nil {
		t.Errorf("Deployment = %+v, want nil", got.Deployment)
	}
}

func TestCreateProject_KeepsCallerID(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "owner@example.com")

	p := &model.Project{ID: "proj_abc", UserID: u.ID, Name: "x"}
	if err := db.CreateProject(context.Background(), p); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	if p.ID != "proj_abc" {
		t.Errorf("ID = %q, want caller-supplied %q", p.ID, "proj_abc")
	}
}

func TestCreateProject_DuplicatePath(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "owner@example.com")

	p := &model.Project{UserID: u.ID, Name: "dup", Files: []model.File{{Path: "a.js"}, {Path: "a.js"}}}
	err := db.CreateProject(context.Background(), p)
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("CreateProject() error = %v, want ErrValidation", err)
	}

	// the transaction rolled back
	if _, err := db.GetProject(context.Background(), p.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetProject() after rollback error = %v, want ErrNotFound", err)
	}
}

func TestGetProject_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetProject(context.Background(), "nope")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("GetProject() error = %v, want ErrNotFound", err)
	}
}

func TestListProjects_NewestFirstAndScoped(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")

	createTestProject(t, db, alice.ID, "first")
	time.Sleep(2 * time.Millisecond)
	createTestProject(t, db, alice.ID, "second")
	createTestProject(t, db, bob.ID, "bobs")

	got, err := db.ListProjects(context.Background(), alice.ID, repository.ListOptions{})
	if err != nil {
		t.Fatalf("ListProjects() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Name != "second" || got[1].Name != "first" {
		t.Errorf("order = [%s %s], want [second first]", got[0].Name, got[1].Name)
	}
	if got[0].Files != nil {
		t.Error("ListProjects() should not load files")
	}
}

func TestUpdateProject_ReplacesFiles(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "owner@example.com")
	p := createTestProject(t, db, u.ID, "todo")

	p.Name = "renamed"
	p.LastRestoredFrom = "snap_1"
	p.Files = []model.File{{Path: "README.md", Content: "# hi"}}
	if err := db.UpdateProject(context.Background(), p); err != nil {
		t.Fatalf("UpdateProject() error = %v", err)
	}

	got, err := db.GetProject(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("GetProject() error = %v", err)
	}
	if got.Name != "renamed" || got.LastRestoredFrom != "snap_1" {
		t.Errorf("metadata not saved: %+v", got)
	}
	if len(got.Files) != 1 || got.Files[0].Language != "md" {
		t.Errorf("Files = %+v, want single README.md", got.Files)
	}
}

func TestUpdateProject_NotFound(t *testing.T) {
	db := newTestDB(t)

	err := db.UpdateProject(context.Background(), &model.Project{ID: "ghost", Name: "x"})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("UpdateProject() error = %v, want ErrNotFound", err)
	}
}

func TestDeleteProject_Cascades(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "owner@example.com")
	p := createTestProject(t, db, u.ID, "todo")

	snap := &model.Snapshot{ID: "snap_1", ProjectID: p.ID, Message: "m", CreatedAt: time.Now(), ContentHash: "h"}
	if err := db.CreateSnapshot(ctx, snap); err != nil {
		t.Fatalf("CreateSnapshot() error = %v", err)
	}

	if err := db.DeleteProject(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProject() error = %v", err)
	}
	if _, err := db.GetSnapshot(ctx, p.ID, "snap_1"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("snapshot survived project delete: %v", err)
	}
	if err := db.DeleteProject(ctx, p.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second DeleteProject() error = %v, want ErrNotFound", err)
	}
}

func TestGetProject_LatestDeployment(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "owner@example.com")
	p := createTestProject(t, db, u.ID, "todo")

	older := &model.Deployment{ID: "d1", ProjectID: p.ID, Platform: "vercel", Status: "error", CreatedAt: time.Now().Add(-time.Minute)}
	newer := &model.Deployment{ID: "d2", ProjectID: p.ID, Platform: "netlify", Status: "deployed", URL: "https://x"}
	for _, d := range []*model.Deployment{older, newer} {
		if err := db.CreateDeployment(ctx, d); err != nil {
			t.Fatalf("CreateDeployment() error = %v", err)
		}
	}

	got, err := db.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProject() error = %v", err)
	}
	if got.Deployment == nil || got.Deployment.ID != "d2" {
		t.Fatalf("Deployment = %+v, want d2", got.Deployment)
	}

	d, err := db.GetDeployment(ctx, "d1")
	if err != nil {
		t.Fatalf("GetDeployment() error = %v", err)
	}
	if d.Platform != "vercel" {
		t.Errorf("Platform = %q, want vercel", d.Platform)
	}
}
