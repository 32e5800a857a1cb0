package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/app-builder/internal/model"
	"github.com/sakif/app-builder/internal/service"
)

// SnapshotHandler serves a project's version history. Ownership is checked
// through the project service before any snapshot is touched.
type SnapshotHandler struct {
	projects  *service.ProjectService
	snapshots *service.SnapshotService
	logger    *slog.Logger
}

func NewSnapshotHandler(projects *service.ProjectService, snapshots *service.SnapshotService, logger *slog.Logger) *SnapshotHandler {
	return &SnapshotHandler{projects: projects, snapshots: snapshots, logger: logger}
}

// project loads the caller's project named by the {id} URL parameter.
func (h *SnapshotHandler) project(r *http.Request) (*model.Project, error) {
	uid, err := userID(r)
	if err != nil {
		return nil, err
	}
	return h.projects.Get(r.Context(), uid, chi.URLParam(r, "id"))
}

// HandleList returns up to 50 snapshots, newest first, without contents.
//
// HTTP: GET /api/projects/{id}/snapshots
func (h *SnapshotHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	p, err := h.project(r)
	if err != nil {
		writeError(w, err)
		return
	}

	snaps, err := h.snapshots.List(r.Context(), p.ID)
	if err != nil {
		logError(h.logger, r, "listing snapshots", err)
		writeError(w, err)
		return
	}
	if snaps == nil {
		snaps = []model.Snapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

type createSnapshotRequest struct {
	Message string `json:"message"`
}

// CreateSnapshotResponse reports the snapshot and whether it is new. An
// unchanged file set returns the latest snapshot with created false.
type CreateSnapshotResponse struct {
	Snapshot *model.Snapshot `json:"snapshot"`
	Created  bool            `json:"created"`
}

// HandleCreate takes a manual snapshot.
//
// HTTP: POST /api/projects/{id}/snapshots
func (h *SnapshotHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	p, err := h.project(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req createSnapshotRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	snap, created, err := h.snapshots.Create(r.Context(), p, req.Message, false)
	if err != nil {
		logError(h.logger, r, "creating snapshot", err)
		writeError(w, err)
		return
	}
	snap.Files = nil

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, CreateSnapshotResponse{Snapshot: snap, Created: created})
}

// HandleGet returns one snapshot with its files.
//
// HTTP: GET /api/projects/{id}/snapshots/{sid}
func (h *SnapshotHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.project(r)
	if err != nil {
		writeError(w, err)
		return
	}

	snap, err := h.snapshots.Get(r.Context(), p.ID, chi.URLParam(r, "sid"))
	if err != nil {
		logError(h.logger, r, "loading snapshot", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleRestore replaces the project's files with the snapshot's, after
// saving the current state.
//
// HTTP: POST /api/projects/{id}/snapshots/{sid}/restore
func (h *SnapshotHandler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	p, err := h.project(r)
	if err != nil {
		writeError(w, err)
		return
	}

	restored, err := h.snapshots.Restore(r.Context(), p, chi.URLParam(r, "sid"))
	if err != nil {
		logError(h.logger, r, "restoring snapshot", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, restored)
}

// HandleCompare diffs two snapshots by path.
//
// HTTP: GET /api/projects/{id}/snapshots/compare?from=<sid>&to=<sid>
func (h *SnapshotHandler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	p, err := h.project(r)
	if err != nil {
		writeError(w, err)
		return
	}

	q := r.URL.Query()
	diff, err := h.snapshots.Compare(r.Context(), p.ID, q.Get("from"), q.Get("to"))
	if err != nil {
		logError(h.logger, r, "comparing snapshots", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diff)
}
