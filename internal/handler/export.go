package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/app-builder/internal/gitpush"
	"github.com/sakif/app-builder/internal/service"
)

// ExportHandler serves archive export and GitHub pushes.
type ExportHandler struct {
	exports *service.ExportService
	logger  *slog.Logger
}

func NewExportHandler(exports *service.ExportService, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{exports: exports, logger: logger}
}

// HandleExport returns a presigned archive URL when object storage is
// configured and the file list inline otherwise.
//
// HTTP: POST /api/projects/{id}/export
func (h *ExportHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.exports.Export(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		logError(h.logger, r, "exporting project", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleExportGitHub pushes the project when a token is supplied and
// returns the repository-ready package otherwise.
//
// HTTP: POST /api/projects/{id}/export/github
func (h *ExportHandler) HandleExportGitHub(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req gitpush.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	id := chi.URLParam(r, "id")

	if strings.TrimSpace(req.Token) == "" {
		pkg, err := h.exports.Package(r.Context(), uid, id)
		if err != nil {
			logError(h.logger, r, "packaging project", err)
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pkg)
		return
	}

	res, err := h.exports.PushProject(r.Context(), uid, id, req)
	if err != nil {
		logError(h.logger, r, "pushing project", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type pushRequest struct {
	gitpush.Request
	ProjectID string `json:"project_id"`
}

// HandlePush commits one project, or every project of the caller when no
// project_id is given.
//
// HTTP: POST /api/github/push
func (h *ExportHandler) HandlePush(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req pushRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	var res *gitpush.Result
	if req.ProjectID != "" {
		res, err = h.exports.PushProject(r.Context(), uid, req.ProjectID, req.Request)
	} else {
		res, err = h.exports.PushWorkspace(r.Context(), uid, req.Request)
	}
	if err != nil {
		logError(h.logger, r, "github push", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
