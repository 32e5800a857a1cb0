package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/app-builder/internal/apperror"
	"github.com/sakif/app-builder/internal/model"
	"github.com/sakif/app-builder/internal/service"
	"github.com/sakif/app-builder/internal/sse"
)

// ProjectHandler serves project CRUD, generation, the chat plan/build turns,
// the preview and the style editor.
type ProjectHandler struct {
	projects *service.ProjectService
	logger   *slog.Logger
}

func NewProjectHandler(projects *service.ProjectService, logger *slog.Logger) *ProjectHandler {
	return &ProjectHandler{projects: projects, logger: logger}
}

// HandleList returns the caller's projects, newest first, without files.
//
// HTTP: GET /api/projects?limit=20&offset=0
func (h *ProjectHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	projects, err := h.projects.List(r.Context(), uid, queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		logError(h.logger, r, "listing projects", err)
		writeError(w, err)
		return
	}
	if projects == nil {
		projects = []model.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

type createProjectRequest struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	TechStack   *model.TechStack `json:"tech_stack"`
}

// HandleCreate saves an empty project.
//
// HTTP: POST /api/projects
func (h *ProjectHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req createProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	p, err := h.projects.Create(r.Context(), uid, req.Name, req.Description, req.TechStack)
	if err != nil {
		logError(h.logger, r, "creating project", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

type generateRequest struct {
	Prompt    string           `json:"prompt"`
	TechStack *model.TechStack `json:"tech_stack"`
}

// HandleGenerate turns a prompt into a stored project.
//
// HTTP: POST /api/projects/generate
func (h *ProjectHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req generateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	p, err := h.projects.Generate(r.Context(), uid, req.Prompt, req.TechStack, nil)
	if err != nil {
		logError(h.logger, r, "generating project", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// ProgressEvent is one step of a streamed generation.
type ProgressEvent struct {
	Step string `json:"step"`
}

// HandleGenerateStream is HandleGenerate with progress reporting:
//
//	event: progress  {"step": "..."}   one per step
//	event: project   {...}             the stored project
//	event: error     {"error", "message"} instead of project on failure
//	data: [DONE]
//
// HTTP: POST /api/generate/stream
func (h *ProjectHandler) HandleGenerateStream(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req generateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	stream, err := sse.NewWriter(w)
	if err != nil {
		writeError(w, err)
		return
	}
	stop := stream.KeepAlive(sse.DefaultKeepAlive)
	defer stop()

	p, err := h.projects.Generate(r.Context(), uid, req.Prompt, req.TechStack, func(step string) {
		_ = stream.Event("progress", ProgressEvent{Step: step})
	})
	if err != nil {
		logError(h.logger, r, "streamed generation failed", err)
		_ = stream.Event(sse.ErrorEvent, errorEvent(err))
	} else {
		_ = stream.Event("project", p)
	}
	stop()
	_ = stream.Close()
}

// HandleGet returns one project with files.
//
// HTTP: GET /api/projects/{id}
func (h *ProjectHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	p, err := h.projects.Get(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		logError(h.logger, r, "loading project", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleDelete removes a project with its files and snapshots.
//
// HTTP: DELETE /api/projects/{id}
func (h *ProjectHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.projects.Delete(r.Context(), uid, chi.URLParam(r, "id")); err != nil {
		logError(h.logger, r, "deleting project", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Project deleted"})
}

type putFilesRequest struct {
	Files []model.File `json:"files"`
}

// HandlePutFiles upserts files by path.
//
// HTTP: PUT /api/projects/{id}/files
func (h *ProjectHandler) HandlePutFiles(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req putFilesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	p, err := h.projects.PutFiles(r.Context(), uid, chi.URLParam(r, "id"), req.Files)
	if err != nil {
		logError(h.logger, r, "saving files", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type chatTurnRequest struct {
	Message string              `json:"message"`
	History []model.ChatMessage `json:"history"`
}

// PlanResponse is the reply of a planning turn.
type PlanResponse struct {
	Response string `json:"response"`
}

// HandlePlan answers a planning message. Files are never changed.
//
// HTTP: POST /api/projects/{id}/chat/plan
func (h *ProjectHandler) HandlePlan(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req chatTurnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	reply, err := h.projects.Plan(r.Context(), uid, chi.URLParam(r, "id"), req.Message)
	if err != nil {
		logError(h.logger, r, "planning", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PlanResponse{Response: reply})
}

// HandleBuild asks the model for file updates and applies them.
//
// HTTP: POST /api/projects/{id}/chat/build
func (h *ProjectHandler) HandleBuild(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req chatTurnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	reply, err := h.projects.Build(r.Context(), uid, chi.URLParam(r, "id"), req.Message, req.History)
	if err != nil {
		logError(h.logger, r, "building", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// HandlePreview serves the rendered preview document.
//
// HTTP: GET /api/projects/{id}/preview?editable=true
func (h *ProjectHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	html, err := h.projects.Preview(r.Context(), uid, chi.URLParam(r, "id"), queryBool(r, "editable"))
	if err != nil {
		logError(h.logger, r, "rendering preview", err)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(html))
}

type saveStylesRequest struct {
	Styles string `json:"styles"`
}

// SaveStylesResponse reports whether a CSS file was overwritten.
type SaveStylesResponse struct {
	Saved   bool           `json:"saved"`
	Message string         `json:"message"`
	Project *model.Project `json:"project,omitempty"`
}

// HandleSaveStyles overwrites the project's first CSS file.
//
// HTTP: POST /api/projects/{id}/styles
func (h *ProjectHandler) HandleSaveStyles(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req saveStylesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	p, saved, err := h.projects.SaveStyles(r.Context(), uid, chi.URLParam(r, "id"), req.Styles)
	if err != nil {
		logError(h.logger, r, "saving styles", err)
		writeError(w, err)
		return
	}
	if !saved {
		writeJSON(w, http.StatusOK, SaveStylesResponse{Message: "No CSS file found to save styles into"})
		return
	}
	writeJSON(w, http.StatusOK, SaveStylesResponse{Saved: true, Message: "Styles saved", Project: p})
}

// errorEvent is the body of an "error" event on an already open stream.
func errorEvent(err error) ErrorResponse {
	status, errorType := statusFor(err)
	var appErr *apperror.AppError
	if status == http.StatusInternalServerError || !errors.As(err, &appErr) {
		return ErrorResponse{Error: "internal_error", Message: "An internal error occurred"}
	}
	return ErrorResponse{Error: errorType, Message: appErr.Message}
}
