package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/app-builder/internal/deploy"
	"github.com/sakif/app-builder/internal/service"
	"github.com/sakif/app-builder/internal/sse"
)

// DeployHandler serves deploys and deployment status.
type DeployHandler struct {
	deploys *service.DeployService
	logger  *slog.Logger
}

func NewDeployHandler(deploys *service.DeployService, logger *slog.Logger) *DeployHandler {
	return &DeployHandler{deploys: deploys, logger: logger}
}

type deployRequest struct {
	Platform string `json:"platform"`
}

// platform reads ?platform=, falling back to a JSON body.
func platform(w http.ResponseWriter, r *http.Request) (string, error) {
	if p := r.URL.Query().Get("platform"); p != "" {
		return p, nil
	}
	if r.Body == nil || r.ContentLength == 0 {
		return "", nil
	}
	var req deployRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return "", err
	}
	return req.Platform, nil
}

// HandleDeploy makes one deploy call. Platform failures are reported in the
// result body with status 200; the call itself succeeded.
//
// HTTP: POST /api/projects/{id}/deploy?platform=vercel
func (h *DeployHandler) HandleDeploy(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	name, err := platform(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.deploys.Deploy(r.Context(), uid, chi.URLParam(r, "id"), name)
	if err != nil {
		logError(h.logger, r, "deploying", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// StageEvent is the stage list after one transition.
type StageEvent struct {
	Stages []deploy.Stage `json:"stages"`
}

// HandleDeployStream runs the deploy behind the stage pipeline:
//
//	event: stages  {"stages": [...]}  after every transition
//	event: result  {...}              the deploy result, success or not
//	event: error   {"error", "message"} when no result exists
//	data: [DONE]
//
// HTTP: GET /api/projects/{id}/deploy/stream?platform=vercel
func (h *DeployHandler) HandleDeployStream(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
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

	res, _, err := h.deploys.DeployStaged(r.Context(), uid, chi.URLParam(r, "id"), r.URL.Query().Get("platform"), func(stages []deploy.Stage) {
		_ = stream.Event("stages", StageEvent{Stages: stages})
	})
	switch {
	case res != nil:
		_ = stream.Event("result", res)
	case err != nil:
		if !errors.Is(err, r.Context().Err()) {
			logError(h.logger, r, "staged deploy failed", err)
		}
		_ = stream.Event(sse.ErrorEvent, errorEvent(err))
	}
	stop()
	_ = stream.Close()
}

// HandleStatus reports a recorded deployment and the provider's view of it.
//
// HTTP: GET /api/deployments/{id}/status
func (h *DeployHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	st, err := h.deploys.Status(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		logError(h.logger, r, "deployment status", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
