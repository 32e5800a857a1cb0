package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is a dependency whose liveness the health check reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports liveness and which optional backends are wired.
type HealthHandler struct {
	db        Pinger
	llm       string
	platforms []string
	storage   bool
	logger    *slog.Logger
}

// NewHealthHandler takes the LLM backend name ("" when none is configured)
// and the registered deploy platforms.
func NewHealthHandler(db Pinger, llm string, platforms []string, storage bool, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, llm: llm, platforms: platforms, storage: storage, logger: logger}
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status       string   `json:"status"`
	Database     string   `json:"database"`
	LLM          string   `json:"llm"`
	LLMAvailable bool     `json:"llm_available"`
	Platforms    []string `json:"platforms"`
	ObjectStore  bool     `json:"object_storage"`
}

// HandleHealth answers 200 when the database responds and 503 otherwise.
//
// HTTP: GET /api/health
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:       "healthy",
		Database:     "ok",
		LLM:          h.llm,
		LLMAvailable: h.llm != "",
		Platforms:    h.platforms,
		ObjectStore:  h.storage,
	}
	if resp.LLM == "" {
		resp.LLM = "none"
	}
	if resp.Platforms == nil {
		resp.Platforms = []string{}
	}

	status := http.StatusOK
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.logger.Error("health check: database ping failed", slog.String("error", err.Error()))
			resp.Status, resp.Database = "unhealthy", "unreachable"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}
