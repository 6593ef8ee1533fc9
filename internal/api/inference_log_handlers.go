package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/clipscope/clipscope/internal/database"
	"github.com/clipscope/clipscope/internal/models"
)

// InferenceLogLister reads the model call log.
type InferenceLogLister interface {
	List(ctx context.Context, q database.InferenceLogQuery) ([]models.InferenceLog, error)
}

// InferenceLogHandler handles inference log API requests
type InferenceLogHandler struct {
	repo   InferenceLogLister
	logger *slog.Logger
}

// NewInferenceLogHandler creates a new inference log handler
func NewInferenceLogHandler(repo InferenceLogLister, logger *slog.Logger) *InferenceLogHandler {
	return &InferenceLogHandler{repo: repo, logger: logger}
}

// List handles GET /api/admin/inference-logs
func (h *InferenceLogHandler) List(w http.ResponseWriter, r *http.Request) {
	q := database.InferenceLogQuery{
		Provider: r.URL.Query().Get("provider"),
		VideoID:  r.URL.Query().Get("video_id"),
		Status:   r.URL.Query().Get("status"),
		Limit:    parseLimit(r, 100),
	}

	logs, err := h.repo.List(r.Context(), q)
	if err != nil {
		h.logger.Error("failed to list inference logs", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"logs":  logs,
		"count": len(logs),
	}, h.logger)
}
