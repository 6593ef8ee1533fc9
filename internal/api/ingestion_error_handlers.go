package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/clipscope/clipscope/internal/models"
)

// IngestionErrorLister reads recorded extraction failures.
type IngestionErrorLister interface {
	List(ctx context.Context, itemID string, limit int) ([]models.IngestionError, error)
}

// IngestionErrorHandler handles ingestion error API requests
type IngestionErrorHandler struct {
	repo   IngestionErrorLister
	logger *slog.Logger
}

// NewIngestionErrorHandler creates a new ingestion error handler
func NewIngestionErrorHandler(repo IngestionErrorLister, logger *slog.Logger) *IngestionErrorHandler {
	return &IngestionErrorHandler{repo: repo, logger: logger}
}

// List handles GET /api/ingestion-errors?item_id=&limit=
func (h *IngestionErrorHandler) List(w http.ResponseWriter, r *http.Request) {
	itemID := r.URL.Query().Get("item_id")

	errs, err := h.repo.List(r.Context(), itemID, parseLimit(r, 100))
	if err != nil {
		h.logger.Error("failed to list ingestion errors", "error", err, "item_id", itemID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"errors": errs,
		"count":  len(errs),
	}, h.logger)
}
