package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/clipscope/clipscope/internal/models"
	"github.com/clipscope/clipscope/internal/search"
)

// Store is the read side of the document store.
type Store interface {
	GetVideo(ctx context.Context, id string) (*models.Video, error)
	ListVideos(ctx context.Context, limit int) ([]models.Video, error)
	ListVideosByItem(ctx context.Context, itemID string) ([]models.Video, error)
	GetAnalysis(ctx context.Context, videoID string) (*models.Analysis, error)
	GetItem(ctx context.Context, id string) (*models.InboundItem, error)
	ListItems(ctx context.Context, limit int) ([]models.InboundItem, error)
	ListComments(ctx context.Context, videoID string) ([]models.Comment, error)
}

// Searcher queries the analysis index.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]search.Result, error)
}

// Handler serves videos, items, analyses and search.
type Handler struct {
	store     Store
	searcher  Searcher
	logger    *slog.Logger
	startTime time.Time
}

// NewHandler creates the read API handler. searcher may be nil.
func NewHandler(store Store, searcher Searcher, logger *slog.Logger) *Handler {
	return &Handler{
		store:     store,
		searcher:  searcher,
		logger:    logger,
		startTime: time.Now(),
	}
}

// ListVideos handles GET /api/videos
func (h *Handler) ListVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := h.store.ListVideos(r.Context(), parseLimit(r, 50))
	if err != nil {
		h.internalError(w, "failed to list videos", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"videos": videos, "count": len(videos)})
}

// GetVideo handles GET /api/videos/{id}
func (h *Handler) GetVideo(w http.ResponseWriter, r *http.Request) {
	video, err := h.store.GetVideo(r.Context(), r.PathValue("id"))
	if h.lookupFailed(w, "video", err) {
		return
	}
	h.writeJSON(w, http.StatusOK, video)
}

// GetAnalysis handles GET /api/videos/{id}/analysis
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	a, err := h.store.GetAnalysis(r.Context(), r.PathValue("id"))
	if h.lookupFailed(w, "analysis", err) {
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"analysis": a, "state": a.State()})
}

// ListComments handles GET /api/videos/{id}/comments
func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.store.ListComments(r.Context(), r.PathValue("id"))
	if err != nil {
		h.internalError(w, "failed to list comments", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"comments": comments, "count": len(comments)})
}

// ListItems handles GET /api/items
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListItems(r.Context(), parseLimit(r, 50))
	if err != nil {
		h.internalError(w, "failed to list items", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

// GetItem handles GET /api/items/{id}, including the videos extracted from it.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.store.GetItem(r.Context(), r.PathValue("id"))
	if h.lookupFailed(w, "item", err) {
		return
	}
	videos, err := h.store.ListVideosByItem(r.Context(), item.ID)
	if err != nil {
		h.internalError(w, "failed to list item videos", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"item": item, "videos": videos})
}

// Search handles GET /api/search?q=
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if h.searcher == nil {
		http.Error(w, "Search is not enabled", http.StatusServiceUnavailable)
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		http.Error(w, "Query parameter q is required", http.StatusBadRequest)
		return
	}
	results, err := h.searcher.Search(r.Context(), q, parseLimit(r, 20))
	if err != nil {
		h.internalError(w, "search failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results), "query": q})
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(h.startTime).Round(time.Second).String(),
	})
}

// lookupFailed writes 404 or 500 for a failed single-record read.
func (h *Handler) lookupFailed(w http.ResponseWriter, what string, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, models.ErrNotFound):
		http.Error(w, what+" not found", http.StatusNotFound)
	default:
		h.internalError(w, "failed to get "+what, err)
	}
	return true
}

func (h *Handler) internalError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, "error", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, v, h.logger)
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func parseLimit(r *http.Request, def int) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return min(n, 500)
		}
	}
	return def
}
