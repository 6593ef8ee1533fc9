package api

import "net/http"

// Routes groups the handlers mounted by SetupRoutes. Nil handlers are skipped.
type Routes struct {
	Main            *Handler
	IngestionErrors *IngestionErrorHandler
	InferenceLogs   *InferenceLogHandler
}

// SetupRoutes registers the read API on mux.
func SetupRoutes(mux *http.ServeMux, rt Routes) {
	if h := rt.Main; h != nil {
		mux.HandleFunc("GET /healthz", h.Health)
		mux.HandleFunc("GET /api/videos", h.ListVideos)
		mux.HandleFunc("GET /api/videos/{id}", h.GetVideo)
		mux.HandleFunc("GET /api/videos/{id}/analysis", h.GetAnalysis)
		mux.HandleFunc("GET /api/videos/{id}/comments", h.ListComments)
		mux.HandleFunc("GET /api/items", h.ListItems)
		mux.HandleFunc("GET /api/items/{id}", h.GetItem)
		mux.HandleFunc("GET /api/search", h.Search)
	}
	if rt.IngestionErrors != nil {
		mux.HandleFunc("GET /api/ingestion-errors", rt.IngestionErrors.List)
	}
	if rt.InferenceLogs != nil {
		mux.HandleFunc("GET /api/admin/inference-logs", rt.InferenceLogs.List)
	}
}
