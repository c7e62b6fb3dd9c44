package api

import (
	"net/http"
)

// registerAPIRoutes registers all API endpoints on the given mux
func registerAPIRoutes(mux *http.ServeMux, h *Handler) {
	// Generation
	mux.HandleFunc("POST /api/generate", h.Generate)
	mux.HandleFunc("POST /api/preview", h.Preview)

	// Job management
	mux.HandleFunc("GET /api/jobs", h.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", h.GetJob)
	mux.HandleFunc("DELETE /api/jobs/{id}", h.DeleteJob)
	mux.HandleFunc("GET /api/jobs/{id}/stream", h.JobStream)

	// Artifacts
	mux.HandleFunc("GET /api/videos/{id}", h.GetVideo)
	mux.HandleFunc("GET /api/audio/{id}/{step}", h.GetAudio)

	// Misc
	mux.HandleFunc("GET /health", h.Health)
}

// NewRouter creates a new HTTP router with all API endpoints
func NewRouter(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	registerAPIRoutes(mux, h)
	return mux
}
