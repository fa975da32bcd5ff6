package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		RequestID(),
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Runs
	mux.Handle("POST /api/v1/runs", chain(http.HandlerFunc(h.StartRun)))
	mux.Handle("GET /api/v1/runs/{id}", chain(http.HandlerFunc(h.GetRun)))
	mux.Handle("DELETE /api/v1/runs/{id}", chain(http.HandlerFunc(h.DeleteRun)))

	// Pipeline definitions
	mux.Handle("GET /api/v1/pipelines", chain(http.HandlerFunc(h.ListDefinitions)))
	mux.Handle("POST /api/v1/pipelines", chain(http.HandlerFunc(h.PublishDefinition)))
	mux.Handle("GET /api/v1/pipelines/{scope}/{key}", chain(http.HandlerFunc(h.GetDefinition)))
	mux.Handle("DELETE /api/v1/pipelines/{scope}/{key}", chain(http.HandlerFunc(h.DeleteDefinition)))
}
