package api

import (
	"encoding/json"
	"net/http"

	"github.com/shaiso/Docpipe/internal/domain"
)

// ListDefinitions возвращает последние версии определений в scope.
// GET /api/v1/pipelines?scope=...
func (h *Handler) ListDefinitions(w http.ResponseWriter, r *http.Request) {
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		BadRequest(w, "scope query parameter is required")
		return
	}

	defs, err := h.definitions.List(r.Context(), scope)
	if HandleStoreError(w, h.logger, err, "") {
		return
	}

	List(w, defs, len(defs))
}

// PublishDefinition публикует новую версию определения.
// POST /api/v1/pipelines
func (h *Handler) PublishDefinition(w http.ResponseWriter, r *http.Request) {
	var req PublishDefinitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Scope == "" || req.Key == "" {
		BadRequest(w, "scope and key are required")
		return
	}
	if len(req.Tasks) == 0 {
		BadRequest(w, "tasks must not be empty")
		return
	}
	for _, task := range req.Tasks {
		if task.ID == "" {
			BadRequest(w, "every task must have an id")
			return
		}
	}

	published, err := h.definitions.Publish(r.Context(), &domain.PipelineDefinition{
		Scope: req.Scope,
		Key:   req.Key,
		Tasks: req.Tasks,
	})
	if HandleStoreError(w, h.logger, err, "") {
		return
	}

	Created(w, published)
}

// GetDefinition возвращает последнюю версию определения.
// GET /api/v1/pipelines/{scope}/{key}
func (h *Handler) GetDefinition(w http.ResponseWriter, r *http.Request) {
	scope := r.PathValue("scope")
	key := r.PathValue("key")

	def, err := h.definitions.Lookup(r.Context(), scope, key)
	if HandleStoreError(w, h.logger, err, "pipeline definition not found") {
		return
	}

	Success(w, def)
}

// DeleteDefinition удаляет все версии определения.
// DELETE /api/v1/pipelines/{scope}/{key}
func (h *Handler) DeleteDefinition(w http.ResponseWriter, r *http.Request) {
	scope := r.PathValue("scope")
	key := r.PathValue("key")

	err := h.definitions.Delete(r.Context(), scope, key)
	if HandleStoreError(w, h.logger, err, "pipeline definition not found") {
		return
	}

	NoContent(w)
}
