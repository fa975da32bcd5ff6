package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Docpipe/internal/domain"
)

// StartRun запускает новый run.
// POST /api/v1/runs
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Scope == "" || req.PipelineKey == "" {
		BadRequest(w, "scope and pipeline_key are required")
		return
	}
	if req.DocumentID == "" {
		BadRequest(w, "document_id is required")
		return
	}

	def, err := h.definitions.Lookup(r.Context(), req.Scope, req.PipelineKey)
	if HandleStoreError(w, h.logger, err, "pipeline definition not found") {
		return
	}

	first := def.FirstTask()
	if first == nil {
		Conflict(w, "pipeline definition has no tasks")
		return
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	maxRetryCount := defaultMaxRetryCount
	if req.MaxRetryCount != nil {
		maxRetryCount = *req.MaxRetryCount
	}
	retryFactor := defaultRetryFactor
	if req.RetryFactor != nil {
		retryFactor = *req.RetryFactor
	}

	params := &domain.TaskParameters{
		AppID:         req.AppID,
		TenantID:      req.TenantID,
		PatientID:     req.PatientID,
		DocumentID:    req.DocumentID,
		RunID:         runID,
		Scope:         req.Scope,
		PipelineKey:   req.PipelineKey,
		OperationType: domain.OperationType(req.OperationType),
		PageCount:     req.PageCount,
		TaskConfig:    *first,
		Subject:       req.Subject,
		MaxRetryCount: maxRetryCount,
		RetryFactor:   retryFactor,
	}

	if _, err := h.invoker.Invoke(r.Context(), params); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Created(w, RunStartedResponse{
		RunID:       runID,
		Scope:       req.Scope,
		PipelineKey: req.PipelineKey,
		FirstTaskID: first.ID,
	})
}

// GetRun возвращает агрегированный статус run.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if runID == "" {
		BadRequest(w, "run id is required")
		return
	}

	view, err := h.status.ListPipelinesForRun(r.Context(), runID)
	if HandleStoreError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, view)
}

// DeleteRun удаляет все pipeline-записи run.
// DELETE /api/v1/runs/{id}
func (h *Handler) DeleteRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if runID == "" {
		BadRequest(w, "run id is required")
		return
	}

	deleted, err := h.status.DeleteAllPipelinesForRun(r.Context(), runID)
	if HandleStoreError(w, h.logger, err, "") {
		return
	}

	if !deleted {
		NotFound(w, "run has no tracked pipelines")
		return
	}

	NoContent(w)
}
