package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shaiso/Docpipe/internal/domain"
)

// CallbackExecutor — executor для шага типа PUBLISH_CALLBACK.
//
// Публикует накопленные entities во внешний callback.
//
// Config:
//   - callback_url (string): URL приёмника (обязательно)
//   - timeout_sec (number): таймаут запроса в секундах. Default: 30
type CallbackExecutor struct {
	client *http.Client
}

// NewCallbackExecutor создаёт CallbackExecutor.
func NewCallbackExecutor(client *http.Client) *CallbackExecutor {
	if client == nil {
		client = http.DefaultClient
	}
	return &CallbackExecutor{client: client}
}

// callbackRequest — тело callback-запроса.
type callbackRequest struct {
	AppID      string               `json:"app_id"`
	TenantID   string               `json:"tenant_id"`
	PatientID  string               `json:"patient_id"`
	DocumentID string               `json:"document_id"`
	RunID      string               `json:"run_id"`
	Entities   domain.ResultContext `json:"entities"`
}

// Execute доставляет entities.
func (e *CallbackExecutor) Execute(ctx context.Context, params *domain.TaskParameters) (any, error) {
	url := params.TaskConfig.ConfigString("callback_url")
	if url == "" {
		return nil, fmt.Errorf("%w: callback_url is required", ErrBadStepConfig)
	}

	ctx, cancel := context.WithTimeout(ctx, stepTimeout(&params.TaskConfig))
	defer cancel()

	body, err := json.Marshal(callbackRequest{
		AppID:      params.AppID,
		TenantID:   params.TenantID,
		PatientID:  params.PatientID,
		DocumentID: params.DocumentID,
		RunID:      params.RunID,
		Entities:   params.Entities,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal body: %v", ErrHTTPRequest, err)
	}

	result, err := postJSON(ctx, e.client, url, body)
	if err != nil {
		return nil, err
	}
	return result, nil
}
