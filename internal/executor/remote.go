package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shaiso/Docpipe/internal/domain"
)

const defaultHTTPTimeout = 30 * time.Second

// RemoteExecutor — executor для шага типа REMOTE.
//
// Выполняет POST-запрос к внешнему сервису обработки.
//
// Config:
//   - url (string): URL сервиса (обязательно)
//   - timeout_sec (number): таймаут запроса в секундах. Default: 30
//
// Тело запроса — идентификационный кортеж, subject и context задачи.
// Ответ сервиса (JSON) становится результатом шага.
type RemoteExecutor struct {
	client *http.Client
}

// NewRemoteExecutor создаёт RemoteExecutor.
// client может быть nil — тогда используется http.DefaultClient.
func NewRemoteExecutor(client *http.Client) *RemoteExecutor {
	if client == nil {
		client = http.DefaultClient
	}
	return &RemoteExecutor{client: client}
}

// remoteRequest — тело запроса к внешнему сервису.
type remoteRequest struct {
	AppID      string               `json:"app_id"`
	TenantID   string               `json:"tenant_id"`
	PatientID  string               `json:"patient_id"`
	DocumentID string               `json:"document_id"`
	RunID      string               `json:"run_id"`
	TaskID     string               `json:"task_id"`
	PageNumber *int                 `json:"page_number,omitempty"`
	Subject    map[string]any       `json:"subject,omitempty"`
	Context    domain.ResultContext `json:"context,omitempty"`
}

// Execute выполняет запрос к внешнему сервису.
func (e *RemoteExecutor) Execute(ctx context.Context, params *domain.TaskParameters) (any, error) {
	url := params.TaskConfig.ConfigString("url")
	if url == "" {
		return nil, fmt.Errorf("%w: url is required", ErrBadStepConfig)
	}

	ctx, cancel := context.WithTimeout(ctx, stepTimeout(&params.TaskConfig))
	defer cancel()

	body, err := json.Marshal(remoteRequest{
		AppID:      params.AppID,
		TenantID:   params.TenantID,
		PatientID:  params.PatientID,
		DocumentID: params.DocumentID,
		RunID:      params.RunID,
		TaskID:     params.TaskConfig.ID,
		PageNumber: params.PageNumber,
		Subject:    params.Subject,
		Context:    params.Context,
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

// stepTimeout извлекает таймаут из конфигурации шага.
func stepTimeout(step *domain.TaskStep) time.Duration {
	if step.Config != nil {
		switch v := step.Config["timeout_sec"].(type) {
		case float64:
			if v > 0 {
				return time.Duration(v * float64(time.Second))
			}
		case int:
			if v > 0 {
				return time.Duration(v) * time.Second
			}
		}
	}
	return defaultHTTPTimeout
}

// postJSON выполняет POST и разбирает JSON-ответ.
// HTTP >= 400 — ошибка (шаг уходит в retry оркестратора).
func postJSON(ctx context.Context, client *http.Client, url string, body []byte) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrHTTPRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHTTPRequest, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrHTTPRequest, err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrHTTPRequest, resp.StatusCode, truncate(string(respBody), 200))
	}

	// Пустой ответ допустим
	if len(respBody) == 0 {
		return nil, nil
	}

	var result any
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrHTTPRequest, err)
	}
	return result, nil
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
