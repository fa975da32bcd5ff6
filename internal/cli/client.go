package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// TaskStepResponse — шаг определения pipeline из API.
type TaskStepResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Queue        string         `json:"queue,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
	EntitySchema string         `json:"entity_schema,omitempty"`
}

// DefinitionResponse — определение pipeline из API.
type DefinitionResponse struct {
	Scope   string             `json:"scope"`
	Key     string             `json:"key"`
	Version int                `json:"version"`
	Tasks   []TaskStepResponse `json:"tasks"`
}

// RunStartedResponse — ответ на запуск run.
type RunStartedResponse struct {
	RunID       string `json:"run_id"`
	Scope       string `json:"scope"`
	PipelineKey string `json:"pipeline_key"`
	FirstTaskID string `json:"first_task_id"`
}

// RunStatusResponse — агрегированный статус run из API.
type RunStatusResponse struct {
	RunID          string               `json:"run_id"`
	Status         string               `json:"status"`
	ElapsedSeconds float64              `json:"elapsed_time"`
	Pipelines      []PipelineStatusItem `json:"pipelines"`
}

// PipelineStatusItem — статус одного pipeline внутри run.
// Metadata заполнена только для FAILED pipeline (причина, упавший task).
type PipelineStatusItem struct {
	PipelineID string         `json:"pipeline_id"`
	Status     string         `json:"status"`
	Order      int            `json:"order,omitempty"`
	PageLevel  bool           `json:"page_level,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// --- Request types ---

// StartRunRequest — запуск run.
type StartRunRequest struct {
	AppID         string         `json:"app_id,omitempty"`
	TenantID      string         `json:"tenant_id,omitempty"`
	PatientID     string         `json:"patient_id,omitempty"`
	DocumentID    string         `json:"document_id"`
	RunID         string         `json:"run_id,omitempty"`
	Scope         string         `json:"scope"`
	PipelineKey   string         `json:"pipeline_key"`
	OperationType string         `json:"operation_type,omitempty"`
	Subject       map[string]any `json:"subject,omitempty"`
	PageCount     int            `json:"page_count,omitempty"`
	MaxRetryCount *int           `json:"max_retry_count,omitempty"`
	RetryFactor   *float64       `json:"retry_factor,omitempty"`
}

// PublishDefinitionRequest — публикация определения pipeline.
type PublishDefinitionRequest struct {
	Scope string             `json:"scope"`
	Key   string             `json:"key"`
	Tasks []TaskStepResponse `json:"tasks"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Docpipe API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Runs ---

// StartRun запускает новый run.
func (c *Client) StartRun(req StartRunRequest) (*RunStartedResponse, error) {
	var started RunStartedResponse
	err := c.post("/api/v1/runs", req, &started)
	return &started, err
}

// GetRun возвращает агрегированный статус run.
func (c *Client) GetRun(id string) (*RunStatusResponse, error) {
	var status RunStatusResponse
	err := c.get("/api/v1/runs/"+id, &status)
	return &status, err
}

// DeleteRun удаляет все записи статусов run.
func (c *Client) DeleteRun(id string) error {
	return c.delete("/api/v1/runs/" + id)
}

// --- Pipeline definitions ---

// ListDefinitions возвращает последние версии определений в scope.
func (c *Client) ListDefinitions(scope string) ([]DefinitionResponse, error) {
	params := url.Values{}
	params.Set("scope", scope)

	var defs []DefinitionResponse
	err := c.list("/api/v1/pipelines", params, &defs)
	return defs, err
}

// PublishDefinition публикует новую версию определения.
func (c *Client) PublishDefinition(req PublishDefinitionRequest) (*DefinitionResponse, error) {
	var def DefinitionResponse
	err := c.post("/api/v1/pipelines", req, &def)
	return &def, err
}

// GetDefinition возвращает последнюю версию определения.
func (c *Client) GetDefinition(scope, key string) (*DefinitionResponse, error) {
	var def DefinitionResponse
	err := c.get("/api/v1/pipelines/"+scope+"/"+key, &def)
	return &def, err
}

// DeleteDefinition удаляет все версии определения.
func (c *Client) DeleteDefinition(scope, key string) error {
	return c.delete("/api/v1/pipelines/" + scope + "/" + key)
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
