package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultPromptTimeout = 120 * time.Second

// HTTPPromptClient — PromptClient поверх HTTP API LLM-сервиса.
//
// Выполняет POST {baseURL}/v1/prompts/{promptKey} с входными данными
// в теле запроса и возвращает распарсенный JSON-ответ.
type HTTPPromptClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPPromptClient создаёт клиент LLM-сервиса.
func NewHTTPPromptClient(baseURL string) *HTTPPromptClient {
	return &HTTPPromptClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultPromptTimeout},
	}
}

// Complete выполняет промпт promptKey с входными данными input.
func (c *HTTPPromptClient) Complete(ctx context.Context, promptKey string, input map[string]any) (any, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal prompt input: %w", err)
	}

	url := c.baseURL + "/v1/prompts/" + promptKey
	result, err := postJSON(ctx, c.client, url, body)
	if err != nil {
		return nil, fmt.Errorf("prompt service: %w", err)
	}
	return result, nil
}
