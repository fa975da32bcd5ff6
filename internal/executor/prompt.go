package executor

import (
	"context"
	"fmt"

	"github.com/shaiso/Docpipe/internal/domain"
)

// PromptClient — клиент LLM-сервиса для выполнения промптов.
//
// Боевая реализация — HTTPPromptClient; в тестах подменяется на фейк.
type PromptClient interface {
	// Complete выполняет промпт promptKey с входными данными input
	// и возвращает распарсенный результат.
	Complete(ctx context.Context, promptKey string, input map[string]any) (any, error)
}

// PromptExecutor — executor для шага типа PROMPT.
//
// Config:
//   - prompt_key (string): ключ промпта в LLM-сервисе (обязательно)
//
// Входными данными промпта служит Subject задачи; результаты предыдущих
// шагов доступны промпту через ключ "context".
type PromptExecutor struct {
	client PromptClient
}

// NewPromptExecutor создаёт PromptExecutor.
func NewPromptExecutor(client PromptClient) *PromptExecutor {
	return &PromptExecutor{client: client}
}

// Execute выполняет промпт.
func (e *PromptExecutor) Execute(ctx context.Context, params *domain.TaskParameters) (any, error) {
	promptKey := params.TaskConfig.ConfigString("prompt_key")
	if promptKey == "" {
		return nil, fmt.Errorf("%w: prompt_key is required", ErrBadStepConfig)
	}

	input := make(map[string]any, len(params.Subject)+1)
	for k, v := range params.Subject {
		input[k] = v
	}
	if len(params.Context) > 0 {
		input["context"] = map[string]map[string]map[string]any(params.Context)
	}

	result, err := e.client.Complete(ctx, promptKey, input)
	if err != nil {
		return nil, fmt.Errorf("prompt %s: %w", promptKey, err)
	}
	return result, nil
}
