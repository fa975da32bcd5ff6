package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrTaskNotInDefinition — текущий шаг отсутствует в определении pipeline.
	ErrTaskNotInDefinition = errors.New("task not found in pipeline definition")

	// ErrEmptyPipeline — определение pipeline не содержит шагов.
	ErrEmptyPipeline = errors.New("pipeline definition has no tasks")

	// ErrEnqueue — постановка задачи в очередь не удалась.
	ErrEnqueue = errors.New("enqueue failed")
)
