package executor

import (
	"context"
	"fmt"

	"github.com/shaiso/Docpipe/internal/domain"
)

// Executor — интерфейс для выполнения конкретного типа шага.
//
// params.TaskConfig содержит конфигурацию шага. Возвращённое значение —
// произвольный JSON-совместимый результат шага; инфраструктурные и
// логические ошибки возвращаются через error и обрабатываются
// retry-логикой оркестратора.
type Executor interface {
	Execute(ctx context.Context, params *domain.TaskParameters) (any, error)
}

// Registry — реестр executor'ов по типу шага.
type Registry struct {
	executors map[domain.StepType]Executor
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[domain.StepType]Executor)}
}

// Register добавляет executor для типа шага.
func (r *Registry) Register(stepType domain.StepType, executor Executor) {
	r.executors[stepType] = executor
}

// Get возвращает executor для типа шага.
func (r *Registry) Get(stepType domain.StepType) (Executor, error) {
	executor, ok := r.executors[stepType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStepType, stepType)
	}
	return executor, nil
}
