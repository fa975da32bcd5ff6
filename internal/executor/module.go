package executor

import (
	"context"
	"fmt"

	"github.com/shaiso/Docpipe/internal/domain"
)

// ModuleFunc — встроенный модуль: Go-функция, выполняющая шаг in-process.
type ModuleFunc func(ctx context.Context, params *domain.TaskParameters) (any, error)

// ModuleExecutor — executor для шага типа MODULE.
//
// Config:
//   - module (string): имя зарегистрированной функции (обязательно)
type ModuleExecutor struct {
	modules map[string]ModuleFunc
}

// NewModuleExecutor создаёт ModuleExecutor без зарегистрированных модулей.
func NewModuleExecutor() *ModuleExecutor {
	return &ModuleExecutor{modules: make(map[string]ModuleFunc)}
}

// RegisterModule добавляет модуль под указанным именем.
func (e *ModuleExecutor) RegisterModule(name string, fn ModuleFunc) {
	e.modules[name] = fn
}

// Execute вызывает зарегистрированный модуль.
func (e *ModuleExecutor) Execute(ctx context.Context, params *domain.TaskParameters) (any, error) {
	name := params.TaskConfig.ConfigString("module")
	if name == "" {
		return nil, fmt.Errorf("%w: module is required", ErrBadStepConfig)
	}

	fn, ok := e.modules[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}

	return fn(ctx, params)
}
