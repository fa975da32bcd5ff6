package executor

import (
	"context"
	"fmt"

	"github.com/shaiso/Docpipe/internal/domain"
)

// Launcher запускает вложенный pipeline.
// Реализуется оркестратором; интерфейс разрывает циклическую зависимость
// между executor и orchestrator.
type Launcher interface {
	Launch(ctx context.Context, params *domain.TaskParameters, scope, key string) (any, error)
}

// PipelineExecutor — executor для шага типа PIPELINE.
//
// Config:
//   - key (string): имя вложенного pipeline (обязательно)
//   - scope (string): scope вложенного pipeline. Default: scope родителя
//
// Вложенный pipeline наследует run_id и идентификационный кортеж
// родителя; его записи статусов попадают в тот же run.
type PipelineExecutor struct {
	launcher Launcher
}

// NewPipelineExecutor создаёт PipelineExecutor.
func NewPipelineExecutor(launcher Launcher) *PipelineExecutor {
	return &PipelineExecutor{launcher: launcher}
}

// Execute запускает вложенный pipeline.
func (e *PipelineExecutor) Execute(ctx context.Context, params *domain.TaskParameters) (any, error) {
	key := params.TaskConfig.ConfigString("key")
	if key == "" {
		return nil, fmt.Errorf("%w: key is required", ErrBadStepConfig)
	}

	scope := params.TaskConfig.ConfigString("scope")
	if scope == "" {
		scope = params.Scope
	}

	return e.launcher.Launch(ctx, params, scope, key)
}
