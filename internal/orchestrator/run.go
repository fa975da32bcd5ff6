package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Docpipe/internal/domain"
	"github.com/shaiso/Docpipe/internal/telemetry"
)

// Run выполняет один шаг pipeline.
//
// Жизненный цикл:
//  1. Отметить IN_PROGRESS (best-effort).
//  2. Выполнить шаг через executor registry.
//  3. Записать результат в context (и в entities при entity_schema).
//  4. Разрешить следующий шаг (включая постраничный fan-out) и поставить
//     каждую следующую задачу в очередь.
//  5. Если следующего шага нет — pipeline завершён: записать COMPLETED
//     (дважды для постраничного финального шага).
//
// Любая ошибка выполнения шага уходит в retry-путь; наружу Run возвращает
// ошибку только при невозможности поставить задачу в очередь.
func (o *Orchestrator) Run(ctx context.Context, params *domain.TaskParameters) (*domain.TaskResults, error) {
	o.writeStatus(ctx, params, domain.StatusInProgress, nil)

	exec, err := o.registry.Get(params.TaskConfig.Type)
	if err != nil {
		// Ошибка конфигурации: retry её не исправит, но путь единый
		return o.handleFailure(ctx, params, err)
	}

	result, err := exec.Execute(ctx, params)
	if err != nil {
		telemetry.TasksExecuted.WithLabelValues(string(params.TaskConfig.Type), "failure").Inc()
		return o.handleFailure(ctx, params, err)
	}
	telemetry.TasksExecuted.WithLabelValues(string(params.TaskConfig.Type), "success").Inc()

	// Результат шага — часть контекста всех последующих шагов
	params.Context = params.Context.WithValue(params.Scope, params.PipelineKey, params.TaskConfig.ID, result)
	if schema := params.TaskConfig.EntitySchema; schema != "" {
		entity := domain.WrapEntities(schema, result)
		params.Entities = params.Entities.WithValue(params.Scope, params.PipelineKey, params.TaskConfig.ID, entity)
	}

	nextTasks := o.resolveNext(ctx, params, result)

	if len(nextTasks) == 0 {
		return o.completePipeline(ctx, params, result)
	}

	metadata := nextTasksMetadata(nextTasks)

	for _, next := range nextTasks {
		if o.localMode || next.TaskConfig.Queue == domain.QueueDirect {
			if _, err := o.Run(ctx, next); err != nil {
				return nil, err
			}
			continue
		}

		queue := o.resolveQueue(next.TaskConfig.Queue)
		if err := o.queue.Enqueue(ctx, next, queue, time.Time{}); err != nil {
			return nil, fmt.Errorf("%w: next task %s to %s: %v", ErrEnqueue, next.TaskConfig.ID, queue, err)
		}

		telemetry.TaskLogger(o.logger, next).Info("next task enqueued", "queue", queue)
	}

	return &domain.TaskResults{
		Success:  true,
		Results:  result,
		Metadata: metadata,
	}, nil
}

// completePipeline — завершение pipeline на последнем шаге.
//
// Для постраничного финального шага COMPLETED пишется дважды: в scope
// страницы и на уровне документа, чтобы документное представление тоже
// отражало завершение.
func (o *Orchestrator) completePipeline(ctx context.Context, params *domain.TaskParameters, result any) (*domain.TaskResults, error) {
	o.writeStatus(ctx, params, domain.StatusCompleted, nil)
	if params.PageNumber != nil {
		o.writeStatusForPage(ctx, params, domain.StatusCompleted, nil, nil)
	}

	telemetry.TaskLogger(o.logger, params).Info("pipeline completed")

	return &domain.TaskResults{
		Success: true,
		Results: result,
		Metadata: map[string]any{
			"pipeline_completed": true,
		},
	}, nil
}

// handleFailure — retry/failure путь.
//
// Бюджет не исчерпан: копия задачи с iteration+1 ставится в очередь
// с задержкой retry_factor * 2^iteration секунд. Ошибка постановки retry
// эскалируется в фатальный путь немедленно. Бюджет исчерпан: pipeline
// помечается FAILED, дальнейших попыток нет.
func (o *Orchestrator) handleFailure(ctx context.Context, params *domain.TaskParameters, execErr error) (*domain.TaskResults, error) {
	taskLog := telemetry.TaskLogger(o.logger, params)
	taskLog.Warn("task execution failed",
		"iteration", params.Iteration,
		"error", execErr,
	)

	if params.CanRetry() {
		retry := params.ForRetry()

		var notBefore time.Time
		if delay := retry.RetryDelay(); delay > 0 {
			notBefore = o.now().Add(delay)
		}

		queue := o.resolveQueue(params.TaskConfig.Queue)
		if err := o.queue.Enqueue(ctx, retry, queue, notBefore); err != nil {
			taskLog.Error("retry enqueue failed, escalating", "error", err)
			return o.markFailed(ctx, params, execErr, "retry_enqueue_failed"), nil
		}

		telemetry.RetriesScheduled.Inc()

		taskLog.Info("retry scheduled",
			"attempt", retry.Iteration,
			"not_before", notBefore,
		)

		return &domain.TaskResults{
			Success:      false,
			ErrorMessage: execErr.Error(),
			Metadata: map[string]any{
				"retry_initiated": true,
				"retry_attempt":   retry.Iteration,
			},
		}, nil
	}

	return o.markFailed(ctx, params, execErr, "max_retries_exceeded"), nil
}

// markFailed помечает pipeline FAILED. Терминально для этого pipeline;
// sibling-pipeline'ы того же run продолжают выполняться.
//
// marker различает причину эскалации: "max_retries_exceeded" — бюджет
// retry исчерпан, "retry_enqueue_failed" — retry не удалось поставить
// в очередь (бюджет мог быть не исчерпан).
func (o *Orchestrator) markFailed(ctx context.Context, params *domain.TaskParameters, execErr error, marker string) *domain.TaskResults {
	telemetry.PipelinesFailed.Inc()

	o.writeStatus(ctx, params, domain.StatusFailed, map[string]any{
		"failure_reason": execErr.Error(),
		"failed_task":    params.TaskConfig.ID,
		marker:           true,
	})

	return &domain.TaskResults{
		Success:      false,
		ErrorMessage: execErr.Error(),
		Metadata: map[string]any{
			marker: true,
		},
	}
}

// nextTasksMetadata строит metadata-аннотацию о разрешённых следующих задачах.
func nextTasksMetadata(nextTasks []*domain.TaskParameters) map[string]any {
	annotated := make([]map[string]any, 0, len(nextTasks))
	for _, next := range nextTasks {
		entry := map[string]any{
			"id":   next.TaskConfig.ID,
			"type": string(next.TaskConfig.Type),
		}
		if next.PageNumber != nil {
			entry["page_number"] = *next.PageNumber
		}
		annotated = append(annotated, entry)
	}
	return map[string]any{"next_tasks": annotated}
}
