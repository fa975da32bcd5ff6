package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Docpipe/internal/domain"
	"github.com/shaiso/Docpipe/internal/executor"
	"github.com/shaiso/Docpipe/internal/statestore"
)

// Queue — постановка задач в очередь (внешний транспорт).
//
// notBefore — не доставлять раньше указанного времени (retry backoff);
// нулевое время — немедленная доставка.
type Queue interface {
	Enqueue(ctx context.Context, params *domain.TaskParameters, queue string, notBefore time.Time) error
}

// DefinitionSource — поиск определения pipeline по (scope, key).
type DefinitionSource interface {
	Lookup(ctx context.Context, scope, key string) (*domain.PipelineDefinition, error)
}

// StatusStore — запись статусов в Pipeline Status Store.
type StatusStore interface {
	UpdatePipelineStatus(ctx context.Context, runID, pipelineID string, update statestore.StatusUpdate) (*domain.Pipeline, error)
}

// Orchestrator управляет выполнением шагов pipeline.
type Orchestrator struct {
	queue       Queue
	definitions DefinitionSource
	registry    *executor.Registry
	status      StatusStore

	// localMode — выполнять все шаги синхронно, без очереди.
	localMode    bool
	defaultQueue string

	logger *slog.Logger
	now    func() time.Time
}

// Config — конфигурация Orchestrator.
type Config struct {
	Queue       Queue
	Definitions DefinitionSource
	Registry    *executor.Registry
	Status      StatusStore

	// LocalMode — синхронный режим для локальной разработки и тестов:
	// каждый следующий шаг выполняется немедленно, очередь не используется.
	LocalMode bool

	// DefaultQueue — очередь для псевдоимени DEFAULT (default: tasks.default).
	DefaultQueue string

	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	defaultQueue := cfg.DefaultQueue
	if defaultQueue == "" {
		defaultQueue = "tasks.default"
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		queue:        cfg.Queue,
		definitions:  cfg.Definitions,
		registry:     cfg.Registry,
		status:       cfg.Status,
		localMode:    cfg.LocalMode,
		defaultQueue: defaultQueue,
		logger:       logger,
		now:          time.Now,
	}
}

// Invoke — точка входа выполнения шага.
//
// В локальном режиме или при очереди DIRECT шаг выполняется синхронно.
// Иначе задача ставится в очередь (DEFAULT или явное имя), а вызывающий
// не блокируется на результате. Ошибки постановки фатальны и возвращаются.
func (o *Orchestrator) Invoke(ctx context.Context, params *domain.TaskParameters) (*domain.TaskParameters, error) {
	if o.localMode || params.TaskConfig.Queue == domain.QueueDirect {
		if _, err := o.Run(ctx, params); err != nil {
			return nil, err
		}
		return params, nil
	}

	queue := o.resolveQueue(params.TaskConfig.Queue)

	// QUEUED пишется best-effort: телеметрия не должна блокировать постановку
	o.writeStatus(ctx, params, domain.StatusQueued, nil)

	if err := o.queue.Enqueue(ctx, params, queue, time.Time{}); err != nil {
		return nil, fmt.Errorf("%w: task %s to %s: %v", ErrEnqueue, params.TaskConfig.ID, queue, err)
	}

	o.logger.Info("task enqueued",
		"run_id", params.RunID,
		"task_id", params.TaskConfig.ID,
		"queue", queue,
	)

	return params, nil
}

// Launch запускает вложенный pipeline (executor.Launcher).
//
// Дочерний pipeline наследует run_id и идентификационный кортеж родителя,
// поэтому его статусы попадают в тот же run.
func (o *Orchestrator) Launch(ctx context.Context, params *domain.TaskParameters, scope, key string) (any, error) {
	def, err := o.definitions.Lookup(ctx, scope, key)
	if err != nil {
		return nil, fmt.Errorf("lookup pipeline %s/%s: %w", scope, key, err)
	}

	first := def.FirstTask()
	if first == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrEmptyPipeline, scope, key)
	}

	child := params.Next(*first)
	child.Scope = scope
	child.PipelineKey = key
	child.PageNumber = nil

	if _, err := o.Invoke(ctx, child); err != nil {
		return nil, err
	}

	return map[string]any{
		"launched_scope": scope,
		"launched_key":   key,
		"first_task":     first.ID,
	}, nil
}

// resolveQueue отображает значение queue из конфигурации шага в имя
// реальной очереди. Пустое значение и DEFAULT — очередь по умолчанию.
func (o *Orchestrator) resolveQueue(queue string) string {
	if queue == "" || queue == domain.QueueDefault {
		return o.defaultQueue
	}
	return queue
}

// writeStatus пишет статус pipeline в Pipeline Status Store.
// Ошибки записи логируются и никогда не возвращаются: телеметрия
// не должна прерывать жизненный цикл задачи.
func (o *Orchestrator) writeStatus(ctx context.Context, params *domain.TaskParameters, status domain.Status, metadata map[string]any) {
	o.writeStatusForPage(ctx, params, status, metadata, params.PageNumber)
}

// writeStatusForPage — как writeStatus, но с явным page scope.
func (o *Orchestrator) writeStatusForPage(ctx context.Context, params *domain.TaskParameters, status domain.Status, metadata map[string]any, page *int) {
	if o.status == nil {
		return
	}

	_, err := o.status.UpdatePipelineStatus(ctx, params.RunID, params.PipelineID(), statestore.StatusUpdate{
		Status:        status,
		Metadata:      metadata,
		AppID:         params.AppID,
		TenantID:      params.TenantID,
		PatientID:     params.PatientID,
		DocumentID:    params.DocumentID,
		OperationType: params.OperationType,
		PageNumber:    page,
		TotalPages:    params.PageCount,
	})
	if err != nil {
		o.logger.Error("status write failed",
			"run_id", params.RunID,
			"pipeline_id", params.PipelineID(),
			"status", status,
			"error", err,
		)
	}
}
