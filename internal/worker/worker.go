package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaiso/Docpipe/internal/domain"
	"github.com/shaiso/Docpipe/internal/mq"
	"github.com/shaiso/Docpipe/internal/telemetry"
)

const defaultPrefetch = 5

// Runner — выполнение одного шага. Реализуется orchestrator.Orchestrator.
type Runner interface {
	Run(ctx context.Context, params *domain.TaskParameters) (*domain.TaskResults, error)
}

// Worker потребляет задачи из очередей и выполняет их через Runner.
type Worker struct {
	runner Runner
	conn   *mq.Connection
	queues []string

	prefetch  int
	consumers []*mq.Consumer

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Worker.
type Config struct {
	Runner Runner
	Conn   *mq.Connection

	// Queues — очереди для потребления (default: tasks.default).
	Queues []string

	// Prefetch — количество сообщений для предварительной загрузки.
	Prefetch int

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	queues := cfg.Queues
	if len(queues) == 0 {
		queues = []string{string(mq.QueueTasksDefault)}
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		runner:   cfg.Runner,
		conn:     cfg.Conn,
		queues:   queues,
		prefetch: prefetch,
		logger:   logger,
	}
}

// Start запускает по consumer'у на каждую очередь.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker", "queues", w.queues)

	for _, queue := range w.queues {
		consumer := mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:    queue,
			Handler:  w.handleDispatch,
			Prefetch: w.prefetch,
		})
		w.consumers = append(w.consumers, consumer)

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("task consumer error", "error", err)
			}
		}()
	}

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker.
func (w *Worker) Stop() {
	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	for _, consumer := range w.consumers {
		consumer.Stop()
	}

	// Ждём завершения горутин
	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// handleDispatch обрабатывает одно task.dispatch сообщение.
func (w *Worker) handleDispatch(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.TaskDispatchPayload](&delivery.Message)
	if err != nil {
		return fmt.Errorf("parse task dispatch payload: %w", err)
	}
	if payload.Params == nil {
		return fmt.Errorf("task dispatch payload has no params")
	}

	params := payload.Params
	taskLog := telemetry.TaskLogger(w.logger, params)

	taskLog.Info("task received",
		"task_type", params.TaskConfig.Type,
		"iteration", params.Iteration,
	)

	results, err := w.runner.Run(ctx, params)
	if err != nil {
		// Фатальная инфраструктурная ошибка (enqueue следующих шагов)
		return fmt.Errorf("run task %s: %w", params.TaskConfig.ID, err)
	}

	if !results.Success {
		// Провал шага — штатный исход: retry уже запланирован
		// или pipeline помечен FAILED
		taskLog.Warn("task finished unsuccessfully", "error_message", results.ErrorMessage)
	}

	return nil
}
