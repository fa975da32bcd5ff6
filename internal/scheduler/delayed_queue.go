package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Docpipe/internal/domain"
	"github.com/shaiso/Docpipe/internal/kv"
)

// scheduledSetKey — ZSET отложенных задач (score = unix-время доставки).
const scheduledSetKey = "docpipe:scheduled"

// TaskPublisher — немедленная публикация задачи в очередь.
// Реализуется mq.Publisher.
type TaskPublisher interface {
	EnqueueTask(ctx context.Context, params *domain.TaskParameters, queue string) error
}

// scheduledEntry — запись отложенной задачи в ZSET.
type scheduledEntry struct {
	ID     string                 `json:"id"`
	Queue  string                 `json:"queue"`
	Params *domain.TaskParameters `json:"params"`
}

// DelayedQueue — Queue-интерфейс оркестратора поверх публикатора и ZSET.
type DelayedQueue struct {
	publisher TaskPublisher
	kv        kv.Store
	logger    *slog.Logger
	now       func() time.Time
}

// NewDelayedQueue создаёт DelayedQueue.
func NewDelayedQueue(publisher TaskPublisher, store kv.Store, logger *slog.Logger) *DelayedQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &DelayedQueue{
		publisher: publisher,
		kv:        store,
		logger:    logger,
		now:       time.Now,
	}
}

// Enqueue ставит задачу в очередь.
// Нулевое или прошедшее notBefore — немедленная публикация; будущее —
// запись в ZSET до созревания.
func (q *DelayedQueue) Enqueue(ctx context.Context, params *domain.TaskParameters, queue string, notBefore time.Time) error {
	if notBefore.IsZero() || !notBefore.After(q.now()) {
		return q.publisher.EnqueueTask(ctx, params, queue)
	}

	entry := scheduledEntry{
		ID:     uuid.New().String(),
		Queue:  queue,
		Params: params,
	}
	member, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal scheduled entry: %w", err)
	}

	if err := q.kv.ZAdd(ctx, scheduledSetKey, float64(notBefore.Unix()), string(member)); err != nil {
		return fmt.Errorf("schedule task: %w", err)
	}

	q.logger.Info("task scheduled",
		"run_id", params.RunID,
		"task_id", params.TaskConfig.ID,
		"queue", queue,
		"not_before", notBefore,
	)

	return nil
}
