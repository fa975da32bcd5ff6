package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Docpipe/internal/kv"
)

const defaultSweepSchedule = "@every 5s"

// Sweeper периодически публикует созревшие отложенные задачи.
type Sweeper struct {
	publisher TaskPublisher
	kv        kv.Store
	schedule  string
	logger    *slog.Logger
	now       func() time.Time

	cron *cron.Cron
}

// SweeperConfig — конфигурация Sweeper.
type SweeperConfig struct {
	Publisher TaskPublisher
	KV        kv.Store

	// Schedule — cron-выражение обхода (default: @every 5s).
	Schedule string

	Logger *slog.Logger
}

// NewSweeper создаёт Sweeper.
func NewSweeper(cfg SweeperConfig) *Sweeper {
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = defaultSweepSchedule
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Sweeper{
		publisher: cfg.Publisher,
		kv:        cfg.KV,
		schedule:  schedule,
		logger:    logger,
		now:       time.Now,
	}
}

// Start запускает периодический обход по cron-расписанию.
func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New()

	_, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.Sweep(ctx); err != nil {
			s.logger.Error("sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("add sweep job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("sweeper started", "schedule", s.schedule)
	return nil
}

// Stop останавливает обход и дожидается завершения текущего прохода.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.logger.Info("sweeper stopped")
}

// Sweep выполняет один проход: публикует все записи со score <= now
// и удаляет опубликованные из ZSET.
//
// Ошибка публикации отдельной записи не прерывает проход: запись
// остаётся в ZSET и будет повторена на следующем проходе.
func (s *Sweeper) Sweep(ctx context.Context) error {
	due, err := s.kv.ZRangeByScore(ctx, scheduledSetKey, 0, float64(s.now().Unix()))
	if err != nil {
		return fmt.Errorf("read scheduled set: %w", err)
	}

	if len(due) == 0 {
		return nil
	}

	s.logger.Debug("sweep found due tasks", "count", len(due))

	published := 0
	for _, member := range due {
		var entry scheduledEntry
		if err := json.Unmarshal([]byte(member), &entry); err != nil {
			// Нечитаемая запись никогда не созреет — удаляем
			s.logger.Error("dropping malformed scheduled entry", "error", err)
			if err := s.kv.ZRem(ctx, scheduledSetKey, member); err != nil {
				s.logger.Error("remove malformed entry failed", "error", err)
			}
			continue
		}

		if err := s.publisher.EnqueueTask(ctx, entry.Params, entry.Queue); err != nil {
			s.logger.Error("publish due task failed",
				"run_id", entry.Params.RunID,
				"task_id", entry.Params.TaskConfig.ID,
				"queue", entry.Queue,
				"error", err,
			)
			continue
		}

		if err := s.kv.ZRem(ctx, scheduledSetKey, member); err != nil {
			// Запись опубликована, но не удалена: будет дубль на
			// следующем проходе (at-least-once)
			s.logger.Error("remove published entry failed", "error", err)
			continue
		}
		published++
	}

	if published > 0 {
		s.logger.Info("due tasks published", "count", published)
	}

	return nil
}
