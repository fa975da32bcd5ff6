package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Docpipe/internal/domain"
	"github.com/shaiso/Docpipe/internal/kv"
	"github.com/shaiso/Docpipe/internal/notify"
)

// Default TTL values.
const (
	// defaultTTL — время жизни ключей активного run.
	defaultTTL = 24 * time.Hour

	// defaultRetentionTTL — укороченное время жизни после завершения run:
	// гарантированное окно, в котором терминальный статус остаётся
	// доступным для внешних запросов.
	defaultRetentionTTL = time.Hour
)

// ErrNotFound — запись отсутствует в хранилище.
var ErrNotFound = errors.New("statestore: not found")

// Notifier — внешний получатель уведомлений о старте и завершении run.
type Notifier interface {
	Notify(ctx context.Context, op domain.OperationType, event *notify.Event) error
}

// Store — Pipeline Status Store.
//
// Все записи идут через UpdatePipelineStatus; Store сам лениво создаёт Job
// и пересчитывает агрегированный статус run после каждой записи.
type Store struct {
	kv           kv.Store
	notifier     Notifier
	defaultTTL   time.Duration
	retentionTTL time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// Config — конфигурация Store.
type Config struct {
	// KV — key-value хранилище.
	KV kv.Store

	// Notifier — получатель уведомлений (опционально).
	Notifier Notifier

	// DefaultTTL — TTL ключей активного run (default: 24h).
	DefaultTTL time.Duration

	// RetentionTTL — TTL после завершения run (default: 1h).
	RetentionTTL time.Duration

	// Logger
	Logger *slog.Logger

	// Now — источник времени (для тестов; default: time.Now).
	Now func() time.Time
}

// New создаёт новый Store.
func New(cfg Config) *Store {
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	retention := cfg.RetentionTTL
	if retention <= 0 {
		retention = defaultRetentionTTL
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Store{
		kv:           cfg.KV,
		notifier:     cfg.Notifier,
		defaultTTL:   ttl,
		retentionTTL: retention,
		logger:       logger,
		now:          now,
	}
}

// StatusUpdate — входные данные одной записи статуса.
//
// Помимо статуса несёт поля для ленивого создания Job и для первой записи
// Pipeline (идентификационный кортеж, заявленное количество страниц).
type StatusUpdate struct {
	// Status — новый статус.
	Status domain.Status

	// Order — подсказка порядка выполнения (0 — не задана).
	Order int

	// Metadata — служебные данные (причина ошибки и т.п.). Для существующей
	// записи применяются только при непустом значении.
	Metadata map[string]any

	// Идентификационный кортеж.
	AppID      string
	TenantID   string
	PatientID  string
	DocumentID string

	// OperationType — тип операции run (для ленивого создания Job).
	OperationType domain.OperationType

	// PageNumber — номер страницы (nil — уровень документа).
	PageNumber *int

	// TotalPages — заявленное количество страниц документа.
	TotalPages int
}

// UpdatePipelineStatus записывает статус pipeline и пересчитывает
// агрегированное состояние run.
//
// Последовательность:
//  1. Ленивое создание Job, если его ещё нет.
//  2. Определение "первой записи run" (set pipeline'ов пуст).
//  3. Существующее поле — патч status+updated_at (+metadata, если несёт);
//     новое — полный снапшот записи, SAdd, обновление default TTL.
//  4. Первая запись — уведомление о старте run.
//  5. Пересчёт агрегата; терминальное состояние — completion-уведомление
//     и retention TTL на все ключи run.
//
// Ошибки доставки уведомлений логируются и не возвращаются.
func (s *Store) UpdatePipelineStatus(ctx context.Context, runID, pipelineID string, upd StatusUpdate) (*domain.Pipeline, error) {
	job, err := s.getOrCreateJob(ctx, runID, upd)
	if err != nil {
		return nil, err
	}

	// Первая ли это запись статуса для run
	existingIDs, err := s.kv.SMembers(ctx, pipelineSetKey(runID))
	if err != nil {
		return nil, fmt.Errorf("read pipeline set: %w", err)
	}
	firstStatus := len(existingIDs) == 0

	record, err := s.writePipelineField(ctx, runID, pipelineID, upd)
	if err != nil {
		return nil, err
	}

	view, aggErr := s.ListPipelinesForRun(ctx, runID)
	if aggErr != nil {
		// Телеметрия не должна ломать запись статуса
		s.logger.Warn("failed to aggregate run status",
			"run_id", runID,
			"error", aggErr,
		)
		return record, nil
	}

	if firstStatus {
		s.deliver(ctx, job, view)
	}

	if view.Status.IsTerminal() {
		s.deliver(ctx, job, view)
		s.applyRetentionTTL(ctx, runID, existingIDs, pipelineID)
	}

	return record, nil
}

// writePipelineField записывает одно поле pipeline-hash'а.
func (s *Store) writePipelineField(ctx context.Context, runID, pipelineID string, upd StatusUpdate) (*domain.Pipeline, error) {
	key := pipelineKey(runID, pipelineID)
	field := pageField(upd.PageNumber)
	now := s.now().UTC()

	raw, err := s.kv.HGet(ctx, key, field)
	switch {
	case err == nil:
		// Существующая запись: патч status+updated_at. Metadata записи
		// заменяется только когда обновление её несёт (причина ошибки
		// при FAILED); обновление без metadata не затирает имеющуюся.
		// Параллельные writer'ы одного поля сходятся к "последний статус
		// побеждает".
		var record domain.Pipeline
		if uerr := json.Unmarshal([]byte(raw), &record); uerr != nil {
			s.logger.Warn("unparseable pipeline record, rebuilding",
				"run_id", runID,
				"pipeline_id", pipelineID,
				"field", field,
				"error", uerr,
			)
			record = s.newRecord(runID, pipelineID, upd, now)
		}
		record.Status = upd.Status
		if len(upd.Metadata) > 0 {
			record.Metadata = upd.Metadata
		}
		record.UpdatedAt = now
		if err := s.writeRecord(ctx, key, field, &record); err != nil {
			return nil, err
		}
		return &record, nil

	case errors.Is(err, kv.ErrNotFound):
		record := s.newRecord(runID, pipelineID, upd, now)
		if err := s.writeRecord(ctx, key, field, &record); err != nil {
			return nil, err
		}
		if err := s.kv.SAdd(ctx, pipelineSetKey(runID), pipelineID); err != nil {
			return nil, fmt.Errorf("register pipeline id: %w", err)
		}
		// Обновляем default TTL на hash и set
		if err := s.kv.Expire(ctx, key, s.defaultTTL); err != nil {
			s.logger.Warn("failed to set pipeline ttl", "run_id", runID, "error", err)
		}
		if err := s.kv.Expire(ctx, pipelineSetKey(runID), s.defaultTTL); err != nil {
			s.logger.Warn("failed to set pipeline set ttl", "run_id", runID, "error", err)
		}
		return &record, nil

	default:
		return nil, fmt.Errorf("read pipeline record: %w", err)
	}
}

// newRecord строит полный снапшот новой записи Pipeline.
func (s *Store) newRecord(runID, pipelineID string, upd StatusUpdate, now time.Time) domain.Pipeline {
	return domain.Pipeline{
		ID:         pipelineID,
		Status:     upd.Status,
		Order:      upd.Order,
		Metadata:   upd.Metadata,
		AppID:      upd.AppID,
		TenantID:   upd.TenantID,
		PatientID:  upd.PatientID,
		DocumentID: upd.DocumentID,
		RunID:      runID,
		Pages:      upd.TotalPages,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// writeRecord сериализует и записывает запись Pipeline.
func (s *Store) writeRecord(ctx context.Context, key, field string, record *domain.Pipeline) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal pipeline record: %w", err)
	}
	if err := s.kv.HSet(ctx, key, field, string(data)); err != nil {
		return fmt.Errorf("write pipeline record: %w", err)
	}
	return nil
}

// getOrCreateJob возвращает Job run'а, лениво создавая его из полей
// StatusUpdate. Единственная точка создания Job: инвариант "Job существует
// до любой записи Pipeline" держится на этом пути.
func (s *Store) getOrCreateJob(ctx context.Context, runID string, upd StatusUpdate) (*domain.Job, error) {
	raw, err := s.kv.HGet(ctx, jobKey(runID), fieldJob)
	if err == nil {
		var job domain.Job
		if uerr := json.Unmarshal([]byte(raw), &job); uerr != nil {
			return nil, fmt.Errorf("unmarshal job: %w", uerr)
		}
		return &job, nil
	}
	if !errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("read job: %w", err)
	}

	job := domain.Job{
		RunID:         runID,
		OperationType: upd.OperationType,
		TotalPages:    upd.TotalPages,
		AppID:         upd.AppID,
		TenantID:      upd.TenantID,
		PatientID:     upd.PatientID,
		DocumentID:    upd.DocumentID,
		Metadata:      upd.Metadata,
		CreatedAt:     s.now().UTC(),
	}

	data, err := json.Marshal(&job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	if err := s.kv.HSet(ctx, jobKey(runID), fieldJob, string(data)); err != nil {
		return nil, fmt.Errorf("write job: %w", err)
	}
	if err := s.kv.Expire(ctx, jobKey(runID), s.defaultTTL); err != nil {
		s.logger.Warn("failed to set job ttl", "run_id", runID, "error", err)
	}

	s.logger.Debug("job auto-created",
		"run_id", runID,
		"operation_type", job.OperationType,
		"total_pages", job.TotalPages,
	)
	return &job, nil
}

// GetJob возвращает Job run'а.
func (s *Store) GetJob(ctx context.Context, runID string) (*domain.Job, error) {
	raw, err := s.kv.HGet(ctx, jobKey(runID), fieldJob)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read job: %w", err)
	}

	var job domain.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

// GetPipeline возвращает одну запись Pipeline
// (page == nil — запись уровня документа).
func (s *Store) GetPipeline(ctx context.Context, runID, pipelineID string, page *int) (*domain.Pipeline, error) {
	raw, err := s.kv.HGet(ctx, pipelineKey(runID, pipelineID), pageField(page))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read pipeline record: %w", err)
	}

	var record domain.Pipeline
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("unmarshal pipeline record: %w", err)
	}
	return &record, nil
}

// DeleteAllPipelinesForRun удаляет set pipeline'ов и все pipeline-hash'и run'а.
// Возвращает true, если что-то было удалено. Идемпотентно. Job не трогает.
func (s *Store) DeleteAllPipelinesForRun(ctx context.Context, runID string) (bool, error) {
	ids, err := s.kv.SMembers(ctx, pipelineSetKey(runID))
	if err != nil {
		return false, fmt.Errorf("read pipeline set: %w", err)
	}

	keys := []string{pipelineSetKey(runID)}
	for _, id := range ids {
		keys = append(keys, pipelineKey(runID, id))
	}

	n, err := s.kv.Del(ctx, keys...)
	if err != nil {
		return false, fmt.Errorf("delete run keys: %w", err)
	}

	s.logger.Info("run pipelines deleted", "run_id", runID, "keys", n)
	return n > 0, nil
}

// deliver отправляет уведомление о состоянии run. Ошибки только логируются.
func (s *Store) deliver(ctx context.Context, job *domain.Job, view *domain.PipelineListResponse) {
	if s.notifier == nil {
		return
	}

	event := &notify.Event{
		AppID:          job.AppID,
		TenantID:       job.TenantID,
		PatientID:      job.PatientID,
		DocumentID:     job.DocumentID,
		RunID:          job.RunID,
		Status:         view.Status,
		ElapsedSeconds: view.ElapsedSeconds,
		Pipelines:      view.Pipelines,
	}

	if err := s.notifier.Notify(ctx, job.OperationType, event); err != nil {
		s.logger.Warn("notification delivery failed",
			"run_id", job.RunID,
			"status", view.Status,
			"error", err,
		)
	}
}

// applyRetentionTTL переводит все ключи run на укороченный retention TTL.
func (s *Store) applyRetentionTTL(ctx context.Context, runID string, knownIDs []string, lastID string) {
	ids := knownIDs
	found := false
	for _, id := range ids {
		if id == lastID {
			found = true
			break
		}
	}
	if !found {
		ids = append(ids, lastID)
	}

	keys := []string{jobKey(runID), pipelineSetKey(runID)}
	for _, id := range ids {
		keys = append(keys, pipelineKey(runID, id))
	}

	for _, key := range keys {
		if err := s.kv.Expire(ctx, key, s.retentionTTL); err != nil {
			s.logger.Warn("failed to apply retention ttl",
				"run_id", runID,
				"key", key,
				"error", err,
			)
		}
	}
}
