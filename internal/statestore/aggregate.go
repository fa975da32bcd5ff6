package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shaiso/Docpipe/internal/domain"
)

// subRecord — распарсенное поле pipeline-hash'а.
type subRecord struct {
	page      int
	pageLevel bool
	status    domain.Status
	order     int
	metadata  map[string]any
	createdAt time.Time
}

// ListPipelinesForRun пересчитывает агрегированное представление run с нуля.
//
// Агрегация stateless и идемпотентна: никаких инкрементальных счётчиков,
// только текущее содержимое ключей. Поэтому она корректна при любом
// чередовании записей постраничных sibling'ов.
func (s *Store) ListPipelinesForRun(ctx context.Context, runID string) (*domain.PipelineListResponse, error) {
	now := s.now().UTC()

	// Без Job run считается не начавшимся
	job, err := s.GetJob(ctx, runID)
	if errors.Is(err, ErrNotFound) {
		return &domain.PipelineListResponse{
			RunID:     runID,
			Status:    domain.StatusNotStarted,
			Pipelines: []domain.PipelineListItem{},
		}, nil
	}
	if err != nil {
		return nil, err
	}

	ids, err := s.kv.SMembers(ctx, pipelineSetKey(runID))
	if err != nil {
		return nil, fmt.Errorf("read pipeline set: %w", err)
	}

	// Job есть, pipeline'ов нет — исторически COMPLETED (см. DESIGN.md)
	if len(ids) == 0 {
		return &domain.PipelineListResponse{
			RunID:     runID,
			Status:    domain.StatusCompleted,
			Pipelines: []domain.PipelineListItem{},
		}, nil
	}

	items := make([]domain.PipelineListItem, 0, len(ids))
	var runEarliest time.Time
	for _, id := range ids {
		item, earliest, err := s.aggregatePipeline(ctx, runID, id, job.TotalPages, now)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if !earliest.IsZero() && (runEarliest.IsZero() || earliest.Before(runEarliest)) {
			runEarliest = earliest
		}
	}

	// Сортировка по order; без order — в конец; при равенстве — по id
	sort.SliceStable(items, func(i, j int) bool {
		oi, oj := items[i].Order, items[j].Order
		switch {
		case oi == oj:
			return items[i].PipelineID < items[j].PipelineID
		case oi == 0:
			return false
		case oj == 0:
			return true
		default:
			return oi < oj
		}
	})

	statuses := make([]domain.Status, 0, len(items))
	for _, item := range items {
		statuses = append(statuses, item.Status)
	}

	elapsed := 0.0
	if !runEarliest.IsZero() {
		elapsed = now.Sub(runEarliest).Seconds()
	}

	return &domain.PipelineListResponse{
		RunID:          runID,
		Status:         reduceStatuses(statuses),
		ElapsedSeconds: elapsed,
		Pipelines:      items,
	}, nil
}

// aggregatePipeline агрегирует один pipeline по его hash'у.
func (s *Store) aggregatePipeline(ctx context.Context, runID, pipelineID string, totalPages int, now time.Time) (domain.PipelineListItem, time.Time, error) {
	fields, err := s.kv.HGetAll(ctx, pipelineKey(runID, pipelineID))
	if err != nil {
		return domain.PipelineListItem{}, time.Time{}, fmt.Errorf("read pipeline %s: %w", pipelineID, err)
	}

	subs := parseSubRecords(fields)

	pageLevel := false
	order := 0
	var earliest time.Time
	var pageStatuses map[int]domain.Status
	var failureMeta map[string]any
	for _, sub := range subs {
		if sub.pageLevel {
			pageLevel = true
			if pageStatuses == nil {
				pageStatuses = make(map[int]domain.Status)
			}
			pageStatuses[sub.page] = sub.status
		}
		if order == 0 && sub.order != 0 {
			order = sub.order
		}
		if sub.status == domain.StatusFailed && failureMeta == nil && len(sub.metadata) > 0 {
			failureMeta = sub.metadata
		}
		if !sub.createdAt.IsZero() && (earliest.IsZero() || sub.createdAt.Before(earliest)) {
			earliest = sub.createdAt
		}
	}

	var status domain.Status
	if pageLevel {
		status = reducePageStatuses(pageStatuses, totalPages)
	} else {
		statuses := make([]domain.Status, 0, len(subs))
		for _, sub := range subs {
			statuses = append(statuses, sub.status)
		}
		status = reduceStatuses(statuses)
	}

	elapsed := 0.0
	if !earliest.IsZero() {
		elapsed = now.Sub(earliest).Seconds()
	}

	item := domain.PipelineListItem{
		PipelineID:     pipelineID,
		Status:         status,
		Order:          order,
		PageLevel:      pageLevel,
		PageStatuses:   pageStatuses,
		ElapsedSeconds: elapsed,
		CreatedAt:      earliest,
	}

	// Причина ошибки уходит в агрегат (и дальше в completion-callback)
	// только когда pipeline действительно FAILED
	if status == domain.StatusFailed {
		item.Metadata = failureMeta
	}

	return item, earliest, nil
}

// parseSubRecords разбирает поля hash'а в под-записи.
// Значение — JSON-объект Pipeline; нераспарсиваемое значение трактуется
// как голая строка статуса.
func parseSubRecords(fields map[string]string) []subRecord {
	subs := make([]subRecord, 0, len(fields))
	for field, raw := range fields {
		var sub subRecord
		if page, ok := parsePageField(field); ok {
			sub.page = page
			sub.pageLevel = true
		}

		var record domain.Pipeline
		if err := json.Unmarshal([]byte(raw), &record); err == nil && record.Status != "" {
			sub.status = record.Status
			sub.order = record.Order
			sub.metadata = record.Metadata
			sub.createdAt = record.CreatedAt
		} else {
			sub.status = domain.Status(raw)
		}
		subs = append(subs, sub)
	}
	return subs
}

// reduceStatuses сводит набор статусов по приоритету
// FAILED > IN_PROGRESS > QUEUED > NOT_STARTED > COMPLETED.
// Пустой набор — COMPLETED; нераспознанный статус — UNKNOWN.
func reduceStatuses(statuses []domain.Status) domain.Status {
	for _, want := range []domain.Status{
		domain.StatusFailed,
		domain.StatusInProgress,
		domain.StatusQueued,
		domain.StatusNotStarted,
	} {
		for _, st := range statuses {
			if st == want {
				return want
			}
		}
	}

	for _, st := range statuses {
		if !st.IsKnown() {
			return domain.StatusUnknown
		}
	}

	return domain.StatusCompleted
}

// reducePageStatuses — постраничная политика завершения.
//
// FAILED/IN_PROGRESS/QUEUED/NOT_STARTED сводятся как обычно. COMPLETED
// pipeline отчитывается только когда присутствуют ровно страницы 1..total
// и все они COMPLETED; иначе IN_PROGRESS. При неизвестном количестве
// страниц действует документная семантика.
func reducePageStatuses(pages map[int]domain.Status, totalPages int) domain.Status {
	statuses := make([]domain.Status, 0, len(pages))
	for _, st := range pages {
		statuses = append(statuses, st)
	}

	reduced := reduceStatuses(statuses)
	if reduced != domain.StatusCompleted {
		return reduced
	}

	if totalPages <= 0 {
		return reduced
	}

	if len(pages) != totalPages {
		return domain.StatusInProgress
	}
	for page := 1; page <= totalPages; page++ {
		if pages[page] != domain.StatusCompleted {
			return domain.StatusInProgress
		}
	}
	return domain.StatusCompleted
}
