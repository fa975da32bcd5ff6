package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Docpipe/internal/domain"
	"github.com/shaiso/Docpipe/internal/kv"
)

type published struct {
	params *domain.TaskParameters
	queue  string
}

type fakePublisher struct {
	mu      sync.Mutex
	entries []published
	err     error
}

func (p *fakePublisher) EnqueueTask(_ context.Context, params *domain.TaskParameters, queue string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.entries = append(p.entries, published{params: params, queue: queue})
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

func testParams(taskID string) *domain.TaskParameters {
	return &domain.TaskParameters{
		RunID:       "run-1",
		Scope:       "clinical",
		PipelineKey: "extraction",
		TaskConfig:  domain.TaskStep{ID: taskID, Type: domain.StepTypeModule},
	}
}

func TestDelayedQueue_ImmediateDelivery(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	mem := kv.NewMemory()
	q := NewDelayedQueue(pub, mem, nil)

	if err := q.Enqueue(ctx, testParams("step-1"), "tasks.default", time.Time{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pub.count() != 1 {
		t.Fatalf("expected immediate publish, got %d", pub.count())
	}
	if members, _ := mem.ZRangeByScore(ctx, scheduledSetKey, 0, float64(time.Now().Add(time.Hour).Unix())); len(members) != 0 {
		t.Errorf("immediate delivery must not touch the scheduled set")
	}
}

func TestDelayedQueue_PastTimeDeliversImmediately(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	q := NewDelayedQueue(pub, kv.NewMemory(), nil)

	if err := q.Enqueue(ctx, testParams("step-1"), "tasks.default", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pub.count() != 1 {
		t.Errorf("past notBefore must publish immediately, got %d", pub.count())
	}
}

func TestDelayedQueue_FutureTimeSchedules(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	mem := kv.NewMemory()
	q := NewDelayedQueue(pub, mem, nil)

	notBefore := time.Now().Add(time.Minute)
	if err := q.Enqueue(ctx, testParams("step-1"), "tasks.gpu", notBefore); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pub.count() != 0 {
		t.Errorf("future delivery must not publish, got %d", pub.count())
	}
	members, err := mem.ZRangeByScore(ctx, scheduledSetKey, 0, float64(notBefore.Unix()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("expected 1 scheduled entry, got %d", len(members))
	}
}

func TestSweeper_PublishesDueTasks(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	mem := kv.NewMemory()
	q := NewDelayedQueue(pub, mem, nil)
	sweeper := NewSweeper(SweeperConfig{Publisher: pub, KV: mem})

	// Две созревшие задачи, одна будущая
	base := time.Now()
	q.now = func() time.Time { return base.Add(-time.Hour) }
	q.Enqueue(ctx, testParams("due-1"), "tasks.default", base.Add(-10*time.Minute))
	q.Enqueue(ctx, testParams("due-2"), "tasks.default", base.Add(-5*time.Minute))
	q.Enqueue(ctx, testParams("future"), "tasks.default", base.Add(time.Hour))

	if err := sweeper.Sweep(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pub.count() != 2 {
		t.Fatalf("expected 2 published tasks, got %d", pub.count())
	}
	for _, entry := range pub.entries {
		if entry.params.TaskConfig.ID == "future" {
			t.Error("future task must not be published")
		}
	}

	// Опубликованные удалены, будущая осталась
	remaining, err := mem.ZRangeByScore(ctx, scheduledSetKey, 0, float64(base.Add(2*time.Hour).Unix()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("expected 1 remaining entry, got %d", len(remaining))
	}
}

func TestSweeper_PublishFailureKeepsEntry(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	mem := kv.NewMemory()
	q := NewDelayedQueue(pub, mem, nil)
	sweeper := NewSweeper(SweeperConfig{Publisher: pub, KV: mem})

	base := time.Now()
	q.now = func() time.Time { return base.Add(-time.Hour) }
	q.Enqueue(ctx, testParams("due-1"), "tasks.default", base.Add(-time.Minute))

	pub.err = errors.New("broker down")
	if err := sweeper.Sweep(ctx); err != nil {
		t.Fatalf("sweep must not fail on publish errors: %v", err)
	}

	// Запись осталась и публикуется на следующем проходе
	pub.err = nil
	if err := sweeper.Sweep(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pub.count() != 1 {
		t.Errorf("entry must survive a failed sweep, published %d", pub.count())
	}
}

func TestSweeper_DropsMalformedEntries(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	mem := kv.NewMemory()
	sweeper := NewSweeper(SweeperConfig{Publisher: pub, KV: mem})

	mem.ZAdd(ctx, scheduledSetKey, float64(time.Now().Add(-time.Minute).Unix()), "not json")

	if err := sweeper.Sweep(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	remaining, _ := mem.ZRangeByScore(ctx, scheduledSetKey, 0, float64(time.Now().Add(time.Hour).Unix()))
	if len(remaining) != 0 {
		t.Errorf("malformed entry must be dropped, %d remain", len(remaining))
	}
}
