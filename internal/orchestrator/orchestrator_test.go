package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Docpipe/internal/domain"
	"github.com/shaiso/Docpipe/internal/executor"
	"github.com/shaiso/Docpipe/internal/statestore"
)

// --- фейки ---

type enqueued struct {
	params    *domain.TaskParameters
	queue     string
	notBefore time.Time
}

type fakeQueue struct {
	mu      sync.Mutex
	entries []enqueued
	err     error
}

func (q *fakeQueue) Enqueue(_ context.Context, params *domain.TaskParameters, queue string, notBefore time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.entries = append(q.entries, enqueued{params: params, queue: queue, notBefore: notBefore})
	return nil
}

type fakeDefinitions struct {
	defs map[string]*domain.PipelineDefinition
}

func (d *fakeDefinitions) Lookup(_ context.Context, scope, key string) (*domain.PipelineDefinition, error) {
	def, ok := d.defs[scope+"/"+key]
	if !ok {
		return nil, fmt.Errorf("definition %s/%s not found", scope, key)
	}
	return def, nil
}

type statusWrite struct {
	pipelineID string
	status     domain.Status
	page       *int
	metadata   map[string]any
}

type fakeStatus struct {
	mu     sync.Mutex
	writes []statusWrite
}

func (s *fakeStatus) UpdatePipelineStatus(_ context.Context, _ string, pipelineID string, update statestore.StatusUpdate) (*domain.Pipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, statusWrite{
		pipelineID: pipelineID,
		status:     update.Status,
		page:       update.PageNumber,
		metadata:   update.Metadata,
	})
	return &domain.Pipeline{ID: pipelineID, Status: update.Status}, nil
}

func (s *fakeStatus) countStatus(status domain.Status) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, w := range s.writes {
		if w.status == status {
			n++
		}
	}
	return n
}

type execFunc func(ctx context.Context, params *domain.TaskParameters) (any, error)

func (f execFunc) Execute(ctx context.Context, params *domain.TaskParameters) (any, error) {
	return f(ctx, params)
}

// --- обвязка ---

func linearDefinition(n int) *domain.PipelineDefinition {
	def := &domain.PipelineDefinition{Scope: "clinical", Key: "extraction", Version: 1}
	for i := 1; i <= n; i++ {
		def.Tasks = append(def.Tasks, domain.TaskStep{
			ID:   fmt.Sprintf("step-%d", i),
			Type: domain.StepTypeModule,
		})
	}
	return def
}

func baseParams(def *domain.PipelineDefinition) *domain.TaskParameters {
	return &domain.TaskParameters{
		AppID:         "app-1",
		TenantID:      "tenant-1",
		PatientID:     "patient-1",
		DocumentID:    "doc-1",
		RunID:         "run-1",
		Scope:         def.Scope,
		PipelineKey:   def.Key,
		OperationType: domain.OperationExtract,
		TaskConfig:    def.Tasks[0],
		MaxRetryCount: 2,
		RetryFactor:   1,
	}
}

func newTestOrchestrator(def *domain.PipelineDefinition, exec executor.Executor, local bool) (*Orchestrator, *fakeQueue, *fakeStatus) {
	queue := &fakeQueue{}
	status := &fakeStatus{}
	registry := executor.NewRegistry()
	registry.Register(domain.StepTypeModule, exec)

	o := New(Config{
		Queue:       queue,
		Definitions: &fakeDefinitions{defs: map[string]*domain.PipelineDefinition{def.Scope + "/" + def.Key: def}},
		Registry:    registry,
		Status:      status,
		LocalMode:   local,
	})
	return o, queue, status
}

// --- тесты ---

func TestRun_LinearPipeline(t *testing.T) {
	def := linearDefinition(3)

	var executed []string
	exec := execFunc(func(_ context.Context, params *domain.TaskParameters) (any, error) {
		executed = append(executed, params.TaskConfig.ID)
		return map[string]any{"from": params.TaskConfig.ID}, nil
	})

	o, _, status := newTestOrchestrator(def, exec, true)

	results, err := o.Run(context.Background(), baseParams(def))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !results.Success {
		t.Error("expected success")
	}

	// Три шага выполнены строго по порядку (N-1 переходов)
	want := []string{"step-1", "step-2", "step-3"}
	if len(executed) != len(want) {
		t.Fatalf("expected %d executions, got %v", len(want), executed)
	}
	for i := range want {
		if executed[i] != want[i] {
			t.Errorf("execution order: %v", executed)
			break
		}
	}

	if got := status.countStatus(domain.StatusCompleted); got != 1 {
		t.Errorf("expected 1 COMPLETED write, got %d", got)
	}
	if got := status.countStatus(domain.StatusFailed); got != 0 {
		t.Errorf("unexpected FAILED writes: %d", got)
	}
}

func TestRun_ContextAccumulates(t *testing.T) {
	def := linearDefinition(2)

	var sawPrevious bool
	exec := execFunc(func(_ context.Context, params *domain.TaskParameters) (any, error) {
		if params.TaskConfig.ID == "step-2" {
			_, sawPrevious = params.Context.Get("clinical", "extraction", "step-1")
		}
		return "ok", nil
	})

	o, _, _ := newTestOrchestrator(def, exec, true)

	if _, err := o.Run(context.Background(), baseParams(def)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sawPrevious {
		t.Error("step-2 must see step-1 result in context")
	}
}

func TestRun_EntityWrapping(t *testing.T) {
	def := linearDefinition(2)
	def.Tasks[0].EntitySchema = "medication"

	var entities any
	exec := execFunc(func(_ context.Context, params *domain.TaskParameters) (any, error) {
		if params.TaskConfig.ID == "step-2" {
			entities, _ = params.Entities.Get("clinical", "extraction", "step-1")
		}
		return []any{map[string]any{"name": "aspirin"}}, nil
	})

	o, _, _ := newTestOrchestrator(def, exec, true)

	if _, err := o.Run(context.Background(), baseParams(def)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wrapped, ok := entities.([]domain.Entity)
	if !ok || len(wrapped) != 1 {
		t.Fatalf("expected wrapped entity list, got %T %v", entities, entities)
	}
	if wrapped[0].Schema != "medication" {
		t.Errorf("unexpected schema: %s", wrapped[0].Schema)
	}
}

func TestRun_FanOutPerPage(t *testing.T) {
	def := linearDefinition(2)
	def.Tasks[0].PostProcessing = &domain.PostProcessing{ForEach: domain.ForEachPage}

	exec := execFunc(func(_ context.Context, _ *domain.TaskParameters) (any, error) {
		return map[string]any{"pages": []any{
			map[string]any{"page_number": float64(1), "page_storage_uri": "s3://b/p1"},
			map[string]any{"page_number": float64(2), "page_storage_uri": "s3://b/p2"},
		}}, nil
	})

	o, queue, _ := newTestOrchestrator(def, exec, false)

	results, err := o.Run(context.Background(), baseParams(def))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(queue.entries) != 2 {
		t.Fatalf("expected 2 fanned tasks, got %d", len(queue.entries))
	}
	for i, entry := range queue.entries {
		wantPage := i + 1
		if entry.params.PageNumber == nil || *entry.params.PageNumber != wantPage {
			t.Errorf("entry %d: page_number = %v", i, entry.params.PageNumber)
		}
		if entry.params.TaskConfig.ID != "step-2" {
			t.Errorf("entry %d: task = %s", i, entry.params.TaskConfig.ID)
		}
		if entry.params.Subject["total_pages"] != 2 {
			t.Errorf("entry %d: total_pages = %v", i, entry.params.Subject["total_pages"])
		}
		if entry.params.Subject["page_storage_uri"] == "" {
			t.Errorf("entry %d: page_storage_uri missing", i)
		}
	}

	// Metadata аннотирована разрешёнными задачами
	nextMeta, ok := results.Metadata["next_tasks"].([]map[string]any)
	if !ok || len(nextMeta) != 2 {
		t.Errorf("next_tasks metadata: %v", results.Metadata)
	}
}

func TestRun_FanOutListResult(t *testing.T) {
	def := linearDefinition(2)
	def.Tasks[0].PostProcessing = &domain.PostProcessing{ForEach: domain.ForEachPage}

	// Форма 3: каждый элемент списка — страница
	exec := execFunc(func(_ context.Context, _ *domain.TaskParameters) (any, error) {
		return []any{
			map[string]any{"page_number": float64(1)},
			map[string]any{"page_number": float64(2)},
			map[string]any{"note": "no page_number, skipped"},
		}, nil
	})

	o, queue, _ := newTestOrchestrator(def, exec, false)

	if _, err := o.Run(context.Background(), baseParams(def)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queue.entries) != 2 {
		t.Errorf("entries without page_number must be skipped: got %d tasks", len(queue.entries))
	}
}

func TestRun_FanOutNoPagesFallsBack(t *testing.T) {
	def := linearDefinition(2)
	def.Tasks[0].PostProcessing = &domain.PostProcessing{ForEach: domain.ForEachPage}

	exec := execFunc(func(_ context.Context, _ *domain.TaskParameters) (any, error) {
		return map[string]any{"no_pages_here": true}, nil
	})

	o, queue, _ := newTestOrchestrator(def, exec, false)

	if _, err := o.Run(context.Background(), baseParams(def)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queue.entries) != 1 {
		t.Fatalf("expected single fallback task, got %d", len(queue.entries))
	}
	if queue.entries[0].params.PageNumber != nil {
		t.Error("fallback task must not be page-scoped")
	}
}

func TestRun_PageScopedCompletionWritesTwice(t *testing.T) {
	def := linearDefinition(1)

	exec := execFunc(func(_ context.Context, _ *domain.TaskParameters) (any, error) {
		return "done", nil
	})

	o, _, status := newTestOrchestrator(def, exec, true)

	params := baseParams(def)
	page := 2
	params.PageNumber = &page

	if _, err := o.Run(context.Background(), params); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var pageWrite, docWrite bool
	for _, w := range status.writes {
		if w.status != domain.StatusCompleted {
			continue
		}
		if w.page != nil && *w.page == 2 {
			pageWrite = true
		}
		if w.page == nil {
			docWrite = true
		}
	}
	if !pageWrite || !docWrite {
		t.Errorf("page-scoped completion must write both scopes: page=%v doc=%v", pageWrite, docWrite)
	}
}

func TestRun_RetryScheduled(t *testing.T) {
	def := linearDefinition(2)

	exec := execFunc(func(_ context.Context, _ *domain.TaskParameters) (any, error) {
		return nil, errors.New("transient failure")
	})

	o, queue, status := newTestOrchestrator(def, exec, false)
	start := time.Now()
	o.now = func() time.Time { return start }

	results, err := o.Run(context.Background(), baseParams(def))
	if err != nil {
		t.Fatalf("retry path must not return error: %v", err)
	}
	if results.Success {
		t.Error("expected failure results")
	}
	if results.Metadata["retry_initiated"] != true {
		t.Errorf("expected retry_initiated metadata: %v", results.Metadata)
	}
	if results.Metadata["retry_attempt"] != 1 {
		t.Errorf("expected retry_attempt 1: %v", results.Metadata)
	}

	if len(queue.entries) != 1 {
		t.Fatalf("expected 1 scheduled retry, got %d", len(queue.entries))
	}
	retry := queue.entries[0]
	if retry.params.Iteration != 1 {
		t.Errorf("retry iteration = %d", retry.params.Iteration)
	}
	// retry_factor=1, iteration=1 → задержка 2 секунды
	wantDelay := 2 * time.Second
	if got := retry.notBefore.Sub(start); got != wantDelay {
		t.Errorf("retry delay = %v, want %v", got, wantDelay)
	}

	if status.countStatus(domain.StatusFailed) != 0 {
		t.Error("retry within budget must not mark FAILED")
	}
}

func TestRun_RetryExhaustedMarksFailedOnce(t *testing.T) {
	def := linearDefinition(2)

	exec := execFunc(func(_ context.Context, _ *domain.TaskParameters) (any, error) {
		return nil, errors.New("persistent failure")
	})

	o, queue, status := newTestOrchestrator(def, exec, false)

	params := baseParams(def)
	params.Iteration = params.MaxRetryCount

	results, err := o.Run(context.Background(), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results.Metadata["max_retries_exceeded"] != true {
		t.Errorf("expected max_retries_exceeded metadata: %v", results.Metadata)
	}

	if len(queue.entries) != 0 {
		t.Errorf("exhausted budget must not enqueue, got %d", len(queue.entries))
	}
	if got := status.countStatus(domain.StatusFailed); got != 1 {
		t.Errorf("expected exactly 1 FAILED write, got %d", got)
	}

	var failed statusWrite
	for _, w := range status.writes {
		if w.status == domain.StatusFailed {
			failed = w
		}
	}
	if failed.metadata["failure_reason"] != "persistent failure" {
		t.Errorf("FAILED write must carry failure reason: %v", failed.metadata)
	}
}

func TestRun_RetryEnqueueFailureEscalates(t *testing.T) {
	def := linearDefinition(2)

	exec := execFunc(func(_ context.Context, _ *domain.TaskParameters) (any, error) {
		return nil, errors.New("transient failure")
	})

	o, queue, status := newTestOrchestrator(def, exec, false)
	queue.err = errors.New("broker down")

	results, err := o.Run(context.Background(), baseParams(def))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results.Metadata["retry_enqueue_failed"] != true {
		t.Errorf("enqueue failure must escalate with its own marker: %v", results.Metadata)
	}
	if results.Metadata["max_retries_exceeded"] != nil {
		t.Errorf("budget was not exhausted, metadata must not claim it: %v", results.Metadata)
	}
	if status.countStatus(domain.StatusFailed) != 1 {
		t.Error("expected FAILED write after escalation")
	}

	var failed statusWrite
	for _, w := range status.writes {
		if w.status == domain.StatusFailed {
			failed = w
		}
	}
	if failed.metadata["retry_enqueue_failed"] != true || failed.metadata["max_retries_exceeded"] != nil {
		t.Errorf("FAILED write must carry the escalation marker only: %v", failed.metadata)
	}
}

func TestRun_NextEnqueueFailurePropagates(t *testing.T) {
	def := linearDefinition(2)

	exec := execFunc(func(_ context.Context, _ *domain.TaskParameters) (any, error) {
		return "ok", nil
	})

	o, queue, _ := newTestOrchestrator(def, exec, false)
	queue.err = errors.New("broker down")

	_, err := o.Run(context.Background(), baseParams(def))
	if !errors.Is(err, ErrEnqueue) {
		t.Errorf("expected ErrEnqueue, got %v", err)
	}
}

func TestRun_ResolutionErrorEndsPipeline(t *testing.T) {
	def := linearDefinition(2)

	exec := execFunc(func(_ context.Context, _ *domain.TaskParameters) (any, error) {
		return "ok", nil
	})

	o, queue, status := newTestOrchestrator(def, exec, false)

	// Шаг, отсутствующий в определении
	params := baseParams(def)
	params.TaskConfig = domain.TaskStep{ID: "ghost", Type: domain.StepTypeModule}

	results, err := o.Run(context.Background(), params)
	if err != nil {
		t.Fatalf("resolution error must not escalate: %v", err)
	}
	if !results.Success {
		t.Error("resolution error must not fail the step")
	}
	if len(queue.entries) != 0 {
		t.Errorf("no tasks must be enqueued, got %d", len(queue.entries))
	}
	if status.countStatus(domain.StatusCompleted) != 1 {
		t.Error("pipeline must be treated as completed")
	}
}

func TestInvoke_DirectRunsSynchronously(t *testing.T) {
	def := linearDefinition(1)
	def.Tasks[0].Queue = domain.QueueDirect

	executed := false
	exec := execFunc(func(_ context.Context, _ *domain.TaskParameters) (any, error) {
		executed = true
		return "ok", nil
	})

	o, queue, _ := newTestOrchestrator(def, exec, false)

	params := baseParams(def)
	returned, err := o.Invoke(context.Background(), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !executed {
		t.Error("DIRECT queue must run synchronously")
	}
	if len(queue.entries) != 0 {
		t.Error("DIRECT queue must not enqueue")
	}
	if returned != params {
		t.Error("Invoke must return submitted params")
	}
}

func TestInvoke_QueuedWritesQueuedStatus(t *testing.T) {
	def := linearDefinition(1)

	exec := execFunc(func(_ context.Context, _ *domain.TaskParameters) (any, error) {
		t.Fatal("queued invoke must not execute")
		return nil, nil
	})

	o, queue, status := newTestOrchestrator(def, exec, false)

	if _, err := o.Invoke(context.Background(), baseParams(def)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(queue.entries) != 1 {
		t.Fatalf("expected 1 enqueue, got %d", len(queue.entries))
	}
	if queue.entries[0].queue != "tasks.default" {
		t.Errorf("DEFAULT must resolve to tasks.default, got %s", queue.entries[0].queue)
	}
	if status.countStatus(domain.StatusQueued) != 1 {
		t.Error("expected QUEUED status write")
	}
}

func TestInvoke_ExplicitQueueOverride(t *testing.T) {
	def := linearDefinition(1)
	def.Tasks[0].Queue = "tasks.gpu"

	o, queue, _ := newTestOrchestrator(def, execFunc(func(_ context.Context, _ *domain.TaskParameters) (any, error) {
		return nil, nil
	}), false)

	if _, err := o.Invoke(context.Background(), baseParams(def)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if queue.entries[0].queue != "tasks.gpu" {
		t.Errorf("explicit queue override lost: %s", queue.entries[0].queue)
	}
}

func TestInvoke_EnqueueFailurePropagates(t *testing.T) {
	def := linearDefinition(1)

	o, queue, _ := newTestOrchestrator(def, execFunc(func(_ context.Context, _ *domain.TaskParameters) (any, error) {
		return nil, nil
	}), false)
	queue.err = errors.New("broker down")

	if _, err := o.Invoke(context.Background(), baseParams(def)); !errors.Is(err, ErrEnqueue) {
		t.Errorf("expected ErrEnqueue, got %v", err)
	}
}

func TestLaunch_NestedPipeline(t *testing.T) {
	parent := linearDefinition(1)
	nested := &domain.PipelineDefinition{
		Scope: "clinical",
		Key:   "page_extraction",
		Tasks: []domain.TaskStep{{ID: "nested-1", Type: domain.StepTypeModule}},
	}

	executed := ""
	exec := execFunc(func(_ context.Context, params *domain.TaskParameters) (any, error) {
		executed = params.TaskConfig.ID
		return "ok", nil
	})

	o, _, _ := newTestOrchestrator(parent, exec, true)
	o.definitions.(*fakeDefinitions).defs["clinical/page_extraction"] = nested

	params := baseParams(parent)
	result, err := o.Launch(context.Background(), params, "clinical", "page_extraction")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if executed != "nested-1" {
		t.Errorf("nested first task must run, got %q", executed)
	}
	if m, ok := result.(map[string]any); !ok || m["launched_key"] != "page_extraction" {
		t.Errorf("unexpected launch result: %v", result)
	}
}
