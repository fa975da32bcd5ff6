package domain

import (
	"testing"
	"time"
)

func TestTaskParameters_Next(t *testing.T) {
	ctx := make(ResultContext)
	ctx.Set("s", "p", "step-1", "result")

	params := &TaskParameters{
		RunID:         "run-1",
		Scope:         "s",
		PipelineKey:   "p",
		TaskConfig:    TaskStep{ID: "step-1", Type: StepTypePrompt},
		Context:       ctx,
		Entities:      make(ResultContext),
		Iteration:     2,
		MaxRetryCount: 3,
	}

	next := params.Next(TaskStep{ID: "step-2", Type: StepTypeRemote})

	if next.TaskConfig.ID != "step-2" {
		t.Errorf("expected step-2, got %s", next.TaskConfig.ID)
	}
	if next.Iteration != 0 {
		t.Errorf("iteration must reset, got %d", next.Iteration)
	}
	if next.RunID != "run-1" || next.MaxRetryCount != 3 {
		t.Error("identity and retry budget must be inherited")
	}

	// Контекст следующего шага — независимая копия
	next.Context.Set("s", "p", "step-2", "new")
	if _, ok := params.Context.Get("s", "p", "step-2"); ok {
		t.Error("next params must not share context with predecessor")
	}
}

func TestTaskParameters_ForRetry(t *testing.T) {
	params := &TaskParameters{
		TaskConfig:    TaskStep{ID: "step-1"},
		Context:       make(ResultContext),
		Entities:      make(ResultContext),
		Iteration:     1,
		MaxRetryCount: 3,
	}

	retry := params.ForRetry()
	if retry.Iteration != 2 {
		t.Errorf("expected iteration 2, got %d", retry.Iteration)
	}
	if retry.TaskConfig.ID != "step-1" {
		t.Error("retry must keep the same step")
	}
	if params.Iteration != 1 {
		t.Error("original params must not change")
	}
}

func TestTaskParameters_CanRetry(t *testing.T) {
	p := &TaskParameters{Iteration: 2, MaxRetryCount: 3}
	if !p.CanRetry() {
		t.Error("iteration 2 of 3 should allow retry")
	}
	p.Iteration = 3
	if p.CanRetry() {
		t.Error("iteration 3 of 3 should not allow retry")
	}
}

func TestTaskParameters_RetryDelay(t *testing.T) {
	tests := []struct {
		factor    float64
		iteration int
		expected  time.Duration
	}{
		{0, 5, 0}, // без фактора — без задержки
		{1, 0, 1 * time.Second},
		{1, 2, 4 * time.Second},
		{0.5, 3, 4 * time.Second},
		{2, 4, 32 * time.Second},
	}

	for _, tt := range tests {
		p := &TaskParameters{RetryFactor: tt.factor, Iteration: tt.iteration}
		if got := p.RetryDelay(); got != tt.expected {
			t.Errorf("factor=%v iteration=%d: expected %v, got %v",
				tt.factor, tt.iteration, tt.expected, got)
		}
	}
}

func TestWrapEntities_SingleObject(t *testing.T) {
	result := map[string]any{"name": "aspirin"}

	wrapped := WrapEntities("medication.v1", result)
	entity, ok := wrapped.(Entity)
	if !ok {
		t.Fatalf("expected Entity, got %T", wrapped)
	}
	if entity.Schema != "medication.v1" {
		t.Errorf("unexpected schema: %s", entity.Schema)
	}
}

func TestWrapEntities_List(t *testing.T) {
	result := []any{
		map[string]any{"name": "aspirin"},
		map[string]any{"name": "ibuprofen"},
	}

	wrapped := WrapEntities("medication.v1", result)
	entities, ok := wrapped.([]Entity)
	if !ok {
		t.Fatalf("expected []Entity, got %T", wrapped)
	}
	if len(entities) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(entities))
	}
	for _, e := range entities {
		if e.Schema != "medication.v1" {
			t.Errorf("unexpected schema: %s", e.Schema)
		}
	}
}

func TestOperationType_DeliversCallback(t *testing.T) {
	if !OperationExtract.DeliversCallback() {
		t.Error("extract must deliver callbacks")
	}
	if !OperationConditionExtract.DeliversCallback() {
		t.Error("condition_extract must deliver callbacks")
	}
	if OperationSchemaGeneration.DeliversCallback() {
		t.Error("schema_generation must be suppressed")
	}
	if OperationMedicationMatch.DeliversCallback() {
		t.Error("medication_match must be suppressed")
	}
}
