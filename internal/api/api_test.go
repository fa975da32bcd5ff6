package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/Docpipe/internal/domain"
	"github.com/shaiso/Docpipe/internal/kv"
	"github.com/shaiso/Docpipe/internal/repo"
	"github.com/shaiso/Docpipe/internal/statestore"
)

type fakeInvoker struct {
	invoked []*domain.TaskParameters
	err     error
}

func (f *fakeInvoker) Invoke(_ context.Context, params *domain.TaskParameters) (*domain.TaskParameters, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.invoked = append(f.invoked, params)
	return params, nil
}

type memDefinitions struct {
	defs map[string]*domain.PipelineDefinition
}

func (d *memDefinitions) key(scope, key string) string { return scope + "/" + key }

func (d *memDefinitions) Lookup(_ context.Context, scope, key string) (*domain.PipelineDefinition, error) {
	def, ok := d.defs[d.key(scope, key)]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return def, nil
}

func (d *memDefinitions) Publish(_ context.Context, def *domain.PipelineDefinition) (*domain.PipelineDefinition, error) {
	published := *def
	published.Version = 1
	if existing, ok := d.defs[d.key(def.Scope, def.Key)]; ok {
		published.Version = existing.Version + 1
	}
	d.defs[d.key(def.Scope, def.Key)] = &published
	return &published, nil
}

func (d *memDefinitions) List(_ context.Context, scope string) ([]domain.PipelineDefinition, error) {
	var out []domain.PipelineDefinition
	for k, def := range d.defs {
		if strings.HasPrefix(k, scope+"/") {
			out = append(out, *def)
		}
	}
	return out, nil
}

func (d *memDefinitions) Delete(_ context.Context, scope, key string) error {
	if _, ok := d.defs[d.key(scope, key)]; !ok {
		return repo.ErrNotFound
	}
	delete(d.defs, d.key(scope, key))
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeInvoker, *statestore.Store, *memDefinitions) {
	t.Helper()

	invoker := &fakeInvoker{}
	store := statestore.New(statestore.Config{
		KV:           kv.NewMemory(),
		DefaultTTL:   24 * time.Hour,
		RetentionTTL: time.Hour,
	})
	defs := &memDefinitions{defs: map[string]*domain.PipelineDefinition{
		"clinical/extraction": {
			Scope:   "clinical",
			Key:     "extraction",
			Version: 1,
			Tasks: []domain.TaskStep{
				{ID: "split", Type: domain.StepTypeModule, Config: map[string]any{"module": "page_splitter"}},
				{ID: "extract", Type: domain.StepTypePrompt},
			},
		},
	}}

	handler := NewHandler(Config{
		Invoker:     invoker,
		Status:      store,
		Definitions: defs,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server, invoker, store, defs
}

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func TestStartRun(t *testing.T) {
	server, invoker, _, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/v1/runs", `{
		"app_id": "app-1",
		"tenant_id": "tenant-1",
		"patient_id": "patient-1",
		"document_id": "doc-1",
		"scope": "clinical",
		"pipeline_key": "extraction",
		"operation_type": "extract",
		"subject": {"document_uri": "s3://bucket/doc"}
	}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		Data RunStartedResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Data.RunID == "" {
		t.Error("run_id must be generated")
	}
	if body.Data.FirstTaskID != "split" {
		t.Errorf("first_task_id = %s", body.Data.FirstTaskID)
	}

	if len(invoker.invoked) != 1 {
		t.Fatalf("expected 1 invoke, got %d", len(invoker.invoked))
	}
	params := invoker.invoked[0]
	if params.TaskConfig.ID != "split" {
		t.Errorf("invoked task = %s", params.TaskConfig.ID)
	}
	if params.MaxRetryCount != defaultMaxRetryCount {
		t.Errorf("max_retry_count default lost: %d", params.MaxRetryCount)
	}
	if params.Subject["document_uri"] != "s3://bucket/doc" {
		t.Errorf("subject lost: %v", params.Subject)
	}
}

func TestStartRun_UnknownDefinition(t *testing.T) {
	server, _, _, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/v1/runs", `{
		"document_id": "doc-1",
		"scope": "clinical",
		"pipeline_key": "missing"
	}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestStartRun_Validation(t *testing.T) {
	server, _, _, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/v1/runs", `{"scope": "clinical"}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetRun(t *testing.T) {
	server, _, store, _ := newTestServer(t)

	store.UpdatePipelineStatus(context.Background(), "run-1", "extraction", statestore.StatusUpdate{
		Status:        domain.StatusInProgress,
		OperationType: domain.OperationExtract,
	})

	resp, err := http.Get(server.URL + "/api/v1/runs/run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		Data domain.PipelineListResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Data.Status != domain.StatusInProgress {
		t.Errorf("run status = %s", body.Data.Status)
	}
	if len(body.Data.Pipelines) != 1 {
		t.Errorf("pipelines = %d", len(body.Data.Pipelines))
	}
}

func TestDeleteRun(t *testing.T) {
	server, _, store, _ := newTestServer(t)

	store.UpdatePipelineStatus(context.Background(), "run-1", "extraction", statestore.StatusUpdate{
		Status:        domain.StatusCompleted,
		OperationType: domain.OperationExtract,
	})

	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/api/v1/runs/run-1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}

	// Повторное удаление — 404
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", resp.StatusCode)
	}
}

func TestDefinitionLifecycle(t *testing.T) {
	server, _, _, _ := newTestServer(t)

	// Публикация
	resp := postJSON(t, server.URL+"/api/v1/pipelines", `{
		"scope": "clinical",
		"key": "matching",
		"tasks": [{"id": "match", "type": "REMOTE", "config": {"url": "http://matcher"}}]
	}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("publish status = %d", resp.StatusCode)
	}

	// Чтение
	getResp, err := http.Get(server.URL + "/api/v1/pipelines/clinical/matching")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", getResp.StatusCode)
	}

	var body struct {
		Data domain.PipelineDefinition `json:"data"`
	}
	if err := json.NewDecoder(getResp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Data.Tasks) != 1 || body.Data.Tasks[0].ID != "match" {
		t.Errorf("unexpected definition: %+v", body.Data)
	}

	// Удаление
	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/api/v1/pipelines/clinical/matching", nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d", delResp.StatusCode)
	}
}

func TestPublishDefinition_Validation(t *testing.T) {
	server, _, _, _ := newTestServer(t)

	for name, body := range map[string]string{
		"missing scope": `{"key": "k", "tasks": [{"id": "a"}]}`,
		"empty tasks":   `{"scope": "s", "key": "k", "tasks": []}`,
		"task no id":    fmt.Sprintf(`{"scope": "s", "key": "k", "tasks": [{"type": %q}]}`, domain.StepTypeModule),
	} {
		resp := postJSON(t, server.URL+"/api/v1/pipelines", body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, resp.StatusCode)
		}
	}
}
