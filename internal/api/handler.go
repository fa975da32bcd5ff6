package api

import (
	"context"
	"log/slog"

	"github.com/shaiso/Docpipe/internal/domain"
)

// Invoker — запуск задач через оркестратор.
type Invoker interface {
	Invoke(ctx context.Context, params *domain.TaskParameters) (*domain.TaskParameters, error)
}

// StatusReader — чтение и очистка агрегированного статуса run.
// Реализуется statestore.Store.
type StatusReader interface {
	ListPipelinesForRun(ctx context.Context, runID string) (*domain.PipelineListResponse, error)
	DeleteAllPipelinesForRun(ctx context.Context, runID string) (bool, error)
}

// DefinitionStore — управление определениями pipeline.
// Реализуется repo.DefinitionRepo.
type DefinitionStore interface {
	Lookup(ctx context.Context, scope, key string) (*domain.PipelineDefinition, error)
	Publish(ctx context.Context, def *domain.PipelineDefinition) (*domain.PipelineDefinition, error)
	List(ctx context.Context, scope string) ([]domain.PipelineDefinition, error)
	Delete(ctx context.Context, scope, key string) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	invoker     Invoker
	status      StatusReader
	definitions DefinitionStore
	logger      *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Invoker     Invoker
	Status      StatusReader
	Definitions DefinitionStore
	Logger      *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		invoker:     cfg.Invoker,
		status:      cfg.Status,
		definitions: cfg.Definitions,
		logger:      logger,
	}
}
