package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Docpipe/internal/domain"
)

// DefinitionRepo — репозиторий определений pipeline.
//
// Определение идентифицируется парой (scope, key) и версионируется:
// новая публикация добавляет строку со следующим номером версии,
// старые версии остаются неизменными.
type DefinitionRepo struct {
	pool *pgxpool.Pool
}

// NewDefinitionRepo создаёт новый DefinitionRepo.
func NewDefinitionRepo(pool *pgxpool.Pool) *DefinitionRepo {
	return &DefinitionRepo{pool: pool}
}

// Lookup возвращает последнюю версию определения по (scope, key).
func (r *DefinitionRepo) Lookup(ctx context.Context, scope, key string) (*domain.PipelineDefinition, error) {
	query := `
		SELECT scope, key, version, tasks
		FROM pipeline_definitions
		WHERE scope = $1 AND key = $2
		ORDER BY version DESC
		LIMIT 1
	`
	return r.queryOne(ctx, query, scope, key)
}

// LookupVersion возвращает конкретную версию определения.
func (r *DefinitionRepo) LookupVersion(ctx context.Context, scope, key string, version int) (*domain.PipelineDefinition, error) {
	query := `
		SELECT scope, key, version, tasks
		FROM pipeline_definitions
		WHERE scope = $1 AND key = $2 AND version = $3
	`
	return r.queryOne(ctx, query, scope, key, version)
}

// Publish сохраняет новую версию определения.
// Номер версии назначается автоматически.
func (r *DefinitionRepo) Publish(ctx context.Context, def *domain.PipelineDefinition) (*domain.PipelineDefinition, error) {
	tasksJSON, err := json.Marshal(def.Tasks)
	if err != nil {
		return nil, fmt.Errorf("marshal tasks: %w", err)
	}

	// 1. Следующий номер версии
	var nextVersion int
	err = r.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(version), 0) + 1
		FROM pipeline_definitions
		WHERE scope = $1 AND key = $2
	`, def.Scope, def.Key).Scan(&nextVersion)
	if err != nil {
		return nil, fmt.Errorf("get next version: %w", err)
	}

	// 2. Вставка новой версии
	_, err = r.pool.Exec(ctx, `
		INSERT INTO pipeline_definitions (scope, key, version, tasks, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, def.Scope, def.Key, nextVersion, tasksJSON)
	if err != nil {
		return nil, fmt.Errorf("insert pipeline definition: %w", err)
	}

	published := *def
	published.Version = nextVersion
	return &published, nil
}

// List возвращает последние версии всех определений в scope.
func (r *DefinitionRepo) List(ctx context.Context, scope string) ([]domain.PipelineDefinition, error) {
	query := `
		SELECT DISTINCT ON (key) scope, key, version, tasks
		FROM pipeline_definitions
		WHERE scope = $1
		ORDER BY key, version DESC
	`
	rows, err := r.pool.Query(ctx, query, scope)
	if err != nil {
		return nil, fmt.Errorf("list pipeline definitions: %w", err)
	}
	defer rows.Close()

	var defs []domain.PipelineDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, *def)
	}
	return defs, rows.Err()
}

// Delete удаляет все версии определения.
func (r *DefinitionRepo) Delete(ctx context.Context, scope, key string) error {
	query := `DELETE FROM pipeline_definitions WHERE scope = $1 AND key = $2`
	result, err := r.pool.Exec(ctx, query, scope, key)
	if err != nil {
		return fmt.Errorf("delete pipeline definition: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *DefinitionRepo) queryOne(ctx context.Context, query string, args ...any) (*domain.PipelineDefinition, error) {
	row := r.pool.QueryRow(ctx, query, args...)
	def, err := scanDefinition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pipeline definition: %w", err)
	}
	return def, nil
}

// scanDefinition читает одну строку pipeline_definitions.
func scanDefinition(row pgx.Row) (*domain.PipelineDefinition, error) {
	var def domain.PipelineDefinition
	var tasksJSON []byte
	if err := row.Scan(
		&def.Scope,
		&def.Key,
		&def.Version,
		&tasksJSON,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(tasksJSON, &def.Tasks); err != nil {
		return nil, fmt.Errorf("unmarshal tasks: %w", err)
	}

	return &def, nil
}
