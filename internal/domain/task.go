package domain

import (
	"math"
	"time"
)

// TaskParameters — единица работы, передаваемая между шагами pipeline.
//
// Создаётся заново для каждого вызова шага. Карты Context и Entities
// копируются вперёд (copy-on-write): каждый экземпляр TaskParameters —
// самодостаточный снапшот, не разделяющий мутируемое состояние
// с предыдущими шагами.
type TaskParameters struct {
	// Идентификационный кортеж.
	AppID      string `json:"app_id"`
	TenantID   string `json:"tenant_id"`
	PatientID  string `json:"patient_id"`
	DocumentID string `json:"document_id"`

	// RunID — идентификатор run (одного запуска pipeline).
	RunID string `json:"run_id"`

	// Scope и PipelineKey — ссылка на PipelineDefinition.
	Scope       string `json:"scope"`
	PipelineKey string `json:"pipeline_key"`

	// OperationType — тип операции run (управляет доставкой callback'ов).
	OperationType OperationType `json:"operation_type,omitempty"`

	// PageNumber — номер страницы для постраничных задач (nil — уровень документа).
	PageNumber *int `json:"page_number,omitempty"`

	// PageCount — заявленное количество страниц документа.
	PageCount int `json:"page_count,omitempty"`

	// TaskConfig — текущий шаг.
	TaskConfig TaskStep `json:"task_config"`

	// Subject — полезная нагрузка, передаваемая этому шагу.
	Subject map[string]any `json:"subject,omitempty"`

	// Context — результаты предыдущих шагов (scope → pipeline → task).
	Context ResultContext `json:"context,omitempty"`

	// Entities — schema-tagged результаты извлечения, та же форма что Context.
	Entities ResultContext `json:"entities,omitempty"`

	// Retry-состояние.
	Iteration     int     `json:"iteration"`
	MaxRetryCount int     `json:"max_retry_count"`
	RetryFactor   float64 `json:"retry_factor"`
}

// PipelineID — идентификатор pipeline для записей Pipeline Status Store.
func (p *TaskParameters) PipelineID() string {
	return p.PipelineKey
}

// Next строит TaskParameters для следующего шага.
//
// Карты Context и Entities клонируются, retry-состояние сбрасывается,
// идентификационный кортеж и настройки retry наследуются.
func (p *TaskParameters) Next(step TaskStep) *TaskParameters {
	next := *p
	next.TaskConfig = step
	next.Context = p.Context.Clone()
	next.Entities = p.Entities.Clone()
	next.Iteration = 0
	return &next
}

// ForRetry строит TaskParameters для повторной попытки текущего шага:
// идентичная копия с iteration+1.
func (p *TaskParameters) ForRetry() *TaskParameters {
	retry := *p
	retry.Context = p.Context.Clone()
	retry.Entities = p.Entities.Clone()
	retry.Iteration = p.Iteration + 1
	return &retry
}

// CanRetry возвращает true, если бюджет повторных попыток не исчерпан.
func (p *TaskParameters) CanRetry() bool {
	return p.Iteration < p.MaxRetryCount
}

// RetryDelay вычисляет задержку перед повторной попыткой:
// retry_factor * 2^iteration секунд; при retry_factor <= 0 задержки нет.
func (p *TaskParameters) RetryDelay() time.Duration {
	if p.RetryFactor <= 0 {
		return 0
	}
	sec := p.RetryFactor * math.Pow(2, float64(p.Iteration))
	return time.Duration(sec * float64(time.Second))
}

// TaskResults — результат одного выполнения шага. Неизменяемо.
type TaskResults struct {
	// Success — успешность выполнения.
	Success bool `json:"success"`

	// Results — полезный результат (объект или массив).
	Results any `json:"results,omitempty"`

	// ErrorMessage — текст ошибки при неудаче.
	ErrorMessage string `json:"error_message,omitempty"`

	// Metadata — служебные данные (resolved next tasks, retry-метки).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Entity — schema-tagged запись результата извлечения.
type Entity struct {
	// Schema — ссылка на entity-схему шага.
	Schema string `json:"schema"`

	// Data — извлечённые данные.
	Data any `json:"data"`
}

// WrapEntities оборачивает результат шага в schema-tagged записи.
// Список оборачивается поэлементно, одиночный объект — целиком.
func WrapEntities(schema string, result any) any {
	if list, ok := result.([]any); ok {
		entities := make([]Entity, 0, len(list))
		for _, item := range list {
			entities = append(entities, Entity{Schema: schema, Data: item})
		}
		return entities
	}
	return Entity{Schema: schema, Data: result}
}
