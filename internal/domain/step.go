package domain

// StepType — тип шага pipeline.
//
// Закрытый набор: каждому типу соответствует свой executor
// (см. internal/executor). Неизвестный тип — фатальная ошибка конфигурации.
type StepType string

const (
	// StepTypeModule — встроенный модуль (зарегистрированная Go-функция).
	StepTypeModule StepType = "MODULE"

	// StepTypePrompt — выполнение LLM-промпта.
	StepTypePrompt StepType = "PROMPT"

	// StepTypePipeline — запуск вложенного pipeline.
	StepTypePipeline StepType = "PIPELINE"

	// StepTypeRemote — вызов внешнего HTTP-сервиса.
	StepTypeRemote StepType = "REMOTE"

	// StepTypePublishCallback — публикация накопленных entities во внешний callback.
	StepTypePublishCallback StepType = "PUBLISH_CALLBACK"
)

// Псевдоимена очередей в конфигурации шага.
const (
	// QueueDirect — шаг выполняется синхронно, без постановки в очередь.
	QueueDirect = "DIRECT"

	// QueueDefault — шаг ставится в очередь по умолчанию.
	QueueDefault = "DEFAULT"
)

// ForEachPage — значение post_processing.for_each, включающее fan-out
// по страницам документа.
const ForEachPage = "page"

// PostProcessing — пост-обработка результата шага.
type PostProcessing struct {
	// ForEach — режим fan-out следующего шага ("page" — по страницам).
	ForEach string `json:"for_each,omitempty"`
}

// TaskStep — определение одного шага pipeline.
type TaskStep struct {
	// ID — уникальный идентификатор шага в рамках pipeline.
	ID string `json:"id"`

	// Type — тип шага (MODULE, PROMPT, PIPELINE, REMOTE, PUBLISH_CALLBACK).
	Type StepType `json:"type"`

	// EntitySchema — ссылка на entity-схему. Если задана, результат шага
	// дополнительно записывается в entities как schema-tagged запись.
	EntitySchema string `json:"entity_schema,omitempty"`

	// PostProcessing — пост-обработка (fan-out по страницам).
	PostProcessing *PostProcessing `json:"post_processing,omitempty"`

	// Queue — переопределение очереди для этого шага.
	// Пустое значение эквивалентно DEFAULT. Поддерживаются псевдоимена
	// DIRECT (синхронно) и DEFAULT (очередь по умолчанию).
	Queue string `json:"queue,omitempty"`

	// Config — конфигурация шага (зависит от типа).
	// Для PROMPT: prompt_key; для REMOTE: url; для MODULE: module;
	// для PUBLISH_CALLBACK: callback_url; для PIPELINE: scope, key.
	Config map[string]any `json:"config,omitempty"`
}

// FansOutPerPage возвращает true, если после этого шага следующий шаг
// разворачивается в N постраничных задач.
func (s *TaskStep) FansOutPerPage() bool {
	return s.PostProcessing != nil && s.PostProcessing.ForEach == ForEachPage
}

// ConfigString возвращает строковое значение из Config.
func (s *TaskStep) ConfigString(key string) string {
	if s.Config == nil {
		return ""
	}
	if v, ok := s.Config[key].(string); ok {
		return v
	}
	return ""
}

// PipelineDefinition — статическое определение pipeline.
//
// Плоский упорядоченный список шагов: шаг N+1 всегда следует за шагом N,
// ветвлений и условных переходов нет. Неизменяемо в рамках версии;
// ищется по паре (scope, key).
type PipelineDefinition struct {
	// Scope — область видимости (например, tenant или приложение).
	Scope string `json:"scope"`

	// Key — имя pipeline в рамках scope.
	Key string `json:"key"`

	// Version — номер версии определения.
	Version int `json:"version"`

	// Tasks — упорядоченный список шагов.
	Tasks []TaskStep `json:"tasks"`
}

// TaskIndex возвращает индекс шага по ID или -1, если шаг не найден.
func (d *PipelineDefinition) TaskIndex(id string) int {
	for i := range d.Tasks {
		if d.Tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// TaskByID возвращает шаг по ID или nil.
func (d *PipelineDefinition) TaskByID(id string) *TaskStep {
	if i := d.TaskIndex(id); i >= 0 {
		return &d.Tasks[i]
	}
	return nil
}

// FirstTask возвращает первый шаг pipeline или nil для пустого определения.
func (d *PipelineDefinition) FirstTask() *TaskStep {
	if len(d.Tasks) == 0 {
		return nil
	}
	return &d.Tasks[0]
}
