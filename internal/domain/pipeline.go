package domain

import "time"

// Pipeline — запись Pipeline Status Store.
//
// Одна запись на тройку (run_id, pipeline_id, страница-или-документ).
// Создаётся при первой записи статуса для тройки; при последующих записях
// мутируются только Status и UpdatedAt. Удаляется только явной очисткой
// run или по TTL.
type Pipeline struct {
	// ID — идентификатор pipeline (или task'а, породившего запись).
	ID string `json:"id"`

	// Status — текущий статус.
	Status Status `json:"status"`

	// Order — подсказка порядка выполнения для сортировки списка.
	// 0 — порядок не задан (сортируется в конец).
	Order int `json:"order,omitempty"`

	// Metadata — произвольные служебные данные (причина ошибки и т.п.).
	Metadata map[string]any `json:"metadata,omitempty"`

	// Идентификационный кортеж.
	AppID      string `json:"app_id,omitempty"`
	TenantID   string `json:"tenant_id,omitempty"`
	PatientID  string `json:"patient_id,omitempty"`
	DocumentID string `json:"document_id,omitempty"`

	// RunID — идентификатор run.
	RunID string `json:"run_id"`

	// Pages — заявленное количество страниц документа.
	Pages int `json:"pages,omitempty"`

	// CreatedAt и UpdatedAt — времена создания и последнего обновления.
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Job — запись уровня run. Ровно одна на run_id.
//
// Инвариант: Job всегда существует до первой записи Pipeline для того же
// run_id — store создаёт его лениво из первой записи статуса.
type Job struct {
	// RunID — идентификатор run.
	RunID string `json:"run_id"`

	// OperationType — тип операции (управляет доставкой callback'ов).
	OperationType OperationType `json:"operation_type"`

	// TotalPages — заявленное количество страниц документа.
	// Используется политикой постраничного завершения.
	TotalPages int `json:"total_pages,omitempty"`

	// Идентификационный кортеж.
	AppID      string `json:"app_id,omitempty"`
	TenantID   string `json:"tenant_id,omitempty"`
	PatientID  string `json:"patient_id,omitempty"`
	DocumentID string `json:"document_id,omitempty"`

	// Metadata — произвольные служебные данные.
	Metadata map[string]any `json:"metadata,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// PipelineListItem — агрегированное представление одного pipeline внутри run.
// Вычисляется на каждый запрос, никогда не сохраняется.
type PipelineListItem struct {
	// PipelineID — идентификатор pipeline.
	PipelineID string `json:"pipeline_id"`

	// Status — агрегированный статус pipeline.
	Status Status `json:"status"`

	// Order — подсказка порядка (0 — не задана).
	Order int `json:"order,omitempty"`

	// PageLevel — true, если pipeline содержит постраничные под-записи.
	PageLevel bool `json:"page_level,omitempty"`

	// Metadata — служебные данные FAILED под-записи (причина ошибки,
	// упавший task). Заполняется только для FAILED pipeline: получатель
	// completion-callback'а должен видеть причину, а не только статус.
	Metadata map[string]any `json:"metadata,omitempty"`

	// PageStatuses — статусы постраничных под-записей (только для PageLevel).
	PageStatuses map[int]Status `json:"page_statuses,omitempty"`

	// ElapsedSeconds — время с самого раннего created_at среди под-записей.
	ElapsedSeconds float64 `json:"elapsed_time"`

	// CreatedAt — самое раннее created_at среди под-записей.
	CreatedAt time.Time `json:"created_at"`
}

// PipelineListResponse — агрегированное представление run.
// Вычисляется на каждый запрос, никогда не сохраняется.
type PipelineListResponse struct {
	// RunID — идентификатор run.
	RunID string `json:"run_id"`

	// Status — агрегированный статус run.
	Status Status `json:"status"`

	// ElapsedSeconds — время с самого раннего created_at в run.
	ElapsedSeconds float64 `json:"elapsed_time"`

	// Pipelines — список pipeline, отсортированный по Order.
	Pipelines []PipelineListItem `json:"pipelines"`
}
