package api

import (
	"github.com/shaiso/Docpipe/internal/domain"
)

// Значения по умолчанию для retry-настроек нового run.
const (
	defaultMaxRetryCount = 3
	defaultRetryFactor   = 2.0
)

// StartRunRequest — запрос на запуск run.
type StartRunRequest struct {
	// Идентификационный кортеж документа.
	AppID      string `json:"app_id"`
	TenantID   string `json:"tenant_id"`
	PatientID  string `json:"patient_id"`
	DocumentID string `json:"document_id"`

	// RunID — необязательный внешний идентификатор run;
	// пустое значение — сгенерировать.
	RunID string `json:"run_id,omitempty"`

	// Scope и PipelineKey — какой pipeline запускать.
	Scope       string `json:"scope"`
	PipelineKey string `json:"pipeline_key"`

	// OperationType — тип операции (управляет доставкой callback'ов).
	OperationType string `json:"operation_type,omitempty"`

	// Subject — полезная нагрузка первого шага.
	Subject map[string]any `json:"subject,omitempty"`

	// PageCount — заявленное количество страниц документа.
	PageCount int `json:"page_count,omitempty"`

	// Retry-настройки (опционально).
	MaxRetryCount *int     `json:"max_retry_count,omitempty"`
	RetryFactor   *float64 `json:"retry_factor,omitempty"`
}

// RunStartedResponse — ответ на запуск run.
type RunStartedResponse struct {
	RunID       string `json:"run_id"`
	Scope       string `json:"scope"`
	PipelineKey string `json:"pipeline_key"`
	FirstTaskID string `json:"first_task_id"`
}

// PublishDefinitionRequest — запрос на публикацию определения pipeline.
type PublishDefinitionRequest struct {
	Scope string            `json:"scope"`
	Key   string            `json:"key"`
	Tasks []domain.TaskStep `json:"tasks"`
}
