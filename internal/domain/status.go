package domain

// Status — статус выполнения pipeline, его страницы или run целиком.
//
// Жизненный цикл:
//
//	NOT_STARTED → QUEUED → IN_PROGRESS → COMPLETED
//	                                   ↘ FAILED
//
// UNKNOWN — нераспознанный статус в хранилище (не записывается намеренно).
type Status string

const (
	// StatusNotStarted — работа ещё не начиналась.
	StatusNotStarted Status = "NOT_STARTED"

	// StatusQueued — task поставлен в очередь, ожидает воркера.
	StatusQueued Status = "QUEUED"

	// StatusInProgress — task выполняется.
	StatusInProgress Status = "IN_PROGRESS"

	// StatusCompleted — pipeline успешно завершён.
	StatusCompleted Status = "COMPLETED"

	// StatusFailed — pipeline завершился с ошибкой (retry исчерпаны).
	StatusFailed Status = "FAILED"

	// StatusUnknown — статус не распознан при агрегации.
	StatusUnknown Status = "UNKNOWN"
)

// IsTerminal возвращает true, если статус финальный.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// IsKnown возвращает true, если статус входит в известный набор.
func (s Status) IsKnown() bool {
	switch s {
	case StatusNotStarted, StatusQueued, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// OperationType — тип операции, в рамках которой создан run.
//
// Управляет доставкой completion webhook: потребитель callback'ов понимает
// только документ-ориентированные операции извлечения, остальные подавляются.
type OperationType string

const (
	// OperationExtract — извлечение структурированных данных из документа.
	OperationExtract OperationType = "extract"

	// OperationConditionExtract — извлечение FHIR conditions из документа.
	OperationConditionExtract OperationType = "condition_extract"

	// OperationSchemaGeneration — генерация entity-схемы.
	OperationSchemaGeneration OperationType = "schema_generation"

	// OperationMedicationMatch — сопоставление медикаментов со справочником.
	OperationMedicationMatch OperationType = "medication_match"
)

// DeliversCallback возвращает true, если для операции доставляются
// webhook-уведомления о старте и завершении run.
func (o OperationType) DeliversCallback() bool {
	switch o {
	case OperationExtract, OperationConditionExtract:
		return true
	default:
		return false
	}
}
