package statestore

import (
	"fmt"
	"strconv"
)

// FieldDocument — поле hash'а для записи уровня документа.
// Постраничные записи хранятся под десятичным номером страницы.
const FieldDocument = "document"

// fieldJob — поле hash'а с записью Job.
const fieldJob = "job"

// jobKey — ключ записи Job.
func jobKey(runID string) string {
	return fmt.Sprintf("docpipe:run:%s:job", runID)
}

// pipelineSetKey — ключ set'а идентификаторов pipeline.
func pipelineSetKey(runID string) string {
	return fmt.Sprintf("docpipe:run:%s:pipelines", runID)
}

// pipelineKey — ключ hash'а одного pipeline.
func pipelineKey(runID, pipelineID string) string {
	return fmt.Sprintf("docpipe:run:%s:pipeline:%s", runID, pipelineID)
}

// pageField возвращает поле hash'а для страницы (nil — уровень документа).
func pageField(page *int) string {
	if page == nil {
		return FieldDocument
	}
	return strconv.Itoa(*page)
}

// parsePageField распознаёт номер страницы в имени поля.
// Возвращает (номер, true) для чисто числового поля.
func parsePageField(field string) (int, bool) {
	n, err := strconv.Atoi(field)
	if err != nil {
		return 0, false
	}
	return n, true
}
