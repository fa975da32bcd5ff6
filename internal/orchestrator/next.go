package orchestrator

import (
	"context"
	"fmt"

	"github.com/shaiso/Docpipe/internal/domain"
)

// resolveNext возвращает следующие задачи pipeline.
//
// Плоский упорядоченный список: кандидат — шаг, непосредственно следующий
// за текущим. Если текущий шаг объявил for_each=page, кандидат
// разворачивается в N постраничных задач по результату текущего шага.
//
// Любая ошибка разрешения трактуется как конец pipeline (warning, не
// эскалация): пустой результат.
func (o *Orchestrator) resolveNext(ctx context.Context, params *domain.TaskParameters, result any) []*domain.TaskParameters {
	nextTasks, err := o.tryResolveNext(ctx, params, result)
	if err != nil {
		o.logger.Warn("next-task resolution failed, treating as pipeline end",
			"run_id", params.RunID,
			"task_id", params.TaskConfig.ID,
			"error", err,
		)
		return nil
	}
	return nextTasks
}

func (o *Orchestrator) tryResolveNext(ctx context.Context, params *domain.TaskParameters, result any) ([]*domain.TaskParameters, error) {
	def, err := o.definitions.Lookup(ctx, params.Scope, params.PipelineKey)
	if err != nil {
		return nil, fmt.Errorf("lookup pipeline %s/%s: %w", params.Scope, params.PipelineKey, err)
	}

	idx := def.TaskIndex(params.TaskConfig.ID)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s in %s/%s", ErrTaskNotInDefinition, params.TaskConfig.ID, params.Scope, params.PipelineKey)
	}

	// Последний шаг — конец pipeline
	if idx == len(def.Tasks)-1 {
		return nil, nil
	}

	nextStep := def.Tasks[idx+1]

	if params.TaskConfig.FansOutPerPage() {
		if fanned := o.fanOutPerPage(params, nextStep, result); len(fanned) > 0 {
			return fanned, nil
		}
		// Страниц не нашлось — одиночная задача, pipeline не должен застрять
		o.logger.Warn("for_each=page produced no pages, falling back to single task",
			"run_id", params.RunID,
			"task_id", params.TaskConfig.ID,
		)
	}

	return []*domain.TaskParameters{params.Next(nextStep)}, nil
}

// fanOutPerPage строит по одной задаче на страницу из результата шага.
// Записи без page_number пропускаются с предупреждением.
func (o *Orchestrator) fanOutPerPage(params *domain.TaskParameters, nextStep domain.TaskStep, result any) []*domain.TaskParameters {
	pages := extractPages(result)
	if len(pages) == 0 {
		return nil
	}

	fanned := make([]*domain.TaskParameters, 0, len(pages))
	for _, page := range pages {
		number, ok := pageNumber(page)
		if !ok {
			o.logger.Warn("page entry has no page_number, skipping",
				"run_id", params.RunID,
				"task_id", params.TaskConfig.ID,
			)
			continue
		}

		next := params.Next(nextStep)
		next.PageNumber = &number
		if next.PageCount == 0 {
			next.PageCount = len(pages)
		}

		// Постраничный контекст шага
		subject := make(map[string]any, len(params.Subject)+3)
		for k, v := range params.Subject {
			subject[k] = v
		}
		subject["page_info"] = page
		if uri, ok := page["page_storage_uri"].(string); ok && uri != "" {
			subject["page_storage_uri"] = uri
		}
		subject["total_pages"] = len(pages)
		next.Subject = subject

		fanned = append(fanned, next)
	}

	return fanned
}

// extractPages достаёт список страниц из результата шага.
//
// Поддерживаются три формы результата:
//  1. объект с полем "pages";
//  2. список, первый элемент которого содержит поле "pages";
//  3. список без поля "pages" — каждый элемент списка и есть страница.
func extractPages(result any) []map[string]any {
	switch v := result.(type) {
	case map[string]any:
		return pagesField(v)

	case []any:
		if len(v) == 0 {
			return nil
		}
		if first, ok := v[0].(map[string]any); ok {
			if pages := pagesField(first); pages != nil {
				return pages
			}
		}
		pages := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if page, ok := item.(map[string]any); ok {
				pages = append(pages, page)
			}
		}
		return pages
	}
	return nil
}

// pagesField извлекает поле "pages" как список объектов.
func pagesField(m map[string]any) []map[string]any {
	raw, ok := m["pages"]
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	pages := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if page, ok := item.(map[string]any); ok {
			pages = append(pages, page)
		}
	}
	return pages
}

// pageNumber извлекает page_number из записи страницы.
// После JSON-десериализации числа приходят как float64.
func pageNumber(page map[string]any) (int, bool) {
	switch v := page["page_number"].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}
