package domain

// ResultContext — иерархическая карта результатов шагов:
// scope → pipeline_key → task_id → результат.
//
// Между шагами карта передаётся по принципу copy-on-write: каждый новый
// TaskParameters получает собственную копию всех трёх уровней (Clone),
// поэтому снапшот предыдущего шага никогда не мутируется. Сами значения
// (листья) считаются неизменяемыми и копируются по ссылке.
type ResultContext map[string]map[string]map[string]any

// Get возвращает результат шага и признак его наличия.
func (c ResultContext) Get(scope, pipelineKey, taskID string) (any, bool) {
	pipelines, ok := c[scope]
	if !ok {
		return nil, false
	}
	tasks, ok := pipelines[pipelineKey]
	if !ok {
		return nil, false
	}
	v, ok := tasks[taskID]
	return v, ok
}

// Set записывает результат шага, создавая промежуточные уровни.
// Мутирует карту — вызывать только на собственной копии (после Clone).
func (c ResultContext) Set(scope, pipelineKey, taskID string, value any) {
	pipelines, ok := c[scope]
	if !ok {
		pipelines = make(map[string]map[string]any)
		c[scope] = pipelines
	}
	tasks, ok := pipelines[pipelineKey]
	if !ok {
		tasks = make(map[string]any)
		pipelines[pipelineKey] = tasks
	}
	tasks[taskID] = value
}

// Clone возвращает глубокую копию всех трёх уровней карты.
// Листовые значения копируются по ссылке.
func (c ResultContext) Clone() ResultContext {
	out := make(ResultContext, len(c))
	for scope, pipelines := range c {
		outPipelines := make(map[string]map[string]any, len(pipelines))
		for key, tasks := range pipelines {
			outTasks := make(map[string]any, len(tasks))
			for taskID, v := range tasks {
				outTasks[taskID] = v
			}
			outPipelines[key] = outTasks
		}
		out[scope] = outPipelines
	}
	return out
}

// WithValue возвращает копию карты с добавленным значением.
// Исходная карта не изменяется.
func (c ResultContext) WithValue(scope, pipelineKey, taskID string, value any) ResultContext {
	out := c.Clone()
	out.Set(scope, pipelineKey, taskID, value)
	return out
}
