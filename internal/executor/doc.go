// Package executor содержит executor'ы для всех типов шагов pipeline.
//
// Каждый StepType отображается в свою реализацию Executor:
//   - MODULE           — ModuleExecutor (зарегистрированные Go-функции)
//   - PROMPT           — PromptExecutor (LLM-клиент)
//   - REMOTE           — RemoteExecutor (внешний HTTP-сервис)
//   - PUBLISH_CALLBACK — CallbackExecutor (доставка entities)
//   - PIPELINE         — PipelineExecutor (вложенный pipeline)
//
// Executor выполняет ровно один шаг и возвращает его результат;
// переходы между шагами, retry и запись статусов — ответственность
// оркестратора (internal/orchestrator).
package executor
