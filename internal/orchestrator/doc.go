// Package orchestrator реализует Task Orchestrator — управление
// жизненным циклом шагов pipeline.
//
// Ответственность:
//   - Invoke: маршрутизация вызова (синхронно / через очередь)
//   - Run: выполнение одного шага и переход к следующему
//   - Next-task resolution: следующий шаг по плоскому списку определения,
//     включая fan-out в N постраничных задач
//   - Retry/backoff с экспоненциальной задержкой и эскалация в FAILED
//
// Оркестратор не хранит состояния выполнения: всё необходимое несёт
// TaskParameters, а наблюдаемый статус run живёт в Pipeline Status Store
// (internal/statestore). Ошибки записи статусов никогда не прерывают
// жизненный цикл задачи; ошибки постановки в очередь, напротив, фатальны.
package orchestrator
