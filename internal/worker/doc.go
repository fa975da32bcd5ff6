// Package worker связывает очередь задач с оркестратором.
//
// Worker — stateless компонент, который:
//   - Потребляет task.dispatch сообщения из очередей RabbitMQ
//   - Передаёт TaskParameters в Orchestrator.Run
//   - Подтверждает (ack) обработанные сообщения
//
// Результат Run (включая провал шага) — штатный исход: retry и эскалацию
// планирует сам оркестратор, поэтому сообщение ack'ается и при
// неуспешном TaskResults. Nack происходит только при невозможности
// обработать сообщение (нечитаемый payload, ошибка постановки следующих
// задач).
//
// Workers масштабируются горизонтально — несколько экземпляров
// могут потреблять из одной очереди.
package worker
