// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — постановка задач в очереди
//   - consumer.go   — потребление задач воркерами
//
// Типы сообщений:
//   - task.dispatch — TaskParameters для выполнения шага воркером
//
// Exchanges:
//   - docpipe.tasks — диспетчеризация задач (routing key = имя очереди)
//   - docpipe.dlq   — dead letter queue
//
// Постановка — fire-and-forget: оркестратор никогда не ждёт завершения
// отправленного шага. Отложенная доставка (retry backoff) реализована
// не средствами AMQP, а планировщиком (internal/scheduler).
package mq
