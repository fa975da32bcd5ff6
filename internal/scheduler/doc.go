// Package scheduler реализует отложенную доставку задач.
//
// Обычный AMQP не умеет доставку «не раньше чем», а retry backoff
// оркестратора требует именно её. Решение двухчастное:
//
//   - DelayedQueue — реализация Queue-интерфейса оркестратора: задачи
//     с немедленной доставкой уходят прямо в RabbitMQ, задачи с будущим
//     временем складываются в Redis ZSET (score = unix-время доставки);
//   - Sweeper — периодический обход ZSET по cron-расписанию: созревшие
//     записи публикуются в RabbitMQ и удаляются из ZSET.
//
// Доставка at-least-once: при падении между публикацией и удалением
// запись будет опубликована повторно на следующем проходе.
package scheduler
