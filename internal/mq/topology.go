package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// Exchanges — имена обменников.
const (
	ExchangeTasks Exchange = "docpipe.tasks"
	ExchangeDLQ   Exchange = "docpipe.dlq"
)

// Queues — имена очередей.
const (
	// QueueTasksDefault — очередь задач по умолчанию
	// (псевдоимя DEFAULT в конфигурации шага).
	QueueTasksDefault Queue = "tasks.default"

	// QueueDLQ — задачи, исчерпавшие доставку.
	QueueDLQ Queue = "dlq.tasks"
)

// SetupTopology объявляет обменники и базовые очереди.
// Очереди-переопределения из конфигурации шагов объявляются
// по мере необходимости через EnsureTaskQueue.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		// 1. Обменники
		for _, ex := range []Exchange{ExchangeTasks, ExchangeDLQ} {
			err := ch.ExchangeDeclare(
				string(ex), // name
				"direct",   // type
				true,       // durable
				false,      // auto-deleted
				false,      // internal
				false,      // no-wait
				nil,        // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex, err)
			}
		}

		// 2. Очередь по умолчанию + DLQ
		if err := declareTaskQueue(ch, string(QueueTasksDefault)); err != nil {
			return err
		}

		if _, err := ch.QueueDeclare(
			string(QueueDLQ), // name
			true,             // durable
			false,            // delete when unused
			false,            // exclusive
			false,            // no-wait
			nil,              // arguments
		); err != nil {
			return fmt.Errorf("declare queue %s: %w", QueueDLQ, err)
		}
		if err := ch.QueueBind(string(QueueDLQ), string(QueueDLQ), string(ExchangeDLQ), false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", QueueDLQ, err)
		}

		return nil
	})
}

// EnsureTaskQueue объявляет очередь задач с привязкой к docpipe.tasks.
// Идемпотентно; используется для очередей-переопределений из TaskStep.Queue.
func EnsureTaskQueue(ctx context.Context, conn *Connection, queue string) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		return declareTaskQueue(ch, queue)
	})
}

// declareTaskQueue объявляет durable-очередь задач с DLQ и привязывает её
// к обменнику задач (routing key = имя очереди).
func declareTaskQueue(ch *amqp.Channel, queue string) error {
	args := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(QueueDLQ),
	}

	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		args,  // arguments
	); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}

	if err := ch.QueueBind(queue, queue, string(ExchangeTasks), false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", queue, err)
	}

	return nil
}
