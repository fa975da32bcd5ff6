package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Docpipe/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeTaskDispatch MessageType = "task.dispatch"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// TaskDispatchPayload — payload для отправки шага воркеру.
type TaskDispatchPayload struct {
	// TaskID — идентификатор шага в определении pipeline.
	TaskID string `json:"task_id"`

	// Queue — очередь, в которую отправлен шаг. Дублируется в payload
	// для диагностики: из DLQ видно, откуда сообщение пришло.
	Queue string `json:"queue"`

	Params *domain.TaskParameters `json:"params"`
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey string, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange), // exchange
			routingKey,       // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// EnqueueTask отправляет шаг в очередь задач (routing key = имя очереди).
// Потребитель: Worker. Отправка fire-and-forget: подтверждения выполнения
// публикатор не ждёт.
func (p *Publisher) EnqueueTask(ctx context.Context, params *domain.TaskParameters, queue string) error {
	msg := &Message{
		ID:   uuid.New().String(),
		Type: MessageTypeTaskDispatch,
		Payload: TaskDispatchPayload{
			TaskID: params.TaskConfig.ID,
			Queue:  queue,
			Params: params,
		},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeTasks, queue, msg)
}
