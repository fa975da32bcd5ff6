package mq

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

// fakeAcknowledger записывает ack/nack решения consumer'а.
type fakeAcknowledger struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.acked = true
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

func newTestConsumer(handler Handler) *Consumer {
	return NewConsumer(nil, slog.New(slog.DiscardHandler), ConsumerConfig{
		Queue:   "tasks.default",
		Handler: handler,
	})
}

func deliveryBody(t *testing.T, msg Message) []byte {
	t.Helper()
	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	return body
}

func TestHandleDelivery_AcksOnSuccess(t *testing.T) {
	var handled bool
	consumer := newTestConsumer(func(ctx context.Context, d *Delivery) error {
		handled = true
		return nil
	})

	ack := &fakeAcknowledger{}
	consumer.handleDelivery(context.Background(), amqp.Delivery{
		Acknowledger: ack,
		Body:         deliveryBody(t, Message{ID: "m1", Type: MessageTypeTaskDispatch}),
	})

	if !handled {
		t.Error("handler not invoked")
	}
	if !ack.acked || ack.nacked {
		t.Errorf("acked=%v nacked=%v, want ack only", ack.acked, ack.nacked)
	}
}

func TestHandleDelivery_RejectsForeignMessageType(t *testing.T) {
	consumer := newTestConsumer(func(ctx context.Context, d *Delivery) error {
		t.Error("handler must not run for foreign message types")
		return nil
	})

	ack := &fakeAcknowledger{}
	consumer.handleDelivery(context.Background(), amqp.Delivery{
		Acknowledger: ack,
		Body:         deliveryBody(t, Message{ID: "m2", Type: "run.completed"}),
	})

	if !ack.nacked || ack.requeue {
		t.Errorf("nacked=%v requeue=%v, want nack without requeue", ack.nacked, ack.requeue)
	}
}

func TestHandleDelivery_MalformedBodyGoesToDLQ(t *testing.T) {
	consumer := newTestConsumer(func(ctx context.Context, d *Delivery) error {
		t.Error("handler must not run for malformed messages")
		return nil
	})

	ack := &fakeAcknowledger{}
	consumer.handleDelivery(context.Background(), amqp.Delivery{
		Acknowledger: ack,
		Body:         []byte("{not json"),
	})

	if !ack.nacked || ack.requeue {
		t.Errorf("nacked=%v requeue=%v, want nack without requeue", ack.nacked, ack.requeue)
	}
}

func TestHandleDelivery_HandlerErrorGoesToDLQ(t *testing.T) {
	consumer := newTestConsumer(func(ctx context.Context, d *Delivery) error {
		return context.DeadlineExceeded
	})

	ack := &fakeAcknowledger{}
	consumer.handleDelivery(context.Background(), amqp.Delivery{
		Acknowledger: ack,
		Body:         deliveryBody(t, Message{ID: "m3", Type: MessageTypeTaskDispatch}),
	})

	if ack.acked {
		t.Error("errored delivery must not be acked")
	}
	if !ack.nacked || ack.requeue {
		t.Errorf("nacked=%v requeue=%v, want nack without requeue", ack.nacked, ack.requeue)
	}
}
