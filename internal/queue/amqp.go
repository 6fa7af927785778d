package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPQueue implements Queue on an AMQP 0-9-1 broker. Queues are declared
// durable and tasks are published persistent, so acknowledged-but-unprocessed
// work survives broker restarts.
type AMQPQueue struct {
	conn    *amqp.Connection
	pubCh   *amqp.Channel
	declare map[string]bool
}

// NewAMQPQueue dials the broker and opens a publishing channel.
func NewAMQPQueue(url string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	slog.Info("connected to task broker")
	return &AMQPQueue{conn: conn, pubCh: ch, declare: make(map[string]bool)}, nil
}

func declareQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(name, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	return nil
}

// Publish enqueues payload onto channel as a persistent JSON message.
func (q *AMQPQueue) Publish(ctx context.Context, channel string, payload any) error {
	if !q.declare[channel] {
		if err := declareQueue(q.pubCh, channel); err != nil {
			return err
		}
		q.declare[channel] = true
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal task for %s: %w", channel, err)
	}
	err = q.pubCh.PublishWithContext(ctx, "", channel, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Consume opens a dedicated channel with the given prefetch and feeds
// deliveries to h, up to prefetch concurrently, until ctx is canceled.
func (q *AMQPQueue) Consume(ctx context.Context, channel string, prefetch int, h Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}
	defer ch.Close()
	if err := declareQueue(ch, channel); err != nil {
		return err
	}
	if prefetch < 1 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch on %s: %w", channel, err)
	}
	deliveries, err := ch.Consume(channel, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", channel, err)
	}
	slog.Info("consuming tasks", "channel", channel, "prefetch", prefetch)
	// Each delivery runs on its own goroutine so one slow task, a rate-limit
	// cool-down in particular, cannot stall the rest of the prefetch window.
	// The semaphore mirrors the broker-side unacked window.
	sem := make(chan struct{}, prefetch)
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("broker closed delivery stream for %s", channel)
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			wg.Add(1)
			go func(d amqp.Delivery) {
				defer wg.Done()
				defer func() { <-sem }()
				h(ctx, wrapDelivery(ctx, d))
			}(d)
		}
	}
}

// wrapDelivery exposes the broker delivery behind the transport-neutral
// Delivery. NackWithDelay holds the task unacknowledged for the delay, so
// the cool-down occupies exactly one slot of the prefetch window, then
// requeues.
func wrapDelivery(ctx context.Context, d amqp.Delivery) Delivery {
	return Delivery{
		Body: d.Body,
		Ack: func() error {
			return d.Ack(false)
		},
		NackWithDelay: func(delay time.Duration) error {
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
				}
			}
			return d.Nack(false, true)
		},
	}
}

func (q *AMQPQueue) Close() error {
	if err := q.pubCh.Close(); err != nil {
		slog.Error("failed to close publish channel", "error", err)
	}
	return q.conn.Close()
}
