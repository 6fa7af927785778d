// Package queue provides the durable task queue used between the bot,
// the generation worker and the delivery worker.
//
// Delivery is at-least-once: a task is removed only after the consumer
// acknowledges it, so consumers must tolerate redelivery. Per-channel FIFO
// holds for a single consumer; redelivered tasks may arrive out of order.
package queue

import (
	"context"
	"time"
)

// Delivery is one consumed task. Exactly one of Ack or NackWithDelay must be
// called per delivery.
type Delivery struct {
	Body []byte

	// Ack removes the task from the queue.
	Ack func() error

	// NackWithDelay returns the task to the queue for redelivery after
	// roughly d. The task counts against the consumer's prefetch window
	// until then.
	NackWithDelay func(d time.Duration) error
}

// Handler processes one delivery.
type Handler func(ctx context.Context, d Delivery)

// Queue is the task transport contract.
type Queue interface {
	// Publish enqueues payload, JSON-encoded, onto the named channel. The
	// task survives broker restarts once Publish returns.
	Publish(ctx context.Context, channel string, payload any) error

	// Consume delivers tasks from the named channel to h, at most prefetch
	// unacknowledged at a time, until ctx is canceled. Handlers run
	// concurrently within that bound, so a task held on NackWithDelay
	// occupies one slot without stalling the rest of the window.
	Consume(ctx context.Context, channel string, prefetch int, h Handler) error

	Close() error
}
