package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryQueue is an in-process Queue for tests. Unacknowledged tasks are
// redelivered when nacked; prefetch bounds concurrent handlers as the
// broker-backed queue does.
type MemoryQueue struct {
	mu       sync.Mutex
	channels map[string]chan []byte
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{channels: make(map[string]chan []byte)}
}

func (q *MemoryQueue) channel(name string) chan []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.channels[name]
	if !ok {
		ch = make(chan []byte, 256)
		q.channels[name] = ch
	}
	return ch
}

func (q *MemoryQueue) Publish(ctx context.Context, channel string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal task for %s: %w", channel, err)
	}
	select {
	case q.channel(channel) <- body:
		return nil
	default:
		return fmt.Errorf("queue %s full", channel)
	}
}

func (q *MemoryQueue) Consume(ctx context.Context, channel string, prefetch int, h Handler) error {
	ch := q.channel(channel)
	if prefetch < 1 {
		prefetch = 1
	}
	sem := make(chan struct{}, prefetch)
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case body := <-ch:
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				select {
				case ch <- body:
				default:
				}
				return ctx.Err()
			}
			wg.Add(1)
			go func(body []byte) {
				defer wg.Done()
				defer func() { <-sem }()
				h(ctx, Delivery{
					Body: body,
					Ack:  func() error { return nil },
					NackWithDelay: func(d time.Duration) error {
						if d > 0 {
							select {
							case <-time.After(d):
							case <-ctx.Done():
							}
						}
						select {
						case ch <- body:
							return nil
						default:
							return fmt.Errorf("queue %s full", channel)
						}
					},
				})
			}(body)
		}
	}
}

// Drain returns all currently queued bodies on the channel without blocking.
func (q *MemoryQueue) Drain(channel string) [][]byte {
	ch := q.channel(channel)
	var bodies [][]byte
	for {
		select {
		case body := <-ch:
			bodies = append(bodies, body)
		default:
			return bodies
		}
	}
}

func (q *MemoryQueue) Close() error { return nil }
