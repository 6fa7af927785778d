package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

type testTask struct {
	ID string `json:"id"`
}

func TestPublishAndDrain(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()

	for _, id := range []string{"a", "b"} {
		if err := q.Publish(ctx, "jobs", testTask{ID: id}); err != nil {
			t.Fatalf("Publish(%s): %v", id, err)
		}
	}

	bodies := q.Drain("jobs")
	if len(bodies) != 2 {
		t.Fatalf("drained = %d, want 2", len(bodies))
	}
	var task testTask
	if err := json.Unmarshal(bodies[0], &task); err != nil || task.ID != "a" {
		t.Fatalf("first body = %s err = %v", bodies[0], err)
	}
	if len(q.Drain("jobs")) != 0 {
		t.Fatal("second drain returned tasks")
	}
}

func TestConsumeDeliversInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewMemoryQueue()

	for _, id := range []string{"a", "b"} {
		if err := q.Publish(ctx, "jobs", testTask{ID: id}); err != nil {
			t.Fatalf("Publish(%s): %v", id, err)
		}
	}

	var got []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = q.Consume(ctx, "jobs", 1, func(ctx context.Context, d Delivery) {
			var task testTask
			if err := json.Unmarshal(d.Body, &task); err != nil {
				t.Errorf("unmarshal: %v", err)
			}
			got = append(got, task.ID)
			if err := d.Ack(); err != nil {
				t.Errorf("ack: %v", err)
			}
			if len(got) == 2 {
				cancel()
			}
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consume did not finish")
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("got = %v, want [a b]", got)
	}
}

func TestConsumeDoesNotStallBehindSlowTask(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewMemoryQueue()

	for _, id := range []string{"slow", "fast"} {
		if err := q.Publish(ctx, "jobs", testTask{ID: id}); err != nil {
			t.Fatalf("Publish(%s): %v", id, err)
		}
	}

	release := make(chan struct{})
	fastDone := make(chan struct{})
	go func() {
		_ = q.Consume(ctx, "jobs", 4, func(ctx context.Context, d Delivery) {
			var task testTask
			if err := json.Unmarshal(d.Body, &task); err != nil {
				t.Errorf("unmarshal: %v", err)
			}
			if task.ID == "slow" {
				<-release
			}
			if err := d.Ack(); err != nil {
				t.Errorf("ack: %v", err)
			}
			if task.ID == "fast" {
				close(fastDone)
			}
		})
	}()

	// The second task must complete while the first is still in flight.
	select {
	case <-fastDone:
	case <-time.After(2 * time.Second):
		t.Fatal("fast task waited for the slow one")
	}
	close(release)
}

func TestNackRedelivers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewMemoryQueue()

	if err := q.Publish(ctx, "jobs", testTask{ID: "a"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	attempts := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = q.Consume(ctx, "jobs", 1, func(ctx context.Context, d Delivery) {
			attempts++
			if attempts == 1 {
				if err := d.NackWithDelay(0); err != nil {
					t.Errorf("nack: %v", err)
				}
				return
			}
			if err := d.Ack(); err != nil {
				t.Errorf("ack: %v", err)
			}
			cancel()
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consume did not finish")
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want redelivery after nack", attempts)
	}
}
