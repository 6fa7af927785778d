package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"rexbot/internal/alerting"
	"rexbot/internal/messaging"
	"rexbot/internal/models"
	"rexbot/internal/queue"
	"rexbot/internal/telegram"
)

type deliveryFixture struct {
	worker *DeliveryWorker
	sends  *messaging.Recorder
	alerts *messaging.Recorder
}

func newDeliveryFixture(t *testing.T) *deliveryFixture {
	t.Helper()
	f := &deliveryFixture{
		sends:  messaging.NewRecorder(),
		alerts: messaging.NewRecorder(),
	}
	f.worker = NewDeliveryWorker(nil, f.sends, alerting.New(f.alerts, []int64{adminID}))
	return f
}

func TestDeliverySuccess(t *testing.T) {
	f := newDeliveryFixture(t)
	d := makeDelivery(t, models.DeliveryTask{TaskID: "d-1", UserID: 42, Text: "привет"})

	f.worker.Handle(context.Background(), d.delivery)

	if !d.acked || len(d.nacks) != 0 {
		t.Fatalf("acked = %v nacks = %v, want clean ack", d.acked, d.nacks)
	}
	last := f.sends.Last()
	if last == nil || last.UserID != 42 || last.Text != "привет" {
		t.Fatalf("sent = %+v", last)
	}
}

func TestDeliveryPhotoTask(t *testing.T) {
	f := newDeliveryFixture(t)
	d := makeDelivery(t, models.DeliveryTask{TaskID: "d-2", UserID: 42, Text: "подпись", PhotoID: "file-9"})

	f.worker.Handle(context.Background(), d.delivery)

	last := f.sends.Last()
	if last == nil || last.PhotoID != "file-9" || last.Text != "подпись" {
		t.Fatalf("sent = %+v, want photo send", last)
	}
}

func TestDeliveryRateLimitRequeuesWithCoolDown(t *testing.T) {
	f := newDeliveryFixture(t)
	f.sends.Err = &telegram.RateLimitError{RetryAfter: 30 * time.Second}
	d := makeDelivery(t, models.DeliveryTask{TaskID: "d-3", UserID: 42, Text: "привет"})

	f.worker.Handle(context.Background(), d.delivery)

	if d.acked {
		t.Fatal("rate-limited task was acked")
	}
	if len(d.nacks) != 1 || d.nacks[0] != 30*time.Second {
		t.Fatalf("nacks = %v, want one with the platform cool-down", d.nacks)
	}
	if f.alerts.Last() != nil {
		t.Fatal("rate limit raised an admin alert")
	}
}

func TestDeliveryPermanentFailureDropped(t *testing.T) {
	f := newDeliveryFixture(t)
	f.sends.Err = errors.New("chat not found")
	d := makeDelivery(t, models.DeliveryTask{TaskID: "d-4", UserID: 42, Text: "привет"})

	f.worker.Handle(context.Background(), d.delivery)

	if !d.acked || len(d.nacks) != 0 {
		t.Fatalf("acked = %v nacks = %v, want terminal ack", d.acked, d.nacks)
	}
	if last := f.alerts.Last(); last == nil || last.UserID != adminID {
		t.Fatalf("admin alert = %+v, want one", last)
	}
}

// selectiveSender fails sends per user and signals each successful one.
type selectiveSender struct {
	errFor    map[int64]error
	delivered chan int64
}

func (s *selectiveSender) SendText(ctx context.Context, userID int64, text string, keyboard *models.Keyboard) error {
	if err := s.errFor[userID]; err != nil {
		return err
	}
	s.delivered <- userID
	return nil
}

func (s *selectiveSender) SendPhoto(ctx context.Context, userID int64, photoID, caption string, keyboard *models.Keyboard) error {
	return s.SendText(ctx, userID, caption, keyboard)
}

func TestDeliveryRateLimitDoesNotStallOtherUsers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := queue.NewMemoryQueue()
	sender := &selectiveSender{
		errFor:    map[int64]error{1: &telegram.RateLimitError{RetryAfter: 30 * time.Second}},
		delivered: make(chan int64, 4),
	}
	w := NewDeliveryWorker(q, sender, alerting.New(messaging.NewRecorder(), []int64{adminID}))

	for _, userID := range []int64{1, 2} {
		task := models.DeliveryTask{TaskID: "d-9", UserID: userID, Text: "привет"}
		if err := q.Publish(ctx, models.ChannelDelivery, task); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	go func() { _ = w.Run(ctx) }()

	// User 2's send must not wait out user 1's cool-down.
	select {
	case userID := <-sender.delivered:
		if userID != 2 {
			t.Fatalf("delivered to user %d, want 2", userID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("delivery to user 2 stalled behind a rate-limited task")
	}
}

func TestDeliveryMalformedTaskDropped(t *testing.T) {
	f := newDeliveryFixture(t)
	d := rawDelivery([]byte("{broken"))

	f.worker.Handle(context.Background(), d.delivery)

	if !d.acked {
		t.Fatal("malformed task not acked")
	}
	if f.sends.Last() != nil {
		t.Fatal("malformed task reached the messaging service")
	}
}
