package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"rexbot/internal/alerting"
	"rexbot/internal/messaging"
	"rexbot/internal/metrics"
	"rexbot/internal/models"
	"rexbot/internal/queue"
	"rexbot/internal/telegram"
)

// DeliveryPrefetch bounds in-flight sends toward the chat platform.
const DeliveryPrefetch = 10

// DeliveryWorker consumes DeliveryTasks and sends them to users.
//
// Policy per task: success acknowledges; a rate-limit signal requeues with
// the platform's own cool-down; every other failure is terminal for the
// task and acknowledged after alerting, so one undeliverable recipient
// cannot block the channel.
type DeliveryWorker struct {
	queue   queue.Queue
	svc     messaging.Service
	alerter *alerting.Alerter
}

// NewDeliveryWorker wires a delivery worker.
func NewDeliveryWorker(q queue.Queue, svc messaging.Service, alerter *alerting.Alerter) *DeliveryWorker {
	return &DeliveryWorker{queue: q, svc: svc, alerter: alerter}
}

// Run consumes the delivery channel until ctx is canceled.
func (w *DeliveryWorker) Run(ctx context.Context) error {
	return w.queue.Consume(ctx, models.ChannelDelivery, DeliveryPrefetch, w.Handle)
}

// Handle processes one delivery.
func (w *DeliveryWorker) Handle(ctx context.Context, d queue.Delivery) {
	var task models.DeliveryTask
	if err := json.Unmarshal(d.Body, &task); err != nil {
		slog.Error("delivery task malformed, dropping", "error", err)
		if ackErr := d.Ack(); ackErr != nil {
			slog.Error("delivery ack failed", "error", ackErr)
		}
		return
	}
	log := slog.With("taskID", task.TaskID, "userID", task.UserID)

	var err error
	if task.PhotoID != "" {
		err = w.svc.SendPhoto(ctx, task.UserID, task.PhotoID, task.Text, task.Keyboard)
	} else {
		err = w.svc.SendText(ctx, task.UserID, task.Text, task.Keyboard)
	}

	var rateLimit *telegram.RateLimitError
	switch {
	case err == nil:
		metrics.MessagesSent.WithLabelValues("success").Inc()
		log.Info("message delivered")
		if ackErr := d.Ack(); ackErr != nil {
			log.Error("delivery ack failed", "error", ackErr)
		}
	case errors.As(err, &rateLimit):
		// Platform backpressure. The task goes back unharmed and this
		// consumer slot stays occupied for the cool-down, throttling sends.
		metrics.MessagesSent.WithLabelValues("rate_limit").Inc()
		log.Warn("rate limited", "retryAfter", rateLimit.RetryAfter)
		if nackErr := d.NackWithDelay(rateLimit.RetryAfter); nackErr != nil {
			log.Error("delivery requeue failed", "error", nackErr)
		}
	default:
		metrics.MessagesSent.WithLabelValues("failed").Inc()
		metrics.SystemErrors.WithLabelValues("sender", "send").Inc()
		log.Error("delivery failed permanently, dropping", "error", err)
		w.alerter.Alert(ctx, fmt.Sprintf("🔥 Delivery to user %d failed: %v", task.UserID, err))
		if ackErr := d.Ack(); ackErr != nil {
			log.Error("delivery ack failed", "error", ackErr)
		}
	}
}
