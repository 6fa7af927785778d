// Package alerting sends operational notifications to the admin chat.
// Alerts are best-effort; a failed alert is logged and never propagated,
// since alerting must not take down the path that triggered it.
package alerting

import (
	"context"
	"log/slog"

	"rexbot/internal/messaging"
)

// Alerter fans an alert text out to every configured admin.
type Alerter struct {
	svc      messaging.Service
	adminIDs []int64
}

// New creates an alerter delivering to adminIDs through svc.
func New(svc messaging.Service, adminIDs []int64) *Alerter {
	return &Alerter{svc: svc, adminIDs: adminIDs}
}

// Alert sends text to every admin.
func (a *Alerter) Alert(ctx context.Context, text string) {
	for _, id := range a.adminIDs {
		if err := a.svc.SendText(ctx, id, text, nil); err != nil {
			slog.Error("failed to deliver alert", "error", err, "adminID", id)
		}
	}
}

// Nop is an Alerter with no recipients, for tests and tools.
func Nop() *Alerter {
	return &Alerter{}
}
