// Package scheduler runs the periodic jobs on a cron timer. Every job is
// wrapped uniformly: timed, counted, panic-isolated, and alerted on failure
// without ever propagating into the scheduler loop.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"rexbot/internal/alerting"
	"rexbot/internal/metrics"
)

// Job is one periodic task body.
type Job func(ctx context.Context) error

// Scheduler owns the cron loop.
type Scheduler struct {
	cron    *cron.Cron
	alerter *alerting.Alerter
	ctx     context.Context
}

// New creates a stopped scheduler. Jobs run with ctx, so canceling it
// unblocks any in-flight job bodies.
func New(ctx context.Context, alerter *alerting.Alerter) *Scheduler {
	return &Scheduler{cron: cron.New(), alerter: alerter, ctx: ctx}
}

// Add registers a job under a standard 5-field cron spec.
func (s *Scheduler) Add(spec, id string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() { s.run(id, job) })
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", id, err)
	}
	return nil
}

// RunNow executes a job immediately through the same instrumentation, for
// startup warm-up runs.
func (s *Scheduler) RunNow(id string, job Job) {
	s.run(id, job)
}

func (s *Scheduler) run(id string, job Job) {
	start := time.Now()
	log := slog.With("job", id)
	log.Info("job started")
	defer func() {
		if r := recover(); r != nil {
			metrics.SchedulerJobsRun.WithLabelValues(id, "panic").Inc()
			log.Error("job panicked", "panic", r)
			s.alerter.Alert(s.ctx, fmt.Sprintf("🔥 Scheduled job %s panicked: %v", id, r))
		}
	}()
	if err := job(s.ctx); err != nil {
		metrics.SchedulerJobsRun.WithLabelValues(id, "failed").Inc()
		metrics.SystemErrors.WithLabelValues("scheduler", id).Inc()
		log.Error("job failed", "error", err, "duration", time.Since(start))
		s.alerter.Alert(s.ctx, fmt.Sprintf("⚠️ Scheduled job %s failed: %v", id, err))
		return
	}
	metrics.SchedulerJobsRun.WithLabelValues(id, "success").Inc()
	log.Info("job finished", "duration", time.Since(start))
}

// Start launches the cron loop.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop halts scheduling and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("scheduler stopped")
}
