// Package metrics defines the service's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SystemErrors counts caught errors by originating service and kind.
	SystemErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rex_system_errors_total",
		Help: "Total errors caught",
	}, []string{"service", "error_type"})

	// AITasksProcessed counts generation tasks by mode and outcome.
	AITasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rex_ai_tasks_total",
		Help: "Total AI generation tasks processed",
	}, []string{"mode", "status"})

	// AITaskDuration observes end-to-end generation time per mode.
	AITaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "rex_ai_duration_seconds",
		Help: "Time spent generating an AI response",
	}, []string{"mode"})

	// MessagesSent counts outbound messages by status: success, failed,
	// rate_limit.
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rex_messages_sent_total",
		Help: "Total messages sent to the chat platform",
	}, []string{"status"})

	// BotUpdates counts inbound events by type: message, callback.
	BotUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rex_bot_updates_total",
		Help: "Total updates received from the chat platform",
	}, []string{"type"})

	// ActiveUsers gauges events currently being processed.
	ActiveUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rex_active_users_now",
		Help: "Events currently in flight",
	})

	// SchedulerJobsRun counts cron job executions by job and outcome.
	SchedulerJobsRun = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rex_scheduler_jobs_total",
		Help: "Total cron jobs executed",
	}, []string{"job_id", "status"})

	// TrackingSubmissions counts daily check-in reports by mode and status.
	TrackingSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rex_tracking_submissions_total",
		Help: "Total daily tracking reports recorded",
	}, []string{"mode", "status"})

	// StreakMilestones counts streak milestones reached.
	StreakMilestones = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rex_streak_milestones_total",
		Help: "Total streak milestones reached",
	}, []string{"mode"})
)
