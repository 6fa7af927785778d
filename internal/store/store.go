// Package store provides persistence backends for rexbot.
//
// It defines the Store interface consumed by the survey controller, the
// engagement engine, the workers and the scheduler, with PostgreSQL, SQLite
// and in-memory implementations. Uniqueness invariants (one tracking record
// per user/mode/date, one match event per actor/target pair) are enforced
// with atomic insert-if-absent primitives, never read-then-write.
package store

import (
	"context"
	"time"

	"rexbot/internal/models"
)

// Store is the persistence collaborator contract.
type Store interface {
	// Users. GetUser returns (nil, nil) when the user does not exist.
	GetUser(ctx context.Context, id int64) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	UpdateUser(ctx context.Context, u *models.User) error
	// SetConsent records policy consent durably; idempotent.
	SetConsent(ctx context.Context, userID int64) error
	SetTracking(ctx context.Context, userID int64, mode models.Mode, enabled bool) error
	// ListTrackingUsers returns users with an active subscription that opted
	// into daily tracking for the mode.
	ListTrackingUsers(ctx context.Context, mode models.Mode, now time.Time) ([]models.User, error)
	// ListUsersWithAnyTracking returns users with at least one tracking mode on.
	ListUsersWithAnyTracking(ctx context.Context) ([]models.User, error)

	// Activation codes.
	GetActivationCode(ctx context.Context, codeHash string) (*models.ActivationCode, error)
	CreateActivationCodes(ctx context.Context, codes []models.ActivationCode) error
	// ApplyActivation persists a redeemed code together with the updated user
	// ledger in a single transaction.
	ApplyActivation(ctx context.Context, code *models.ActivationCode, user *models.User) error

	// Submissions.
	CreateSubmission(ctx context.Context, s *models.Submission) error
	GetSubmission(ctx context.Context, id string) (*models.Submission, error)
	// AttachSubmissionResult sets the generated result exactly once.
	AttachSubmissionResult(ctx context.Context, id, result string) error
	ListSubmissionsByMode(ctx context.Context, mode models.Mode) ([]models.Submission, error)

	// Tracking. InsertTracking returns false without writing when a record
	// for (user, mode, date) already exists.
	InsertTracking(ctx context.Context, r models.TrackingRecord) (bool, error)
	// ListTracking returns the user's records for a mode in descending date order.
	ListTracking(ctx context.Context, userID int64, mode models.Mode) ([]models.TrackingRecord, error)
	// TrackingStats counts records per status for all modes since the date.
	TrackingStats(ctx context.Context, userID int64, sinceDate string) (map[models.TrackingStatus]int, error)

	// Match events. InsertMatchEvent returns false without writing when an
	// event for (actor, target) already exists.
	InsertMatchEvent(ctx context.Context, e models.MatchEvent) (bool, error)
	GetMatchEvent(ctx context.Context, actorID, targetID int64) (*models.MatchEvent, error)
	// MarkMutualMatch flips is_match on both directional records atomically.
	MarkMutualMatch(ctx context.Context, a, b int64) error
	// SeenTargets returns the set of targets the actor has already voted on.
	SeenTargets(ctx context.Context, actorID int64) (map[int64]bool, error)

	// Stats returns the aggregate snapshot for the ops API.
	Stats(ctx context.Context, now time.Time) (models.AdminStats, error)

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database connection string (Postgres URL or SQLite path).
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}
