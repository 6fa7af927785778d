// Package engagement implements the retention mechanics: daily tracking
// streaks, dating interactions with mutual-match detection, and activation
// code redemption with subscription extension and credit grants.
package engagement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"rexbot/internal/metrics"
	"rexbot/internal/models"
	"rexbot/internal/store"
)

const (
	// SubscriptionExtensionDays is granted per redeemed activation code.
	SubscriptionExtensionDays = 5

	// DefaultCreditThreshold is the activation count at which exactly one
	// premium credit is granted.
	DefaultCreditThreshold = 5

	// StreakMilestone is the streak length that triggers the reward promo.
	StreakMilestone = 7
)

// Engine runs the engagement mechanics against the durable store.
type Engine struct {
	store           store.Store
	now             func() time.Time
	creditThreshold int
}

// Opts holds optional engine configuration.
type Opts struct {
	Clock           func() time.Time
	CreditThreshold int
}

// Option configures an Engine.
type Option func(*Opts)

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) { o.Clock = clock }
}

// WithCreditThreshold overrides the activation count that grants a credit.
func WithCreditThreshold(n int) Option {
	return func(o *Opts) { o.CreditThreshold = n }
}

// New creates an engagement engine on st.
func New(st store.Store, options ...Option) *Engine {
	opts := Opts{Clock: time.Now, CreditThreshold: DefaultCreditThreshold}
	for _, opt := range options {
		opt(&opts)
	}
	return &Engine{store: st, now: opts.Clock, creditThreshold: opts.CreditThreshold}
}

// TrackingResult reports a recorded daily check-in.
type TrackingResult struct {
	Streak    int
	Milestone bool
}

// RecordTracking stores today's check-in for the mode and returns the
// resulting streak. A second report for the same user, mode and day returns
// models.ErrDuplicateTracking without touching the first.
func (e *Engine) RecordTracking(ctx context.Context, userID int64, mode models.Mode, status models.TrackingStatus) (TrackingResult, error) {
	if !mode.TracksDaily() {
		return TrackingResult{}, fmt.Errorf("mode %s does not support tracking", mode)
	}
	now := e.now()
	record := models.TrackingRecord{
		UserID:    userID,
		Mode:      mode,
		Date:      now.Format(models.DateLayout),
		Status:    status,
		CreatedAt: now,
	}
	inserted, err := e.store.InsertTracking(ctx, record)
	if err != nil {
		return TrackingResult{}, fmt.Errorf("failed to record tracking: %w", err)
	}
	if !inserted {
		slog.Warn("duplicate tracking attempt", "userID", userID, "mode", mode)
		return TrackingResult{}, models.ErrDuplicateTracking
	}
	metrics.TrackingSubmissions.WithLabelValues(string(mode), string(status)).Inc()

	streak, err := e.ComputeStreak(ctx, userID, mode)
	if err != nil {
		return TrackingResult{}, err
	}
	result := TrackingResult{Streak: streak, Milestone: streak == StreakMilestone}
	if result.Milestone {
		metrics.StreakMilestones.WithLabelValues(string(mode)).Inc()
		slog.Info("streak milestone reached", "userID", userID, "mode", mode, "days", streak)
	}
	return result, nil
}

// ComputeStreak counts consecutive counting days ending today. A day counts
// when its report is success or partial; a fail report or a missing day ends
// the streak. No report today means a streak of zero.
func (e *Engine) ComputeStreak(ctx context.Context, userID int64, mode models.Mode) (int, error) {
	history, err := e.store.ListTracking(ctx, userID, mode)
	if err != nil {
		return 0, fmt.Errorf("failed to load tracking history: %w", err)
	}
	streak := 0
	checkDay := e.now()
	checkDate := checkDay.Format(models.DateLayout)
	for _, record := range history {
		if record.Date > checkDate {
			continue
		}
		if record.Date == checkDate && record.Status.CountsTowardStreak() {
			streak++
			checkDay = checkDay.AddDate(0, 0, -1)
			checkDate = checkDay.Format(models.DateLayout)
			continue
		}
		break
	}
	return streak, nil
}

// RecordInteraction stores a like or dislike from actor toward target.
// It returns true when a like completes a mutual match; both vote records
// are flipped to matched atomically. A repeat vote for the same pair returns
// models.ErrDuplicateVote.
func (e *Engine) RecordInteraction(ctx context.Context, actorID, targetID int64, action models.MatchAction) (bool, error) {
	event := models.MatchEvent{
		ActorID:   actorID,
		TargetID:  targetID,
		Action:    action,
		CreatedAt: e.now(),
	}
	inserted, err := e.store.InsertMatchEvent(ctx, event)
	if err != nil {
		return false, fmt.Errorf("failed to record interaction: %w", err)
	}
	if !inserted {
		return false, models.ErrDuplicateVote
	}
	if action != models.ActionLike {
		return false, nil
	}
	reverse, err := e.store.GetMatchEvent(ctx, targetID, actorID)
	if err != nil {
		return false, fmt.Errorf("failed to check reciprocal vote: %w", err)
	}
	if reverse == nil || reverse.Action != models.ActionLike {
		return false, nil
	}
	if err := e.store.MarkMutualMatch(ctx, actorID, targetID); err != nil {
		return false, fmt.Errorf("failed to mark mutual match: %w", err)
	}
	slog.Info("mutual match", "actorID", actorID, "targetID", targetID)
	return true, nil
}

// RedemptionResult reports a successful activation code redemption.
type RedemptionResult struct {
	ExpiresAt       time.Time
	ActivationCount int
	CreditGranted   bool
}

// RedeemActivationCode redeems the code identified by codeHash for user.
// The subscription is extended by SubscriptionExtensionDays from the later
// of now and the current expiry. Exactly one credit is granted when the
// redemption brings the user's activation count to the threshold.
func (e *Engine) RedeemActivationCode(ctx context.Context, user *models.User, codeHash string) (RedemptionResult, error) {
	code, err := e.store.GetActivationCode(ctx, codeHash)
	if err != nil {
		return RedemptionResult{}, fmt.Errorf("failed to look up activation code: %w", err)
	}
	if code == nil {
		return RedemptionResult{}, models.ErrCodeNotFound
	}
	if !code.IsActive {
		return RedemptionResult{}, models.ErrCodeInactive
	}
	if code.ActivatedAt != nil {
		if code.ActivatedBy == user.ID {
			return RedemptionResult{}, models.ErrCodeUsedBySelf
		}
		return RedemptionResult{}, models.ErrCodeUsedByOther
	}

	now := e.now()
	code.ActivatedAt = &now
	code.ActivatedBy = user.ID

	user.ActivationCount++
	base := now
	if user.SubscriptionExpiresAt != nil && user.SubscriptionExpiresAt.After(now) {
		base = *user.SubscriptionExpiresAt
	}
	expires := base.AddDate(0, 0, SubscriptionExtensionDays)
	user.SubscriptionExpiresAt = &expires

	granted := user.ActivationCount == e.creditThreshold
	if granted {
		user.Credits++
	}

	if err := e.store.ApplyActivation(ctx, code, user); err != nil {
		return RedemptionResult{}, fmt.Errorf("failed to apply activation: %w", err)
	}
	slog.Info("activation code redeemed",
		"userID", user.ID, "batch", code.BatchID,
		"activations", user.ActivationCount, "creditGranted", granted)
	return RedemptionResult{
		ExpiresAt:       expires,
		ActivationCount: user.ActivationCount,
		CreditGranted:   granted,
	}, nil
}
