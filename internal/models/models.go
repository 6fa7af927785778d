// Package models defines the core data structures for rexbot.
//
// It includes the user and engagement entities, survey definitions, queued
// task payloads, and the sentinel errors shared across modules.
package models

import (
	"errors"
	"time"
)

// Mode identifies a product mode (one survey flow and its downstream handling).
type Mode string

const (
	// ModeDiet is the nutrition-plan survey with daily tracking support.
	ModeDiet Mode = "diet"
	// ModeTrainer is the workout-plan survey with daily tracking support.
	ModeTrainer Mode = "trainer"
	// ModeDating is the peer-matching profile survey.
	ModeDating Mode = "dating"
	// ModeHoroscope is the daily horoscope survey (birth date only).
	ModeHoroscope Mode = "horoscope"
	// ModeNatalChart is the credit-gated natal chart survey.
	ModeNatalChart Mode = "natal_chart"
)

// IsValidMode checks if the given mode is supported.
func IsValidMode(m Mode) bool {
	switch m {
	case ModeDiet, ModeTrainer, ModeDating, ModeHoroscope, ModeNatalChart:
		return true
	default:
		return false
	}
}

// GeneratesContent reports whether completing a survey in this mode enqueues
// a generation task (as opposed to a static confirmation).
func (m Mode) GeneratesContent() bool {
	switch m {
	case ModeDiet, ModeTrainer, ModeNatalChart:
		return true
	default:
		return false
	}
}

// CreditGated reports whether finalizing a survey in this mode consumes one
// credit from the user's balance.
func (m Mode) CreditGated() bool {
	return m == ModeNatalChart
}

// TracksDaily reports whether this mode participates in daily habit tracking.
func (m Mode) TracksDaily() bool {
	return m == ModeDiet || m == ModeTrainer
}

// Validation errors surfaced to callers of the survey controller and
// engagement engine. These are the user-actionable failure cases; transient
// infrastructure errors are wrapped with fmt.Errorf instead.
var (
	ErrConfigurationMissing = errors.New("no survey definition configured for mode")
	ErrNoActiveSession      = errors.New("no active conversation session")
	ErrInvalidAnswerFormat  = errors.New("answer does not match the expected format")
	ErrInvalidConsentState  = errors.New("consent is not being awaited")
	ErrInsufficientCredits  = errors.New("credit balance is zero")
	ErrDuplicateTracking    = errors.New("tracking already recorded for this day")
	ErrDuplicateVote        = errors.New("interaction already recorded for this pair")
	ErrCodeNotFound         = errors.New("activation code not found")
	ErrCodeInactive         = errors.New("activation code is deactivated")
	ErrCodeUsedBySelf       = errors.New("activation code already redeemed by this user")
	ErrCodeUsedByOther      = errors.New("activation code already redeemed by another user")
	ErrSubmissionNotFound   = errors.New("submission not found")
	ErrUserNotFound         = errors.New("user not found")
)

// QuestionKind defines how a survey answer is collected and validated.
type QuestionKind string

const (
	// QuestionText expects a non-empty free-text answer.
	QuestionText QuestionKind = "text"
	// QuestionPhoto expects a photo upload; the answer is the platform file id.
	QuestionPhoto QuestionKind = "photo"
	// QuestionChoice expects one of the listed options, rendered as buttons.
	QuestionChoice QuestionKind = "choice"
)

// KeyBirthDate is the answer key validated as a calendar date.
const KeyBirthDate = "birth_date"

// BirthDateLayout is the fixed input format for birth dates (DD.MM.YYYY).
const BirthDateLayout = "02.01.2006"

// Question is a single step of a survey definition.
type Question struct {
	Key     string       `json:"key"`
	Kind    QuestionKind `json:"type"`
	Prompt  string       `json:"text"`
	Options []string     `json:"options,omitempty"`
}

// SurveyDefinition is the immutable, externally configured list of questions
// for one mode. Owned by the config-sync collaborator.
type SurveyDefinition struct {
	Mode      Mode       `json:"mode"`
	Questions []Question `json:"questions"`
}

// Validate ensures a survey definition is usable by the flow controller.
func (d *SurveyDefinition) Validate() error {
	if !IsValidMode(d.Mode) {
		return errors.New("survey definition has invalid mode")
	}
	if len(d.Questions) == 0 {
		return errors.New("survey definition has no questions")
	}
	for _, q := range d.Questions {
		if q.Key == "" || q.Prompt == "" {
			return errors.New("survey question missing key or prompt")
		}
		if q.Kind == QuestionChoice && len(q.Options) == 0 {
			return errors.New("choice question has no options")
		}
	}
	return nil
}

// User is the durable user record. The credit ledger fields (ActivationCount,
// Credits, SubscriptionExpiresAt) are mutated only by activation-code
// redemption and by credit-gated survey finalization.
type User struct {
	ID                    int64      `json:"id"`
	Username              string     `json:"username,omitempty"`
	FullName              string     `json:"full_name,omitempty"`
	Role                  string     `json:"role"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty"`
	ActivationCount       int        `json:"activation_count"`
	Credits               int        `json:"credits"`
	HasAcceptedPolicy     bool       `json:"has_accepted_policy"`
	DietTracking          bool       `json:"diet_tracking"`
	TrainerTracking       bool       `json:"trainer_tracking"`
	CreatedAt             time.Time  `json:"created_at"`
}

// SubscriptionActive reports whether the user's subscription has not expired.
func (u *User) SubscriptionActive(now time.Time) bool {
	return u.SubscriptionExpiresAt != nil && u.SubscriptionExpiresAt.After(now)
}

// TrackingEnabled reports whether daily tracking is on for the given mode.
func (u *User) TrackingEnabled(mode Mode) bool {
	switch mode {
	case ModeDiet:
		return u.DietTracking
	case ModeTrainer:
		return u.TrainerTracking
	default:
		return false
	}
}

// ActivationCode is a scannable one-time code granting subscription time.
type ActivationCode struct {
	CodeHash    string     `json:"code_hash"`
	BatchID     string     `json:"batch_id"`
	IsActive    bool       `json:"is_active"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
	ActivatedBy int64      `json:"activated_by,omitempty"` // 0 when unredeemed
	CreatedAt   time.Time  `json:"created_at"`
}

// Submission is the durable record of one completed survey. GeneratedResult
// is attached exactly once by the generation worker; records are never
// deleted.
type Submission struct {
	ID              string            `json:"id"`
	UserID          int64             `json:"user_id"`
	Mode            Mode              `json:"mode"`
	Answers         map[string]string `json:"answers"`
	GeneratedResult string            `json:"generated_result,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// TrackingStatus is the outcome a user reports for one tracked day.
type TrackingStatus string

const (
	TrackingSuccess TrackingStatus = "success"
	TrackingPartial TrackingStatus = "partial"
	TrackingFail    TrackingStatus = "fail"
)

// IsValidTrackingStatus checks if the given status is supported.
func IsValidTrackingStatus(s TrackingStatus) bool {
	switch s {
	case TrackingSuccess, TrackingPartial, TrackingFail:
		return true
	default:
		return false
	}
}

// CountsTowardStreak reports whether this status keeps a streak alive.
func (s TrackingStatus) CountsTowardStreak() bool {
	return s == TrackingSuccess || s == TrackingPartial
}

// DateLayout is the canonical civil-date encoding for tracking records.
const DateLayout = "2006-01-02"

// TrackingRecord is one per (user, mode, date); uniqueness is enforced at
// write time by the store. Append-only.
type TrackingRecord struct {
	UserID    int64          `json:"user_id"`
	Mode      Mode           `json:"mode"`
	Date      string         `json:"date"` // DateLayout
	Status    TrackingStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

// MatchAction is a directional vote on another user's profile.
type MatchAction string

const (
	ActionLike    MatchAction = "like"
	ActionDislike MatchAction = "dislike"
)

// MatchEvent is unique per (actor, target) ordered pair. IsMatch is flipped
// to true on both directional records when reciprocity is detected; events
// are never deleted.
type MatchEvent struct {
	ActorID   int64       `json:"actor_id"`
	TargetID  int64       `json:"target_id"`
	Action    MatchAction `json:"action"`
	IsMatch   bool        `json:"is_match"`
	CreatedAt time.Time   `json:"created_at"`
}

// AdminStats is the aggregate snapshot served on the ops API.
type AdminStats struct {
	TotalUsers          int `json:"total_users"`
	ActiveSubscriptions int `json:"active_subscriptions"`
	ActivatedCodes      int `json:"activated_codes"`
	TotalCodes          int `json:"total_codes"`
	TotalSubmissions    int `json:"total_submissions"`
	MutualMatches       int `json:"mutual_matches"`
}
