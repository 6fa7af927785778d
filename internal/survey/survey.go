// Package survey implements the conversational survey flow: starting a
// questionnaire for a mode, advancing through its questions, consent
// gating, and finalizing answers into queued generation work or an
// immediate result.
//
// All conversation state lives in the session store; the controller itself
// is stateless and safe for concurrent use across users. Callers serialize
// events per user.
package survey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"rexbot/internal/configcache"
	"rexbot/internal/horoscope"
	"rexbot/internal/models"
	"rexbot/internal/queue"
	"rexbot/internal/session"
	"rexbot/internal/store"
)

// OutcomeKind tells the caller how to respond to the user.
type OutcomeKind string

const (
	// OutcomeConsent asks the user to accept the data policy first.
	OutcomeConsent OutcomeKind = "consent"
	// OutcomeConsentDeclined confirms the conversation was abandoned after
	// the user declined the policy.
	OutcomeConsentDeclined OutcomeKind = "consent_declined"
	// OutcomeQuestion presents the next question.
	OutcomeQuestion OutcomeKind = "question"
	// OutcomeInvalidAnswer re-presents the current question after a
	// malformed answer. The session does not advance.
	OutcomeInvalidAnswer OutcomeKind = "invalid_answer"
	// OutcomeQueued confirms the answers were accepted and generation is
	// running in the background.
	OutcomeQueued OutcomeKind = "queued"
	// OutcomeProfileSaved confirms a dating profile was stored.
	OutcomeProfileSaved OutcomeKind = "profile_saved"
	// OutcomeHoroscope carries today's horoscope text.
	OutcomeHoroscope OutcomeKind = "horoscope"
	// OutcomeHoroscopeSeen means the user already viewed a horoscope today.
	OutcomeHoroscopeSeen OutcomeKind = "horoscope_seen"
	// OutcomeHoroscopeMissing means no horoscope is prepared for the sign
	// yet.
	OutcomeHoroscopeMissing OutcomeKind = "horoscope_missing"
)

// Outcome is the controller's answer to one user event.
type Outcome struct {
	Kind     OutcomeKind
	Question *models.Question
	// Step and Total render "question N of M" for question outcomes;
	// Step is 1-based.
	Step  int
	Total int
	Text  string
	Sign  string
}

// Answer is one user reply, either text or an uploaded photo.
type Answer struct {
	Text    string
	PhotoID string
}

// Controller drives survey conversations.
type Controller struct {
	sessions session.Store
	store    store.Store
	cache    configcache.Cache
	queue    queue.Queue
	ttl      time.Duration
	now      func() time.Time
	newID    func() string
}

// Opts holds optional controller configuration.
type Opts struct {
	TTL   time.Duration
	Clock func() time.Time
	NewID func() string
}

// Option configures a Controller.
type Option func(*Opts)

// WithTTL overrides the session time-to-live.
func WithTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.TTL = ttl }
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) { o.Clock = clock }
}

// New creates a survey controller.
func New(sessions session.Store, st store.Store, cache configcache.Cache, q queue.Queue, options ...Option) *Controller {
	opts := Opts{TTL: session.DefaultTTL, Clock: time.Now, NewID: uuid.NewString}
	for _, opt := range options {
		opt(&opts)
	}
	return &Controller{
		sessions: sessions,
		store:    st,
		cache:    cache,
		queue:    q,
		ttl:      opts.TTL,
		now:      opts.Clock,
		newID:    opts.NewID,
	}
}

// Start begins a survey for the mode. Any previous conversation is replaced.
func (c *Controller) Start(ctx context.Context, user *models.User, mode models.Mode) (Outcome, error) {
	def, err := c.cache.GetSurveyDefinition(ctx, mode)
	if err != nil {
		return Outcome{}, err
	}
	if def == nil {
		return Outcome{}, models.ErrConfigurationMissing
	}
	now := c.now()
	sess := &models.ConversationSession{
		UserID:         user.ID,
		Mode:           mode,
		State:          models.SessionAwaitingAnswer,
		Step:           0,
		Answers:        make(map[string]string),
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if err := c.sessions.Put(ctx, sess, c.ttl); err != nil {
		return Outcome{}, err
	}
	slog.Info("survey started", "userID", user.ID, "mode", mode)
	return Outcome{Kind: OutcomeQuestion, Question: &def.Questions[0], Step: 1, Total: len(def.Questions)}, nil
}

// ConfirmConsent resolves a pending consent prompt after the final answer.
// Accepting records the consent durably and finalizes the conversation;
// declining abandons it.
func (c *Controller) ConfirmConsent(ctx context.Context, user *models.User, accepted bool) (Outcome, error) {
	sess, err := c.sessions.Get(ctx, user.ID)
	if err != nil {
		return Outcome{}, err
	}
	if sess == nil {
		return Outcome{}, models.ErrNoActiveSession
	}
	if sess.State != models.SessionAwaitingConsent {
		return Outcome{}, models.ErrInvalidConsentState
	}
	if !accepted {
		if err := c.sessions.Delete(ctx, user.ID); err != nil {
			return Outcome{}, err
		}
		slog.Info("consent declined", "userID", user.ID)
		return Outcome{Kind: OutcomeConsentDeclined}, nil
	}
	if err := c.store.SetConsent(ctx, user.ID); err != nil {
		return Outcome{}, fmt.Errorf("failed to record consent: %w", err)
	}
	user.HasAcceptedPolicy = true
	return c.finalize(ctx, user, sess)
}

// SubmitAnswer records the user's reply to the current question. A valid
// answer advances the conversation; answering the last question finalizes
// it. A malformed answer leaves the session unchanged and re-presents the
// question.
func (c *Controller) SubmitAnswer(ctx context.Context, user *models.User, answer Answer) (Outcome, error) {
	sess, err := c.sessions.Get(ctx, user.ID)
	if err != nil {
		return Outcome{}, err
	}
	if sess == nil {
		return Outcome{}, models.ErrNoActiveSession
	}
	if sess.State == models.SessionAwaitingConsent {
		return Outcome{}, models.ErrInvalidConsentState
	}
	def, err := c.cache.GetSurveyDefinition(ctx, sess.Mode)
	if err != nil {
		return Outcome{}, err
	}
	if def == nil {
		return Outcome{}, models.ErrConfigurationMissing
	}
	// Config may have shrunk since the session started.
	if sess.Step >= len(def.Questions) {
		return c.completeAnswers(ctx, user, sess)
	}
	q := def.Questions[sess.Step]

	value, err := validateAnswer(q, answer)
	if err != nil {
		if errors.Is(err, models.ErrInvalidAnswerFormat) {
			slog.Debug("invalid answer", "userID", user.ID, "mode", sess.Mode, "key", q.Key)
			return Outcome{Kind: OutcomeInvalidAnswer, Question: &q, Step: sess.Step + 1, Total: len(def.Questions)}, nil
		}
		return Outcome{}, err
	}
	sess.Answers[q.Key] = value
	sess.Step++
	sess.Touch(c.now())

	if sess.Step < len(def.Questions) {
		if err := c.sessions.Put(ctx, sess, c.ttl); err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: OutcomeQuestion, Question: &def.Questions[sess.Step], Step: sess.Step + 1, Total: len(def.Questions)}, nil
	}
	return c.completeAnswers(ctx, user, sess)
}

// completeAnswers runs after the last question. Returning users finalize
// immediately; first-time users owe a consent decision before any durable
// side effect happens.
func (c *Controller) completeAnswers(ctx context.Context, user *models.User, sess *models.ConversationSession) (Outcome, error) {
	if user.HasAcceptedPolicy {
		return c.finalize(ctx, user, sess)
	}
	sess.State = models.SessionAwaitingConsent
	sess.Touch(c.now())
	if err := c.sessions.Put(ctx, sess, c.ttl); err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: OutcomeConsent}, nil
}

// Cancel abandons the user's conversation, if any.
func (c *Controller) Cancel(ctx context.Context, userID int64) error {
	return c.sessions.Delete(ctx, userID)
}

func validateAnswer(q models.Question, a Answer) (string, error) {
	switch q.Kind {
	case models.QuestionPhoto:
		if a.PhotoID == "" {
			return "", models.ErrInvalidAnswerFormat
		}
		return a.PhotoID, nil
	case models.QuestionChoice:
		for _, opt := range q.Options {
			if a.Text == opt {
				return a.Text, nil
			}
		}
		return "", models.ErrInvalidAnswerFormat
	default:
		if a.Text == "" {
			return "", models.ErrInvalidAnswerFormat
		}
		if q.Key == models.KeyBirthDate {
			if _, err := time.Parse(models.BirthDateLayout, a.Text); err != nil {
				return "", models.ErrInvalidAnswerFormat
			}
		}
		return a.Text, nil
	}
}

// finalize persists the completed answers and routes them: content modes
// enqueue background generation, dating stores the profile for the daily
// matching round, horoscope answers synchronously from the pre-generated
// cache.
func (c *Controller) finalize(ctx context.Context, user *models.User, sess *models.ConversationSession) (outcome Outcome, err error) {
	// Premium-gated modes consume a credit before any work is queued. On
	// failure the session survives so the user can retry after topping up.
	if sess.Mode.CreditGated() {
		if user.Credits < 1 {
			return Outcome{}, models.ErrInsufficientCredits
		}
		user.Credits--
		if err := c.store.UpdateUser(ctx, user); err != nil {
			user.Credits++
			return Outcome{}, fmt.Errorf("failed to spend credit: %w", err)
		}
		// A finalization that surfaces an error restores the spent credit,
		// so the retry is not charged a second time.
		defer func() {
			if err == nil {
				return
			}
			user.Credits++
			if rerr := c.store.UpdateUser(ctx, user); rerr != nil {
				user.Credits--
				slog.Error("failed to restore credit after failed finalization", "error", rerr, "userID", user.ID)
			}
		}()
	}

	sub := &models.Submission{
		ID:        c.newID(),
		UserID:    user.ID,
		Mode:      sess.Mode,
		Answers:   sess.Answers,
		CreatedAt: c.now(),
	}
	if err := c.store.CreateSubmission(ctx, sub); err != nil {
		return Outcome{}, fmt.Errorf("failed to store submission: %w", err)
	}

	switch {
	case sess.Mode.GeneratesContent():
		task := models.GenerationTask{
			TaskID:       c.newID(),
			UserID:       user.ID,
			Mode:         sess.Mode,
			Answers:      sess.Answers,
			SubmissionID: sub.ID,
		}
		if err := c.queue.Publish(ctx, models.ChannelGeneration, task); err != nil {
			return Outcome{}, fmt.Errorf("failed to enqueue generation: %w", err)
		}
		outcome = Outcome{Kind: OutcomeQueued}
	case sess.Mode == models.ModeDating:
		outcome = Outcome{Kind: OutcomeProfileSaved}
	default:
		outcome, err = c.horoscopeOutcome(ctx, user, sess)
		if err != nil {
			return Outcome{}, err
		}
	}

	// The session is destroyed only after the side effects above landed, so
	// a transient failure leaves the conversation resumable.
	if err := c.sessions.Delete(ctx, user.ID); err != nil {
		return Outcome{}, err
	}
	slog.Info("survey completed", "userID", user.ID, "mode", sess.Mode, "submissionID", sub.ID)
	return outcome, nil
}

func (c *Controller) horoscopeOutcome(ctx context.Context, user *models.User, sess *models.ConversationSession) (Outcome, error) {
	birth, err := time.Parse(models.BirthDateLayout, sess.Answers[models.KeyBirthDate])
	if err != nil {
		return Outcome{}, fmt.Errorf("birth date missing from answers: %w", err)
	}
	sign := horoscope.Sign(birth)

	today := c.now().Format(models.DateLayout)
	first, err := c.cache.MarkHoroscopeViewed(ctx, user.ID, today)
	if err != nil {
		return Outcome{}, err
	}
	if !first {
		return Outcome{Kind: OutcomeHoroscopeSeen, Sign: sign}, nil
	}
	text, err := c.cache.GetHoroscope(ctx, sign)
	if err != nil {
		return Outcome{}, err
	}
	if text == "" {
		return Outcome{Kind: OutcomeHoroscopeMissing, Sign: sign}, nil
	}
	return Outcome{Kind: OutcomeHoroscope, Sign: sign, Text: text}, nil
}
