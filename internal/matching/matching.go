// Package matching runs the daily dating round: each participant with a
// stored profile receives one not-yet-seen candidate card.
package matching

import (
	"context"
	"fmt"
	"log/slog"

	"rexbot/internal/models"
	"rexbot/internal/queue"
	"rexbot/internal/store"
)

// Service selects candidates and enqueues candidate cards for delivery.
type Service struct {
	store store.Store
	queue queue.Queue
}

// New creates a matching service.
func New(st store.Store, q queue.Queue) *Service {
	return &Service{store: st, queue: q}
}

// RunDailyRound picks one unseen candidate for every dating profile and
// enqueues a card. Users with no remaining candidates are skipped silently.
func (s *Service) RunDailyRound(ctx context.Context) error {
	profiles, err := s.store.ListSubmissionsByMode(ctx, models.ModeDating)
	if err != nil {
		return fmt.Errorf("failed to load dating profiles: %w", err)
	}
	// Submissions arrive newest first; keep only the latest profile per user.
	latest := make([]models.Submission, 0, len(profiles))
	seenUser := make(map[int64]bool)
	for _, p := range profiles {
		if seenUser[p.UserID] {
			continue
		}
		seenUser[p.UserID] = true
		latest = append(latest, p)
	}

	sent := 0
	for _, me := range latest {
		seen, err := s.store.SeenTargets(ctx, me.UserID)
		if err != nil {
			return fmt.Errorf("failed to load seen targets for user %d: %w", me.UserID, err)
		}
		candidate := pickCandidate(latest, me.UserID, seen)
		if candidate == nil {
			continue
		}
		task := models.DeliveryTask{
			TaskID:   fmt.Sprintf("match:%d:%d", me.UserID, candidate.UserID),
			UserID:   me.UserID,
			Text:     CandidateCard(candidate),
			PhotoID:  candidate.Answers["photo"],
			Keyboard: CandidateKeyboard(candidate.UserID),
		}
		if err := s.queue.Publish(ctx, models.ChannelDelivery, task); err != nil {
			return fmt.Errorf("failed to enqueue candidate card: %w", err)
		}
		sent++
	}
	slog.Info("daily matching round finished", "profiles", len(latest), "cardsSent", sent)
	return nil
}

func pickCandidate(profiles []models.Submission, meID int64, seen map[int64]bool) *models.Submission {
	for i := range profiles {
		c := &profiles[i]
		if c.UserID == meID || seen[c.UserID] {
			continue
		}
		return c
	}
	return nil
}

// CandidateCard renders a profile's answers as the card caption.
func CandidateCard(c *models.Submission) string {
	name := c.Answers["name"]
	if name == "" {
		name = "Аноним"
	}
	age := c.Answers["age"]
	if age == "" {
		age = "??"
	}
	card := fmt.Sprintf("💘 <b>Кандидат дня:</b>\n\n%s, %s", name, age)
	if city := c.Answers["city"]; city != "" {
		card += fmt.Sprintf("\n📍 %s", city)
	}
	if about := c.Answers["about"]; about != "" {
		card += fmt.Sprintf("\n\nℹ️ %s", about)
	}
	return card
}

// CandidateKeyboard builds the vote buttons; the target's id rides in the
// callback data.
func CandidateKeyboard(targetID int64) *models.Keyboard {
	return &models.Keyboard{InlineKeyboard: [][]models.InlineButton{{
		{Text: "❤️ Лайк", CallbackData: fmt.Sprintf("like_%d", targetID)},
		{Text: "👎 Пропустить", CallbackData: fmt.Sprintf("dislike_%d", targetID)},
	}}}
}
