package matching

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"rexbot/internal/models"
	"rexbot/internal/queue"
	"rexbot/internal/store"
)

func addProfile(t *testing.T, st *store.InMemoryStore, id string, userID int64, answers map[string]string) {
	t.Helper()
	err := st.CreateSubmission(context.Background(), &models.Submission{
		ID: id, UserID: userID, Mode: models.ModeDating, Answers: answers, CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateSubmission(%s): %v", id, err)
	}
}

func drainCards(t *testing.T, q *queue.MemoryQueue) map[int64]models.DeliveryTask {
	t.Helper()
	cards := make(map[int64]models.DeliveryTask)
	for _, body := range q.Drain(models.ChannelDelivery) {
		var task models.DeliveryTask
		if err := json.Unmarshal(body, &task); err != nil {
			t.Fatalf("unmarshal card: %v", err)
		}
		cards[task.UserID] = task
	}
	return cards
}

func TestRunDailyRound(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	q := queue.NewMemoryQueue()
	svc := New(st, q)

	addProfile(t, st, "p1-old", 1, map[string]string{"name": "Старая анкета"})
	addProfile(t, st, "p1", 1, map[string]string{"name": "Анна", "age": "25", "city": "Москва"})
	addProfile(t, st, "p2", 2, map[string]string{"name": "Борис", "age": "30"})
	addProfile(t, st, "p3", 3, map[string]string{"name": "Вера", "age": "28", "photo": "file-3"})

	// User 1 already saw user 2.
	if _, err := st.InsertMatchEvent(ctx, models.MatchEvent{ActorID: 1, TargetID: 2, Action: models.ActionDislike}); err != nil {
		t.Fatalf("InsertMatchEvent: %v", err)
	}

	if err := svc.RunDailyRound(ctx); err != nil {
		t.Fatalf("RunDailyRound: %v", err)
	}
	cards := drainCards(t, q)
	if len(cards) != 3 {
		t.Fatalf("cards = %d, want one per profile", len(cards))
	}

	// User 1 skips the seen candidate and gets user 3, photo included.
	card := cards[1]
	if !strings.Contains(card.Text, "Вера") {
		t.Fatalf("card for user 1 = %q, want Вера", card.Text)
	}
	if card.Keyboard.InlineKeyboard[0][0].CallbackData != "like_3" {
		t.Fatalf("vote keyboard = %+v, want like_3", card.Keyboard)
	}
	if card.PhotoID != "file-3" {
		t.Fatalf("card photo = %q, want the candidate's photo", card.PhotoID)
	}

	// The superseded profile of user 1 is never served.
	for _, card := range cards {
		if strings.Contains(card.Text, "Старая анкета") {
			t.Fatalf("stale profile served: %q", card.Text)
		}
	}
}

func TestRunDailyRoundExhaustedCandidates(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	q := queue.NewMemoryQueue()
	svc := New(st, q)

	addProfile(t, st, "p1", 1, map[string]string{"name": "Анна"})
	addProfile(t, st, "p2", 2, map[string]string{"name": "Борис"})
	if _, err := st.InsertMatchEvent(ctx, models.MatchEvent{ActorID: 1, TargetID: 2, Action: models.ActionLike}); err != nil {
		t.Fatalf("InsertMatchEvent: %v", err)
	}

	if err := svc.RunDailyRound(ctx); err != nil {
		t.Fatalf("RunDailyRound: %v", err)
	}
	cards := drainCards(t, q)
	// User 1 has seen everyone; only user 2 gets a card.
	if len(cards) != 1 || cards[2].TaskID == "" {
		t.Fatalf("cards = %+v, want only user 2", cards)
	}
}

func TestCandidateCard(t *testing.T) {
	full := CandidateCard(&models.Submission{Answers: map[string]string{
		"name": "Анна", "age": "25", "city": "Москва", "about": "Люблю горы",
	}})
	for _, part := range []string{"Анна, 25", "📍 Москва", "ℹ️ Люблю горы"} {
		if !strings.Contains(full, part) {
			t.Errorf("card %q missing %q", full, part)
		}
	}

	sparse := CandidateCard(&models.Submission{Answers: map[string]string{}})
	if !strings.Contains(sparse, "Аноним, ??") {
		t.Errorf("sparse card = %q, want placeholders", sparse)
	}
	if strings.Contains(sparse, "📍") || strings.Contains(sparse, "ℹ️") {
		t.Errorf("sparse card = %q, want no empty sections", sparse)
	}
}
