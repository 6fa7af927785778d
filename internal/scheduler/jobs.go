package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"rexbot/internal/configcache"
	"rexbot/internal/genai"
	"rexbot/internal/horoscope"
	"rexbot/internal/matching"
	"rexbot/internal/models"
	"rexbot/internal/queue"
	"rexbot/internal/store"
)

// defaultHoroscopePrompt is used when no horoscope template is configured.
const defaultHoroscopePrompt = "Ты астролог. Составь краткий гороскоп на сегодня для знака {sign}."

// Jobs bundles the periodic job bodies with their collaborators.
type Jobs struct {
	Store    store.Store
	Queue    queue.Queue
	Cache    configcache.Cache
	Syncer   *configcache.Syncer
	Gen      genai.Generator
	Matching *matching.Service
	Now      func() time.Time
}

// Register wires every periodic job into the scheduler.
func (j *Jobs) Register(s *Scheduler) error {
	specs := []struct {
		spec, id string
		job      Job
	}{
		{"*/10 * * * *", "config_refresh", j.RefreshConfig},
		{"0 8 * * *", "horoscopes", j.GenerateDailyHoroscopes},
		{"0 12 * * *", "dating", j.DailyMatching},
		{"0 20 * * *", "diet_checkin", j.DietCheckin},
		{"1 20 * * *", "trainer_checkin", j.TrainerCheckin},
		{"0 21 * * 0", "weekly_report", j.WeeklyReport},
	}
	for _, entry := range specs {
		if err := s.Add(entry.spec, entry.id, entry.job); err != nil {
			return err
		}
	}
	return nil
}

func (j *Jobs) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}

// RefreshConfig pulls survey definitions and prompt templates from the
// external source.
func (j *Jobs) RefreshConfig(ctx context.Context) error {
	return j.Syncer.Refresh(ctx)
}

// GenerateDailyHoroscopes produces and caches today's horoscope for every
// sign. One failing sign does not abort the rest.
func (j *Jobs) GenerateDailyHoroscopes(ctx context.Context) error {
	template, err := j.Cache.GetPromptTemplate(ctx, models.ModeHoroscope)
	if err != nil {
		return err
	}
	if template == "" {
		template = defaultHoroscopePrompt
	}
	var failed []string
	for _, sign := range horoscope.Signs {
		system := strings.ReplaceAll(template, "{sign}", horoscope.DisplayNames[sign])
		text, err := j.Gen.Generate(ctx, system, "Гороскоп на сегодня.")
		if err != nil {
			slog.Error("horoscope generation failed", "sign", sign, "error", err)
			failed = append(failed, sign)
			continue
		}
		if err := j.Cache.SetHoroscope(ctx, sign, text); err != nil {
			slog.Error("horoscope cache write failed", "sign", sign, "error", err)
			failed = append(failed, sign)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("horoscopes failed for signs: %s", strings.Join(failed, ", "))
	}
	return nil
}

// DailyMatching runs the dating round.
func (j *Jobs) DailyMatching(ctx context.Context) error {
	return j.Matching.RunDailyRound(ctx)
}

// DietCheckin broadcasts the evening nutrition check-in to subscribed users.
func (j *Jobs) DietCheckin(ctx context.Context) error {
	return j.broadcastCheckin(ctx, models.ModeDiet,
		"🌙 Привет! Как прошел день? Удалось придерживаться плана ПИТАНИЯ?",
		[]models.InlineButton{
			{Text: "✅ Всё по плану", CallbackData: "track_diet_success"},
			{Text: "⚠️ Частично", CallbackData: "track_diet_partial"},
			{Text: "❌ Не получилось", CallbackData: "track_diet_fail"},
		})
}

// TrainerCheckin broadcasts the evening workout check-in to subscribed users.
func (j *Jobs) TrainerCheckin(ctx context.Context) error {
	return j.broadcastCheckin(ctx, models.ModeTrainer,
		"🌙 Как успехи с ТРЕНИРОВКАМИ сегодня?",
		[]models.InlineButton{
			{Text: "✅ Тренировка была!", CallbackData: "track_trainer_success"},
			{Text: "⚠️ Частично", CallbackData: "track_trainer_partial"},
			{Text: "❌ Пропустил(а)", CallbackData: "track_trainer_fail"},
		})
}

// broadcastCheckin is a pure producer: it enqueues one DeliveryTask per
// eligible user and never waits for delivery.
func (j *Jobs) broadcastCheckin(ctx context.Context, mode models.Mode, text string, buttons []models.InlineButton) error {
	users, err := j.Store.ListTrackingUsers(ctx, mode, j.now())
	if err != nil {
		return fmt.Errorf("failed to list %s tracking users: %w", mode, err)
	}
	keyboard := &models.Keyboard{InlineKeyboard: [][]models.InlineButton{buttons}}
	for _, u := range users {
		task := models.DeliveryTask{
			TaskID:   fmt.Sprintf("checkin:%s:%d:%s", mode, u.ID, j.now().Format(models.DateLayout)),
			UserID:   u.ID,
			Text:     text,
			Keyboard: keyboard,
		}
		if err := j.Queue.Publish(ctx, models.ChannelDelivery, task); err != nil {
			return fmt.Errorf("failed to enqueue check-in: %w", err)
		}
	}
	slog.Info("check-in broadcast enqueued", "mode", mode, "users", len(users))
	return nil
}

// WeeklyReport sends each tracking user their last seven days in numbers.
// Users with no records this week are skipped.
func (j *Jobs) WeeklyReport(ctx context.Context) error {
	users, err := j.Store.ListUsersWithAnyTracking(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tracking users: %w", err)
	}
	weekAgo := j.now().AddDate(0, 0, -7).Format(models.DateLayout)
	sent := 0
	for _, u := range users {
		stats, err := j.Store.TrackingStats(ctx, u.ID, weekAgo)
		if err != nil {
			return fmt.Errorf("failed to load weekly stats for user %d: %w", u.ID, err)
		}
		success := stats[models.TrackingSuccess]
		partial := stats[models.TrackingPartial]
		fail := stats[models.TrackingFail]
		if success+partial+fail == 0 {
			continue
		}
		text := fmt.Sprintf(
			"📅 <b>Ваша неделя в цифрах:</b>\n\n✅ Выполнено: %d\n⚠️ Частично: %d\n❌ Пропущено: %d\n\n",
			success, partial, fail)
		switch {
		case success >= 5:
			text += "🔥 Отличный результат!"
		case success >= 3:
			text += "👍 Хороший темп!"
		default:
			text += "💪 Не сдавайтесь!"
		}
		task := models.DeliveryTask{
			TaskID: fmt.Sprintf("weekly:%d:%s", u.ID, j.now().Format(models.DateLayout)),
			UserID: u.ID,
			Text:   text,
		}
		if err := j.Queue.Publish(ctx, models.ChannelDelivery, task); err != nil {
			return fmt.Errorf("failed to enqueue weekly report: %w", err)
		}
		sent++
	}
	slog.Info("weekly reports enqueued", "users", sent)
	return nil
}
