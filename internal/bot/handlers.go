package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"rexbot/internal/horoscope"
	"rexbot/internal/models"
	"rexbot/internal/survey"
)

// handleStart greets the user and redeems an activation code when one rides
// on the deep link.
func (r *Router) handleStart(ctx context.Context, user *models.User, arg string) {
	if arg != "" {
		r.handleActivation(ctx, user, arg)
		return
	}
	if r.isAdmin(user.ID) || user.SubscriptionActive(r.now()) {
		r.send(ctx, user.ID, textMainMenu, mainMenu(user, r.isAdmin(user.ID)))
		return
	}
	r.send(ctx, user.ID, textWelcomeNoAccess, nil)
}

func (r *Router) handleActivation(ctx context.Context, user *models.User, codeHash string) {
	result, err := r.engage.RedeemActivationCode(ctx, user, codeHash)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrCodeNotFound):
		r.send(ctx, user.ID, "❌ Неверный QR-код.", nil)
		return
	case errors.Is(err, models.ErrCodeInactive):
		r.send(ctx, user.ID, "❌ Этот код деактивирован администратором.", nil)
		return
	case errors.Is(err, models.ErrCodeUsedBySelf):
		r.send(ctx, user.ID, "ℹ️ Вы уже активировали этот код ранее.", nil)
		r.send(ctx, user.ID, textMainMenu, mainMenu(user, r.isAdmin(user.ID)))
		return
	case errors.Is(err, models.ErrCodeUsedByOther):
		r.send(ctx, user.ID, "❌ Этот код уже использован другим пользователем.", nil)
		r.send(ctx, user.ID, textMainMenu, mainMenu(user, r.isAdmin(user.ID)))
		return
	default:
		slog.Error("activation failed", "error", err, "userID", user.ID)
		r.send(ctx, user.ID, "⚠️ Не удалось активировать код, попробуйте позже.", nil)
		return
	}

	r.send(ctx, user.ID, fmt.Sprintf(
		"✅ <b>Доступ активирован!</b>\nДействует до: %s\n\nВыберите режим ниже 👇",
		result.ExpiresAt.Format(models.BirthDateLayout)),
		mainMenu(user, r.isAdmin(user.ID)))
	if result.CreditGranted {
		r.send(ctx, user.ID,
			"🎉 <b>Особое достижение!</b>\n\nВы открыли доступ к составлению <b>Натальной Карты</b>.\n"+
				"Эта функция теперь доступна в главном меню в разделе 'Астролог'.", nil)
	}
}

// handleMessage treats free text and photos as survey answers; outside a
// survey they fall back to the menu.
func (r *Router) handleMessage(ctx context.Context, user *models.User, e Event) {
	if e.Text == "/help" {
		r.send(ctx, user.ID, textHelp, nil)
		return
	}
	outcome, err := r.surveys.SubmitAnswer(ctx, user, survey.Answer{Text: strings.TrimSpace(e.Text), PhotoID: e.PhotoID})
	if err != nil {
		r.sendFlowError(ctx, user, err)
		return
	}
	r.renderOutcome(ctx, user, outcome)
}

func (r *Router) handleCallback(ctx context.Context, user *models.User, data string) {
	switch {
	case data == "help":
		r.send(ctx, user.ID, textHelp, nil)
	case data == "ignore":
	case data == "cancel_survey":
		if err := r.surveys.Cancel(ctx, user.ID); err != nil {
			slog.Error("cancel failed", "error", err, "userID", user.ID)
		}
		r.send(ctx, user.ID, textMainMenu, mainMenu(user, r.isAdmin(user.ID)))
	case data == "consent_yes" || data == "consent_no":
		outcome, err := r.surveys.ConfirmConsent(ctx, user, data == "consent_yes")
		if err != nil {
			r.sendFlowError(ctx, user, err)
			return
		}
		r.renderOutcome(ctx, user, outcome)
	case strings.HasPrefix(data, "ans_"):
		outcome, err := r.surveys.SubmitAnswer(ctx, user, survey.Answer{Text: strings.TrimPrefix(data, "ans_")})
		if err != nil {
			r.sendFlowError(ctx, user, err)
			return
		}
		r.renderOutcome(ctx, user, outcome)
	case strings.HasPrefix(data, "start_survey_"):
		r.startSurvey(ctx, user, models.Mode(strings.TrimPrefix(data, "start_survey_")))
	case strings.HasPrefix(data, "mode_"):
		r.handleModeSelection(ctx, user, models.Mode(strings.TrimPrefix(data, "mode_")))
	case strings.HasPrefix(data, "toggle_tracking_"):
		r.handleToggleTracking(ctx, user, models.Mode(strings.TrimPrefix(data, "toggle_tracking_")))
	case strings.HasPrefix(data, "tracking_on_"):
		r.handleSetTracking(ctx, user, models.Mode(strings.TrimPrefix(data, "tracking_on_")), true)
	case strings.HasPrefix(data, "tracking_off_"):
		r.handleSetTracking(ctx, user, models.Mode(strings.TrimPrefix(data, "tracking_off_")), false)
	case strings.HasPrefix(data, "track_"):
		r.handleTrackReport(ctx, user, data)
	case strings.HasPrefix(data, "like_") || strings.HasPrefix(data, "dislike_"):
		r.handleVote(ctx, user, data)
	default:
		slog.Warn("unknown callback", "data", data, "userID", user.ID)
	}
}

// handleModeSelection opens the settings submenu for trackable modes and
// starts the survey directly for the rest.
func (r *Router) handleModeSelection(ctx context.Context, user *models.User, mode models.Mode) {
	if !models.IsValidMode(mode) {
		slog.Warn("unknown mode selected", "mode", mode, "userID", user.ID)
		return
	}
	if mode.TracksDaily() {
		r.send(ctx, user.ID,
			fmt.Sprintf("Режим <b>%s</b>. Настройки:", mode),
			modeMenu(mode, user.TrackingEnabled(mode)))
		return
	}
	r.startSurvey(ctx, user, mode)
}

func (r *Router) startSurvey(ctx context.Context, user *models.User, mode models.Mode) {
	if !models.IsValidMode(mode) {
		slog.Warn("unknown survey mode", "mode", mode, "userID", user.ID)
		return
	}
	if mode.CreditGated() && user.Credits < 1 {
		r.send(ctx, user.ID, textNoCredits, nil)
		return
	}
	outcome, err := r.surveys.Start(ctx, user, mode)
	if err != nil {
		r.sendFlowError(ctx, user, err)
		return
	}
	r.renderOutcome(ctx, user, outcome)
}

func (r *Router) handleToggleTracking(ctx context.Context, user *models.User, mode models.Mode) {
	r.handleSetTracking(ctx, user, mode, !user.TrackingEnabled(mode))
}

func (r *Router) handleSetTracking(ctx context.Context, user *models.User, mode models.Mode, enabled bool) {
	if !mode.TracksDaily() {
		slog.Warn("tracking toggle for unsupported mode", "mode", mode, "userID", user.ID)
		return
	}
	if err := r.store.SetTracking(ctx, user.ID, mode, enabled); err != nil {
		slog.Error("failed to set tracking", "error", err, "userID", user.ID, "mode", mode)
		return
	}
	status := "выключен"
	if enabled {
		status = "включен"
	}
	r.send(ctx, user.ID, fmt.Sprintf("Трекинг (%s) %s.", mode, status), nil)
}

// handleTrackReport records a daily check-in answer, callback format
// track_{mode}_{status}.
func (r *Router) handleTrackReport(ctx context.Context, user *models.User, data string) {
	parts := strings.Split(data, "_")
	if len(parts) != 3 {
		slog.Warn("malformed tracking callback", "data", data)
		return
	}
	mode, status := models.Mode(parts[1]), models.TrackingStatus(parts[2])
	if !models.IsValidTrackingStatus(status) {
		slog.Warn("malformed tracking status", "data", data)
		return
	}
	result, err := r.engage.RecordTracking(ctx, user.ID, mode, status)
	if errors.Is(err, models.ErrDuplicateTracking) {
		r.send(ctx, user.ID, "Вы уже отметились сегодня по этому направлению.", nil)
		return
	}
	if err != nil {
		slog.Error("tracking failed", "error", err, "userID", user.ID)
		r.send(ctx, user.ID, "Произошла ошибка при сохранении.", nil)
		return
	}
	var text string
	switch status {
	case models.TrackingSuccess:
		text = fmt.Sprintf("🔥 Отлично! Серия (%s): %d дн.", mode, result.Streak)
	case models.TrackingPartial:
		text = fmt.Sprintf("👍 Принято. Серия (%s): %d дн.", mode, result.Streak)
	default:
		text = fmt.Sprintf("Ничего, завтра наверстаете! Серия (%s) сброшена.", mode)
	}
	r.send(ctx, user.ID, fmt.Sprintf("<b>Итог: %s</b>", text), nil)
	if result.Milestone {
		r.send(ctx, user.ID, textStreakPromo, nil)
	}
}

// handleVote records a like or dislike, callback format like_{id} or
// dislike_{id}. A completed mutual match notifies both sides: the voter
// synchronously, the other user through the delivery queue.
func (r *Router) handleVote(ctx context.Context, user *models.User, data string) {
	action := models.ActionLike
	raw := strings.TrimPrefix(data, "like_")
	if strings.HasPrefix(data, "dislike_") {
		action = models.ActionDislike
		raw = strings.TrimPrefix(data, "dislike_")
	}
	targetID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		slog.Warn("malformed vote callback", "data", data)
		return
	}
	if targetID == user.ID {
		r.send(ctx, user.ID, textSelfLike, nil)
		return
	}
	isMatch, err := r.engage.RecordInteraction(ctx, user.ID, targetID, action)
	if errors.Is(err, models.ErrDuplicateVote) {
		r.send(ctx, user.ID, textAlreadyVoted, nil)
		return
	}
	if err != nil {
		slog.Error("vote failed", "error", err, "userID", user.ID)
		return
	}
	if action == models.ActionDislike {
		r.send(ctx, user.ID, textVoteSkipped, nil)
		return
	}
	r.send(ctx, user.ID, textVoteAccepted, nil)
	if !isMatch {
		return
	}

	target, err := r.store.GetUser(ctx, targetID)
	if err != nil || target == nil {
		slog.Error("match partner lookup failed", "error", err, "targetID", targetID)
		return
	}
	r.send(ctx, user.ID,
		fmt.Sprintf("🎉 <b>IT'S A MATCH!</b>\nВам ответил(а) взаимностью %s!", mention(target)),
		contactKeyboard(target.Username))
	task := models.DeliveryTask{
		TaskID:   fmt.Sprintf("match-notify:%d:%d", targetID, user.ID),
		UserID:   targetID,
		Text:     fmt.Sprintf("🎉 <b>У вас новое совпадение!</b>\nПользователь %s ответил взаимностью!", mention(user)),
		Keyboard: contactKeyboard(user.Username),
	}
	if err := r.queue.Publish(ctx, models.ChannelDelivery, task); err != nil {
		slog.Error("failed to enqueue match notification", "error", err)
	}
}

// renderOutcome turns a flow controller outcome into user-facing messages.
func (r *Router) renderOutcome(ctx context.Context, user *models.User, out survey.Outcome) {
	switch out.Kind {
	case survey.OutcomeQuestion:
		r.send(ctx, user.ID, questionText(out), questionKeyboard(out))
	case survey.OutcomeInvalidAnswer:
		r.send(ctx, user.ID, invalidAnswerText(out), questionKeyboard(out))
	case survey.OutcomeConsent:
		r.send(ctx, user.ID, textConsentPrompt, consentKeyboard())
	case survey.OutcomeConsentDeclined:
		r.send(ctx, user.ID, textSurveyCanceled, mainMenu(user, r.isAdmin(user.ID)))
	case survey.OutcomeQueued:
		r.send(ctx, user.ID, textQueued, mainMenu(user, r.isAdmin(user.ID)))
	case survey.OutcomeProfileSaved:
		r.send(ctx, user.ID, textProfileSaved, mainMenu(user, r.isAdmin(user.ID)))
	case survey.OutcomeHoroscope:
		r.send(ctx, user.ID,
			fmt.Sprintf("🔮 <b>Гороскоп (%s):</b>\n\n%s", horoscope.DisplayNames[out.Sign], out.Text),
			mainMenu(user, r.isAdmin(user.ID)))
	case survey.OutcomeHoroscopeSeen:
		r.send(ctx, user.ID, textHoroscopeOnce, mainMenu(user, r.isAdmin(user.ID)))
	case survey.OutcomeHoroscopeMissing:
		r.send(ctx, user.ID, textHoroscopePrep, mainMenu(user, r.isAdmin(user.ID)))
	default:
		slog.Warn("unhandled outcome", "kind", out.Kind)
	}
}

func (r *Router) sendFlowError(ctx context.Context, user *models.User, err error) {
	switch {
	case errors.Is(err, models.ErrNoActiveSession):
		r.send(ctx, user.ID, textMainMenu, mainMenu(user, r.isAdmin(user.ID)))
	case errors.Is(err, models.ErrConfigurationMissing):
		r.send(ctx, user.ID, textModeMissing, nil)
	case errors.Is(err, models.ErrInsufficientCredits):
		r.send(ctx, user.ID, textNoCredits, nil)
	case errors.Is(err, models.ErrInvalidConsentState):
		r.send(ctx, user.ID, textConsentPrompt, consentKeyboard())
	default:
		slog.Error("flow error", "error", err, "userID", user.ID)
		r.send(ctx, user.ID, "⚠️ Что-то пошло не так, попробуйте еще раз.", nil)
	}
}

func questionText(out survey.Outcome) string {
	return fmt.Sprintf("Вопрос %d/%d:\n%s", out.Step, out.Total, out.Question.Prompt)
}

func invalidAnswerText(out survey.Outcome) string {
	reason := "✍️ Нужно прислать ТЕКСТ!"
	switch {
	case out.Question.Kind == models.QuestionPhoto:
		reason = "📸 Нужно прислать ФОТО!"
	case out.Question.Kind == models.QuestionChoice:
		reason = "❗️ Выберите вариант кнопкой!"
	case out.Question.Key == models.KeyBirthDate:
		reason = "❗️ Неверный формат даты! (ДД.ММ.ГГГГ)"
	}
	return fmt.Sprintf("❗️ <b>%s</b>\n\n%s", reason, questionText(out))
}

func questionKeyboard(out survey.Outcome) *models.Keyboard {
	if out.Question.Kind == models.QuestionChoice {
		return optionsKeyboard(out.Question.Options)
	}
	return cancelKeyboard()
}
