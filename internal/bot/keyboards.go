package bot

import (
	"fmt"

	"rexbot/internal/models"
)

// User-facing texts. Kept together so copy edits do not touch handler logic.
const (
	textWelcomeNoAccess = "👋 Привет! Я REX Bot.\nДля доступа к диетологу и тренировкам отсканируйте QR-код с упаковки."
	textMainMenu        = "🏠 Главное меню:"
	textModeMissing     = "⚠️ Режим не настроен."
	textNoCredits       = "❌ Нет попыток. Активируйте больше QR-кодов!"
	textQueued          = "✅ <b>Принято!</b>\nДанные обрабатываются... ⏳"
	textProfileSaved    = "✅ <b>Анкета сохранена!</b>\nЖдите предложений в 12:00."
	textHoroscopeOnce   = "🔮 Только один прогноз в день!"
	textHoroscopePrep   = "✨ Гороскопы формируются."
	textSurveyCanceled  = "❌ Анкета отменена."
	textConsentPrompt   = "📄 <b>Согласие на обработку данных:</b>\n\nНажимая кнопку «Согласен(а)», вы подтверждаете свое согласие."
	textAlreadyVoted    = "Вы уже голосовали за эту анкету."
	textVoteAccepted    = "Анкета обработана. Ждите следующую подборку завтра!"
	textVoteSkipped     = "🚫 Вы пропустили эту анкету."
	textSelfLike        = "Себя лайкать нельзя 😅"
	textStreakPromo     = "🎉 <b>НЕДЕЛЯ ПОБЕД!</b>\nВы 7 дней подряд следуете плану.\n\n🎁 Ваш промокод: <code>HEALTH7DAY</code>"
	textHelp            = "🤖 <b>Как пользоваться ботом REX:</b>\n\n" +
		"1. <b>Выберите режим</b> в меню.\n" +
		"2. <b>Ответьте на вопросы</b> анкеты.\n" +
		"3. <b>Получите результат:</b>\n" +
		"   — 🥦/💪 План питания или тренировок.\n" +
		"   — 🔮 Гороскоп на сегодня.\n" +
		"   — ❤️ Поиск партнера.\n\n" +
		"📅 <b>Ежедневный трекинг:</b>\n" +
		"Мы будем спрашивать о ваших успехах в 20:00."
)

// mainMenu builds the mode selection keyboard. The natal chart entry only
// appears once the user owns a credit; admins always see it.
func mainMenu(user *models.User, admin bool) *models.Keyboard {
	rows := [][]models.InlineButton{
		{
			{Text: "🥦 Диетолог", CallbackData: "mode_diet"},
			{Text: "💪 Тренер", CallbackData: "mode_trainer"},
		},
		{
			{Text: "❤️ Найти партнера", CallbackData: "mode_dating"},
			{Text: "🔮 Астро-прогноз", CallbackData: "mode_horoscope"},
		},
	}
	if admin || user.Credits > 0 {
		rows = append(rows, []models.InlineButton{
			{Text: "🌟 Натальная карта", CallbackData: "mode_natal_chart"},
		})
	}
	rows = append(rows, []models.InlineButton{
		{Text: "ℹ️ Справка", CallbackData: "help"},
	})
	return &models.Keyboard{InlineKeyboard: rows}
}

// modeMenu shows the per-mode settings for trackable modes.
func modeMenu(mode models.Mode, trackingOn bool) *models.Keyboard {
	trackingText := "❌ Трекинг ВЫКЛ"
	if trackingOn {
		trackingText = "✅ Трекинг ВКЛ"
	}
	return &models.Keyboard{InlineKeyboard: [][]models.InlineButton{
		{{Text: "📝 Заполнить/обновить анкету", CallbackData: fmt.Sprintf("start_survey_%s", mode)}},
		{{Text: trackingText, CallbackData: fmt.Sprintf("toggle_tracking_%s", mode)}},
	}}
}

// optionsKeyboard renders choice answers as inline buttons, two per row,
// with a cancel escape hatch.
func optionsKeyboard(options []string) *models.Keyboard {
	var rows [][]models.InlineButton
	var row []models.InlineButton
	for _, opt := range options {
		data := "ans_" + opt
		if len(data) > 64 {
			data = data[:64]
		}
		row = append(row, models.InlineButton{Text: opt, CallbackData: data})
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, []models.InlineButton{{Text: "❌ Прервать анкету", CallbackData: "cancel_survey"}})
	return &models.Keyboard{InlineKeyboard: rows}
}

func cancelKeyboard() *models.Keyboard {
	return &models.Keyboard{InlineKeyboard: [][]models.InlineButton{
		{{Text: "❌ Прервать анкету", CallbackData: "cancel_survey"}},
	}}
}

func consentKeyboard() *models.Keyboard {
	return &models.Keyboard{InlineKeyboard: [][]models.InlineButton{
		{{Text: "✅ Согласен(а)", CallbackData: "consent_yes"}},
		{{Text: "❌ Отказаться", CallbackData: "consent_no"}},
	}}
}

// contactKeyboard links to a matched partner's profile.
func contactKeyboard(username string) *models.Keyboard {
	url := "https://t.me/"
	if username != "" {
		url += username
	}
	return &models.Keyboard{InlineKeyboard: [][]models.InlineButton{
		{{Text: "💬 Написать партнеру", URL: url}},
	}}
}

// mention renders a user reference for match notifications.
func mention(u *models.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return u.FullName
}
