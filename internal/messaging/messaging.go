// Package messaging abstracts outbound user messaging behind a small
// interface so workers and the scheduler stay independent of the chat
// platform.
package messaging

import (
	"context"

	"rexbot/internal/models"
	"rexbot/internal/telegram"
)

// Service sends messages to users. Implementations surface
// *telegram.RateLimitError unwrapped so callers can schedule retries.
type Service interface {
	SendText(ctx context.Context, userID int64, text string, keyboard *models.Keyboard) error
	SendPhoto(ctx context.Context, userID int64, photoID, caption string, keyboard *models.Keyboard) error
}

// TelegramService implements Service on the Bot API client.
type TelegramService struct {
	client *telegram.Client
}

// NewTelegramService wraps an existing Bot API client.
func NewTelegramService(client *telegram.Client) *TelegramService {
	return &TelegramService{client: client}
}

func (s *TelegramService) SendText(ctx context.Context, userID int64, text string, keyboard *models.Keyboard) error {
	return s.client.SendMessage(ctx, userID, text, keyboard)
}

func (s *TelegramService) SendPhoto(ctx context.Context, userID int64, photoID, caption string, keyboard *models.Keyboard) error {
	return s.client.SendPhoto(ctx, userID, photoID, caption, keyboard)
}
