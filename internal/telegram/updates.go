package telegram

import (
	"context"
	"fmt"
)

// Update is one long-polled Bot API update. Only the fields this service
// reads are mapped.
type Update struct {
	UpdateID int64            `json:"update_id"`
	Message  *IncomingMessage `json:"message"`
	Callback *CallbackQuery   `json:"callback_query"`
}

// IncomingMessage is a user-sent message.
type IncomingMessage struct {
	MessageID int64       `json:"message_id"`
	From      *ChatUser   `json:"from"`
	Chat      Chat        `json:"chat"`
	Text      string      `json:"text"`
	Photo     []PhotoSize `json:"photo"`
}

// CallbackQuery is a pressed inline button.
type CallbackQuery struct {
	ID   string    `json:"id"`
	From *ChatUser `json:"from"`
	Data string    `json:"data"`
}

// ChatUser identifies the sender.
type ChatUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Chat identifies the conversation.
type Chat struct {
	ID int64 `json:"id"`
}

// PhotoSize is one resolution of an uploaded photo; the last entry is the
// largest.
type PhotoSize struct {
	FileID string `json:"file_id"`
}

// GetUpdates long-polls for updates after offset, blocking up to timeout
// seconds server-side.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]Update, error) {
	payload := map[string]any{
		"offset":          offset,
		"timeout":         timeoutSec,
		"allowed_updates": []string{"message", "callback_query"},
	}
	var updates []Update
	if err := c.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, fmt.Errorf("failed to poll updates: %w", err)
	}
	return updates, nil
}

// AnswerCallbackQuery acknowledges a pressed inline button so the client
// stops showing a spinner.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID string) error {
	return c.call(ctx, "answerCallbackQuery", map[string]any{"callback_query_id": callbackID}, nil)
}
