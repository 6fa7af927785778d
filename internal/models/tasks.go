// Package models defines queued task payloads and keyboard shapes.
//
// The two queue channels and these JSON payloads are the system's externally
// observable persistent contract: any replacement producer or consumer must
// speak them unchanged.
package models

import "errors"

// Queue channel names. Durable; shared by all producers and workers.
const (
	// ChannelGeneration carries GenerationTask payloads.
	ChannelGeneration = "q_ai_generation"
	// ChannelDelivery carries DeliveryTask payloads.
	ChannelDelivery = "q_notifications"
)

// InlineButton is one button of an inline keyboard. Exactly one of
// CallbackData or URL should be set.
type InlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// Keyboard is an inline keyboard attached to an outbound message. The JSON
// shape matches the chat platform's reply_markup so payloads pass through
// the queue without translation.
type Keyboard struct {
	InlineKeyboard [][]InlineButton `json:"inline_keyboard"`
}

// GenerationTask asks the generation worker to produce content for one
// completed submission.
type GenerationTask struct {
	TaskID       string            `json:"task_id"`
	UserID       int64             `json:"user_id"`
	Mode         Mode              `json:"mode"`
	Answers      map[string]string `json:"answers"`
	SubmissionID string            `json:"submission_id"`
}

// Validate checks the fields the generation worker cannot proceed without.
func (t *GenerationTask) Validate() error {
	if t.UserID == 0 {
		return errors.New("generation task missing user id")
	}
	if !IsValidMode(t.Mode) {
		return errors.New("generation task has invalid mode")
	}
	if t.SubmissionID == "" {
		return errors.New("generation task missing submission id")
	}
	return nil
}

// DeliveryTask asks the delivery worker to send one message to one user.
type DeliveryTask struct {
	TaskID   string    `json:"task_id"`
	UserID   int64     `json:"user_id"`
	Text     string    `json:"text"`
	PhotoID  string    `json:"photo,omitempty"`
	Keyboard *Keyboard `json:"keyboard,omitempty"`
}

// Validate checks the fields the delivery worker cannot proceed without.
func (t *DeliveryTask) Validate() error {
	if t.UserID == 0 {
		return errors.New("delivery task missing user id")
	}
	if t.Text == "" && t.PhotoID == "" {
		return errors.New("delivery task has no content")
	}
	return nil
}
