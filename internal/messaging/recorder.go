package messaging

import (
	"context"
	"sync"

	"rexbot/internal/models"
)

// Sent is one message captured by a Recorder.
type Sent struct {
	UserID   int64
	Text     string
	PhotoID  string
	Keyboard *models.Keyboard
}

// Recorder is an in-memory Service for tests. Err, when set, is returned by
// every send; Errs, when non-empty, is consumed one entry per send first.
type Recorder struct {
	mu       sync.Mutex
	Messages []Sent
	Err      error
	Errs     []error
}

// NewRecorder creates an empty message recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) nextErr() error {
	if len(r.Errs) > 0 {
		err := r.Errs[0]
		r.Errs = r.Errs[1:]
		return err
	}
	return r.Err
}

func (r *Recorder) SendText(ctx context.Context, userID int64, text string, keyboard *models.Keyboard) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.nextErr(); err != nil {
		return err
	}
	r.Messages = append(r.Messages, Sent{UserID: userID, Text: text, Keyboard: keyboard})
	return nil
}

func (r *Recorder) SendPhoto(ctx context.Context, userID int64, photoID, caption string, keyboard *models.Keyboard) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.nextErr(); err != nil {
		return err
	}
	r.Messages = append(r.Messages, Sent{UserID: userID, Text: caption, PhotoID: photoID, Keyboard: keyboard})
	return nil
}

// Last returns the most recently recorded message, or nil.
func (r *Recorder) Last() *Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Messages) == 0 {
		return nil
	}
	return &r.Messages[len(r.Messages)-1]
}
