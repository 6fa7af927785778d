// Package models defines the ephemeral conversation session.
package models

import "time"

// SessionState is the explicit flow-controller state stored in the session.
// Idle is represented by the absence of a session; Completed and Cancelled
// destroy the session rather than being stored.
type SessionState string

const (
	// SessionAwaitingAnswer means the user owes an answer for Step.
	SessionAwaitingAnswer SessionState = "awaiting_answer"
	// SessionAwaitingConsent means all questions are answered and the user
	// owes a consent decision.
	SessionAwaitingConsent SessionState = "awaiting_consent"
)

// ConversationSession tracks one user's progress through an in-flight survey.
// Owned exclusively by the survey flow controller; lives in the session store
// under a TTL and silently expires.
type ConversationSession struct {
	UserID         int64             `json:"user_id"`
	Mode           Mode              `json:"mode"`
	State          SessionState      `json:"state"`
	Step           int               `json:"step"`
	Answers        map[string]string `json:"answers"`
	CreatedAt      time.Time         `json:"created_at"`
	LastActivityAt time.Time         `json:"last_activity_at"`
}

// Touch records activity so TTL refreshes carry an accurate timestamp.
func (s *ConversationSession) Touch(now time.Time) {
	s.LastActivityAt = now
}
