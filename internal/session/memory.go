package session

import (
	"context"
	"sync"
	"time"

	"rexbot/internal/models"
)

// MemoryStore is an in-process Store for tests. TTLs are honored by
// expiry-on-read.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[int64]memoryEntry
	now      func() time.Time
}

type memoryEntry struct {
	session   models.ConversationSession
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]memoryEntry), now: time.Now}
}

func (m *MemoryStore) Get(ctx context.Context, userID int64) (*models.ConversationSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[userID]
	if !ok {
		return nil, nil
	}
	if m.now().After(e.expiresAt) {
		delete(m.sessions, userID)
		return nil, nil
	}
	s := e.session
	return &s, nil
}

func (m *MemoryStore) Put(ctx context.Context, s *models.ConversationSession, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.UserID] = memoryEntry{session: *s, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}
