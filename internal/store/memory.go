// Package store: in-memory backend for tests and local development.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"rexbot/internal/models"
)

// InMemoryStore is a mutex-guarded Store for tests and local runs. It honors
// the same uniqueness semantics as the SQL backends.
type InMemoryStore struct {
	mu          sync.Mutex
	users       map[int64]models.User
	codes       map[string]models.ActivationCode
	submissions map[string]models.Submission
	subOrder    []string
	tracking    map[string]models.TrackingRecord
	matches     map[string]models.MatchEvent
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:       make(map[int64]models.User),
		codes:       make(map[string]models.ActivationCode),
		submissions: make(map[string]models.Submission),
		tracking:    make(map[string]models.TrackingRecord),
		matches:     make(map[string]models.MatchEvent),
	}
}

func trackingKey(userID int64, mode models.Mode, date string) string {
	return fmt.Sprintf("%d|%s|%s", userID, mode, date)
}

func matchKey(actorID, targetID int64) string {
	return fmt.Sprintf("%d|%d", actorID, targetID)
}

func (s *InMemoryStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *InMemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return fmt.Errorf("user %d already exists", u.ID)
	}
	s.users[u.ID] = *u
	return nil
}

func (s *InMemoryStore) UpdateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return models.ErrUserNotFound
	}
	s.users[u.ID] = *u
	return nil
}

func (s *InMemoryStore) SetConsent(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return models.ErrUserNotFound
	}
	u.HasAcceptedPolicy = true
	s.users[userID] = u
	return nil
}

func (s *InMemoryStore) SetTracking(ctx context.Context, userID int64, mode models.Mode, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return models.ErrUserNotFound
	}
	switch mode {
	case models.ModeDiet:
		u.DietTracking = enabled
	case models.ModeTrainer:
		u.TrainerTracking = enabled
	default:
		return fmt.Errorf("mode %s does not support tracking", mode)
	}
	s.users[userID] = u
	return nil
}

func (s *InMemoryStore) ListTrackingUsers(ctx context.Context, mode models.Mode, now time.Time) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var users []models.User
	for _, u := range s.users {
		if u.SubscriptionActive(now) && u.TrackingEnabled(mode) {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *InMemoryStore) ListUsersWithAnyTracking(ctx context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var users []models.User
	for _, u := range s.users {
		if u.DietTracking || u.TrainerTracking {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *InMemoryStore) GetActivationCode(ctx context.Context, codeHash string) (*models.ActivationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[codeHash]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *InMemoryStore) CreateActivationCodes(ctx context.Context, codes []models.ActivationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range codes {
		if _, ok := s.codes[c.CodeHash]; ok {
			return fmt.Errorf("activation code %s already exists", c.CodeHash)
		}
	}
	for _, c := range codes {
		s.codes[c.CodeHash] = c
	}
	return nil
}

func (s *InMemoryStore) ApplyActivation(ctx context.Context, code *models.ActivationCode, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[code.CodeHash]; !ok {
		return models.ErrCodeNotFound
	}
	if _, ok := s.users[user.ID]; !ok {
		return models.ErrUserNotFound
	}
	s.codes[code.CodeHash] = *code
	s.users[user.ID] = *user
	return nil
}

func (s *InMemoryStore) CreateSubmission(ctx context.Context, sub *models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.submissions[sub.ID]; ok {
		return fmt.Errorf("submission %s already exists", sub.ID)
	}
	s.submissions[sub.ID] = *sub
	s.subOrder = append(s.subOrder, sub.ID)
	return nil
}

func (s *InMemoryStore) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok {
		return nil, models.ErrSubmissionNotFound
	}
	return &sub, nil
}

func (s *InMemoryStore) AttachSubmissionResult(ctx context.Context, id, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok || sub.GeneratedResult != "" {
		return nil
	}
	sub.GeneratedResult = result
	s.submissions[id] = sub
	return nil
}

func (s *InMemoryStore) ListSubmissionsByMode(ctx context.Context, mode models.Mode) ([]models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var subs []models.Submission
	// Newest first, matching the SQL backends.
	for i := len(s.subOrder) - 1; i >= 0; i-- {
		sub := s.submissions[s.subOrder[i]]
		if sub.Mode == mode {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

func (s *InMemoryStore) InsertTracking(ctx context.Context, r models.TrackingRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := trackingKey(r.UserID, r.Mode, r.Date)
	if _, ok := s.tracking[key]; ok {
		return false, nil
	}
	s.tracking[key] = r
	return true, nil
}

func (s *InMemoryStore) ListTracking(ctx context.Context, userID int64, mode models.Mode) ([]models.TrackingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var records []models.TrackingRecord
	for _, r := range s.tracking {
		if r.UserID == userID && r.Mode == mode {
			records = append(records, r)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Date > records[j].Date })
	return records, nil
}

func (s *InMemoryStore) TrackingStats(ctx context.Context, userID int64, sinceDate string) (map[models.TrackingStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := make(map[models.TrackingStatus]int)
	for _, r := range s.tracking {
		if r.UserID == userID && r.Date >= sinceDate {
			stats[r.Status]++
		}
	}
	return stats, nil
}

func (s *InMemoryStore) InsertMatchEvent(ctx context.Context, e models.MatchEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := matchKey(e.ActorID, e.TargetID)
	if _, ok := s.matches[key]; ok {
		return false, nil
	}
	s.matches[key] = e
	return true, nil
}

func (s *InMemoryStore) GetMatchEvent(ctx context.Context, actorID, targetID int64) (*models.MatchEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.matches[matchKey(actorID, targetID)]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *InMemoryStore) MarkMutualMatch(ctx context.Context, a, b int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range []string{matchKey(a, b), matchKey(b, a)} {
		if e, ok := s.matches[key]; ok {
			e.IsMatch = true
			s.matches[key] = e
		}
	}
	return nil
}

func (s *InMemoryStore) SeenTargets(ctx context.Context, actorID int64) (map[int64]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[int64]bool)
	for _, e := range s.matches {
		if e.ActorID == actorID {
			seen[e.TargetID] = true
		}
	}
	return seen, nil
}

func (s *InMemoryStore) Stats(ctx context.Context, now time.Time) (models.AdminStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := models.AdminStats{
		TotalUsers:       len(s.users),
		TotalCodes:       len(s.codes),
		TotalSubmissions: len(s.submissions),
	}
	for _, u := range s.users {
		if u.SubscriptionActive(now) {
			stats.ActiveSubscriptions++
		}
	}
	for _, c := range s.codes {
		if c.ActivatedAt != nil {
			stats.ActivatedCodes++
		}
	}
	for _, e := range s.matches {
		if e.IsMatch {
			stats.MutualMatches++
		}
	}
	return stats, nil
}

func (s *InMemoryStore) Close() error { return nil }
