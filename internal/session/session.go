// Package session provides the ephemeral conversation session store.
//
// Sessions are opaque JSON snapshots in a key-value store with expiry,
// last-write-wins per key. A missing entry means "no active flow"; callers
// must never treat it as an error, since entries silently expire.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"rexbot/internal/models"
)

// DefaultTTL is how long an inactive conversation survives before expiring.
const DefaultTTL = 24 * time.Hour

// Store is the session state contract used by the survey flow controller.
type Store interface {
	// Get returns (nil, nil) when no session exists or it has expired.
	Get(ctx context.Context, userID int64) (*models.ConversationSession, error)
	Put(ctx context.Context, s *models.ConversationSession, ttl time.Duration) error
	Delete(ctx context.Context, userID int64) error
}

// RedisStore implements Store on Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a session store on an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func sessionKey(userID int64) string {
	return fmt.Sprintf("session:%d", userID)
}

// Get retrieves and decodes the user's session snapshot.
func (r *RedisStore) Get(ctx context.Context, userID int64) (*models.ConversationSession, error) {
	data, err := r.client.Get(ctx, sessionKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		slog.Error("session Get failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to read session for user %d: %w", userID, err)
	}
	var s models.ConversationSession
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		// A corrupt snapshot is unrecoverable; drop it and report no session.
		slog.Error("session snapshot corrupt, discarding", "error", err, "userID", userID)
		_ = r.client.Del(ctx, sessionKey(userID)).Err()
		return nil, nil
	}
	return &s, nil
}

// Put stores the session snapshot under the given TTL.
func (r *RedisStore) Put(ctx context.Context, s *models.ConversationSession, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session for user %d: %w", s.UserID, err)
	}
	if err := r.client.Set(ctx, sessionKey(s.UserID), data, ttl).Err(); err != nil {
		slog.Error("session Put failed", "error", err, "userID", s.UserID)
		return fmt.Errorf("failed to write session for user %d: %w", s.UserID, err)
	}
	return nil
}

// Delete destroys the user's session. Deleting an absent session is a no-op.
func (r *RedisStore) Delete(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, sessionKey(userID)).Err(); err != nil {
		slog.Error("session Delete failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete session for user %d: %w", userID, err)
	}
	return nil
}
