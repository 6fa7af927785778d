// Package configcache provides the config-sync collaborator: a cache of
// survey definitions, prompt templates and pre-generated daily horoscopes,
// refreshed periodically from an external source.
//
// Survey definitions and prompt templates are read-only external
// configuration from the flow controller's point of view; only the refresh
// job writes them.
package configcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"rexbot/internal/models"
)

// HoroscopeTTL bounds how long a pre-generated horoscope and the per-user
// viewed marker live. Both reset daily.
const HoroscopeTTL = 24 * time.Hour

// Cache is the typed configuration cache contract.
type Cache interface {
	// GetSurveyDefinition returns (nil, nil) when the mode is not configured.
	GetSurveyDefinition(ctx context.Context, mode models.Mode) (*models.SurveyDefinition, error)
	SetSurveyDefinition(ctx context.Context, def *models.SurveyDefinition) error

	// GetPromptTemplate returns "" when the mode has no template.
	GetPromptTemplate(ctx context.Context, mode models.Mode) (string, error)
	SetPromptTemplate(ctx context.Context, mode models.Mode, text string) error

	// GetHoroscope returns "" when no horoscope is cached for the sign today.
	GetHoroscope(ctx context.Context, sign string) (string, error)
	SetHoroscope(ctx context.Context, sign, text string) error

	// MarkHoroscopeViewed records the user's daily view; returns false when
	// the user already viewed a horoscope on that date.
	MarkHoroscopeViewed(ctx context.Context, userID int64, date string) (bool, error)
}

// RedisCache implements Cache on Redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a config cache on an existing Redis client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func surveyKey(mode models.Mode) string   { return fmt.Sprintf("survey_config:%s", mode) }
func promptKey(mode models.Mode) string   { return fmt.Sprintf("prompt:%s", mode) }
func horoscopeKey(sign string) string     { return fmt.Sprintf("horoscope:%s", sign) }
func viewedKey(id int64, d string) string { return fmt.Sprintf("horoscope_viewed:%d:%s", id, d) }

func (c *RedisCache) GetSurveyDefinition(ctx context.Context, mode models.Mode) (*models.SurveyDefinition, error) {
	data, err := c.client.Get(ctx, surveyKey(mode)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read survey config for %s: %w", mode, err)
	}
	var questions []models.Question
	if err := json.Unmarshal([]byte(data), &questions); err != nil {
		slog.Error("configcache survey config corrupt", "error", err, "mode", mode)
		return nil, nil
	}
	return &models.SurveyDefinition{Mode: mode, Questions: questions}, nil
}

func (c *RedisCache) SetSurveyDefinition(ctx context.Context, def *models.SurveyDefinition) error {
	data, err := json.Marshal(def.Questions)
	if err != nil {
		return fmt.Errorf("failed to marshal survey config for %s: %w", def.Mode, err)
	}
	if err := c.client.Set(ctx, surveyKey(def.Mode), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write survey config for %s: %w", def.Mode, err)
	}
	return nil
}

func (c *RedisCache) GetPromptTemplate(ctx context.Context, mode models.Mode) (string, error) {
	text, err := c.client.Get(ctx, promptKey(mode)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read prompt template for %s: %w", mode, err)
	}
	return text, nil
}

func (c *RedisCache) SetPromptTemplate(ctx context.Context, mode models.Mode, text string) error {
	if err := c.client.Set(ctx, promptKey(mode), text, 0).Err(); err != nil {
		return fmt.Errorf("failed to write prompt template for %s: %w", mode, err)
	}
	return nil
}

func (c *RedisCache) GetHoroscope(ctx context.Context, sign string) (string, error) {
	text, err := c.client.Get(ctx, horoscopeKey(sign)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read horoscope for %s: %w", sign, err)
	}
	return text, nil
}

func (c *RedisCache) SetHoroscope(ctx context.Context, sign, text string) error {
	if err := c.client.Set(ctx, horoscopeKey(sign), text, HoroscopeTTL).Err(); err != nil {
		return fmt.Errorf("failed to write horoscope for %s: %w", sign, err)
	}
	return nil
}

func (c *RedisCache) MarkHoroscopeViewed(ctx context.Context, userID int64, date string) (bool, error) {
	ok, err := c.client.SetNX(ctx, viewedKey(userID, date), "1", HoroscopeTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark horoscope viewed for user %d: %w", userID, err)
	}
	return ok, nil
}
