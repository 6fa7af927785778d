package configcache

import (
	"context"
	"sync"

	"rexbot/internal/models"
)

// MemoryCache is an in-process Cache for tests. TTLs are not modeled; tests
// control contents directly.
type MemoryCache struct {
	mu         sync.Mutex
	surveys    map[models.Mode]*models.SurveyDefinition
	prompts    map[models.Mode]string
	horoscopes map[string]string
	viewed     map[string]bool
}

// NewMemoryCache creates an empty in-memory config cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		surveys:    make(map[models.Mode]*models.SurveyDefinition),
		prompts:    make(map[models.Mode]string),
		horoscopes: make(map[string]string),
		viewed:     make(map[string]bool),
	}
}

func (c *MemoryCache) GetSurveyDefinition(ctx context.Context, mode models.Mode) (*models.SurveyDefinition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	def, ok := c.surveys[mode]
	if !ok {
		return nil, nil
	}
	copied := *def
	return &copied, nil
}

func (c *MemoryCache) SetSurveyDefinition(ctx context.Context, def *models.SurveyDefinition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := *def
	c.surveys[def.Mode] = &copied
	return nil
}

func (c *MemoryCache) GetPromptTemplate(ctx context.Context, mode models.Mode) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompts[mode], nil
}

func (c *MemoryCache) SetPromptTemplate(ctx context.Context, mode models.Mode, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts[mode] = text
	return nil
}

func (c *MemoryCache) GetHoroscope(ctx context.Context, sign string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.horoscopes[sign], nil
}

func (c *MemoryCache) SetHoroscope(ctx context.Context, sign, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.horoscopes[sign] = text
	return nil
}

func (c *MemoryCache) MarkHoroscopeViewed(ctx context.Context, userID int64, date string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := viewedKey(userID, date)
	if c.viewed[key] {
		return false, nil
	}
	c.viewed[key] = true
	return true, nil
}
