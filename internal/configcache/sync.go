package configcache

import (
	"context"
	"fmt"
	"log/slog"
)

// Syncer copies configuration from a Source into a Cache.
type Syncer struct {
	source Source
	cache  Cache
}

// NewSyncer creates a syncer from source into cache.
func NewSyncer(source Source, cache Cache) *Syncer {
	return &Syncer{source: source, cache: cache}
}

// Refresh fetches the current configuration snapshot and writes it through.
// On fetch failure nothing is written, so the cache keeps serving the last
// good snapshot.
func (s *Syncer) Refresh(ctx context.Context) error {
	defs, prompts, err := s.source.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("config fetch failed: %w", err)
	}
	for i := range defs {
		if err := s.cache.SetSurveyDefinition(ctx, &defs[i]); err != nil {
			return err
		}
	}
	for mode, text := range prompts {
		if err := s.cache.SetPromptTemplate(ctx, mode, text); err != nil {
			return err
		}
	}
	slog.Info("config refreshed", "surveys", len(defs), "prompts", len(prompts))
	return nil
}
