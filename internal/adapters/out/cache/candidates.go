package cache

import (
	"context"

	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/ports/out"
)

// Кэширование выдачи справочника на один прогон ранжирования

func (c *CacheAdapter) GetCandidates(ctx context.Context, key string) ([]domain.CandidateProfile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.candidatesCache.cache.Get(key)
	if !exists {
		c.logger.Debug("cache.candidates.get.miss", out.LogFields{
			"key": key,
		})
		return nil, false
	}

	if c.candidatesCache.ttl > 0 && c.now().Sub(entry.storedAt) > c.candidatesCache.ttl {
		c.logger.Debug("cache.candidates.get.expired", out.LogFields{
			"key":      key,
			"storedAt": entry.storedAt,
		})
		return nil, false
	}

	c.logger.Debug("cache.candidates.get.hit", out.LogFields{
		"key":             key,
		"candidatesCount": len(entry.candidates),
	})
	return entry.candidates, true
}

func (c *CacheAdapter) StoreCandidates(ctx context.Context, key string, candidates []domain.CandidateProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Debug("cache.candidates.store", out.LogFields{
		"key":             key,
		"candidatesCount": len(candidates),
	})

	c.candidatesCache.cache.Add(key, &candidatesCacheEntry{
		candidates: candidates,
		storedAt:   c.now(),
	})
}

func (c *CacheAdapter) InvalidateCandidates(ctx context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.candidatesCache.cache.Remove(key)
}
