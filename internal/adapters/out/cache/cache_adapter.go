package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/suchimauz/shift-coverage-coordinator/internal/config"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/ports/out"
)

type candidatesCacheEntry struct {
	candidates []domain.CandidateProfile
	storedAt   time.Time
}

type candidatesCache struct {
	cache *lru.Cache[string, *candidatesCacheEntry]
	ttl   time.Duration
}

type windowsCache struct {
	cache *lru.Cache[string, []domain.SentMessage]
}

// CacheAdapter - локальные кэши инстанса. Ничего из хранимого здесь
// не является источником истины.
type CacheAdapter struct {
	candidatesCache *candidatesCache
	windowsCache    *windowsCache
	mu              sync.RWMutex
	logger          out.LoggerPort
	now             func() time.Time
}

func NewCacheAdapter(cfg *config.Config, logger out.LoggerPort) (*CacheAdapter, error) {
	if !cfg.Cache.Enabled {
		logger.Info("cache.disabled", out.LogFields{
			"message": "Cache is disabled",
		})
		return nil, nil
	}

	lruCandidates, err := lru.New[string, *candidatesCacheEntry](cfg.Cache.CandidateSize)
	if err != nil {
		logger.Error("cache.candidates.init.failed", out.LogFields{
			"error": err.Error(),
			"size":  cfg.Cache.CandidateSize,
		})
		return nil, err
	}

	lruWindows, err := lru.New[string, []domain.SentMessage](cfg.Cache.WindowSize)
	if err != nil {
		logger.Error("cache.windows.init.failed", out.LogFields{
			"error": err.Error(),
			"size":  cfg.Cache.WindowSize,
		})
		return nil, err
	}

	return &CacheAdapter{
		candidatesCache: &candidatesCache{
			cache: lruCandidates,
			ttl:   cfg.Cache.CandidateTTL,
		},
		windowsCache: &windowsCache{
			cache: lruWindows,
		},
		logger: logger.WithModule("CacheAdapter"),
		now:    time.Now,
	}, nil
}
