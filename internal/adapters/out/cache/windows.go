package cache

import (
	"context"

	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
)

// Окна исходящих сообщений Repetition Guard

func (c *CacheAdapter) GetWindow(ctx context.Context, conversationKey string) ([]domain.SentMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	window, exists := c.windowsCache.cache.Get(conversationKey)
	if !exists {
		return nil, false
	}

	// Копия, чтобы вызывающий код не менял закэшированный срез
	copied := make([]domain.SentMessage, len(window))
	copy(copied, window)
	return copied, true
}

func (c *CacheAdapter) StoreWindow(ctx context.Context, conversationKey string, window []domain.SentMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	copied := make([]domain.SentMessage, len(window))
	copy(copied, window)
	c.windowsCache.cache.Add(conversationKey, copied)
}
