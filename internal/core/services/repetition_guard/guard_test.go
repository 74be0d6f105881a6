package repetition_guard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suchimauz/shift-coverage-coordinator/internal/adapters/out/cache"
	"github.com/suchimauz/shift-coverage-coordinator/internal/adapters/out/logger"
	"github.com/suchimauz/shift-coverage-coordinator/internal/config"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
)

type memoryHistory struct {
	mu       sync.Mutex
	messages []domain.SentMessage
	loads    int
}

func (h *memoryHistory) AppendOutboundMessage(ctx context.Context, msg domain.SentMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
	return nil
}

func (h *memoryHistory) ListOutboundMessages(ctx context.Context, key string, since time.Time, limit int) ([]domain.SentMessage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loads++
	var matched []domain.SentMessage
	for _, msg := range h.messages {
		if msg.ConversationKey == key && !msg.SentAt.Before(since) {
			matched = append(matched, msg)
		}
	}
	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Guard.WindowSize = 3
	cfg.Guard.Threshold = 0.85
	cfg.Guard.Horizon = 30 * time.Minute
	cfg.Cache.Enabled = true
	cfg.Cache.CandidateSize = 16
	cfg.Cache.WindowSize = 16
	return cfg
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func newTestGuard(t *testing.T, history *memoryHistory, withCache bool) (*Guard, *clock) {
	t.Helper()
	cfg := testConfig()
	clk := &clock{now: time.Date(2026, 3, 2, 7, 45, 0, 0, time.UTC)}

	var g *Guard
	if withCache {
		c, err := cache.NewCacheAdapter(cfg, logger.NewDiscardLogger())
		require.NoError(t, err)
		g = NewGuard(history, c, cfg, logger.NewDiscardLogger(), WithClock(clk.Now))
	} else {
		g = NewGuard(history, nil, cfg, logger.NewDiscardLogger(), WithClock(clk.Now))
	}
	return g, clk
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity("Reply YES to accept", "reply yes to accept!"), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity("yes", "no"))
	assert.Equal(t, 0.0, CosineSimilarity("", "text"))
	assert.Equal(t, 1.0, CosineSimilarity("", ""))

	score := CosineSimilarity(
		"Open shift Mon 09:00-12:00. Reply YES to accept or NO to decline.",
		"Open shift Tue 09:00-12:00. Reply YES to accept or NO to decline.",
	)
	assert.Greater(t, score, 0.85)
}

func TestBigramJaccard(t *testing.T) {
	assert.Equal(t, 1.0, BigramJaccard("hello", "HELLO"))
	assert.Equal(t, 0.0, BigramJaccard("ab", "cd"))
	assert.Greater(t, BigramJaccard("please reply yes", "please reply yes!"), 0.85)
}

func TestGuard_FourthNearIdenticalIsSuppressed(t *testing.T) {
	for _, withCache := range []bool{false, true} {
		history := &memoryHistory{}
		g, clk := newTestGuard(t, history, withCache)
		ctx := context.Background()

		messages := []string{
			"Sorry, we did not understand. Reply YES to accept the shift on Mon 09:00 or NO to decline.",
			"Sorry, we did not understand. Reply YES to accept the shift on Mon 09:00 or NO to decline",
			"Sorry we did not understand! Reply YES to accept the shift on Mon 09:00 or NO to decline.",
		}
		for _, text := range messages {
			decision, err := g.Check(ctx, "G9", text)
			require.NoError(t, err)
			require.False(t, decision.Suppressed)
			require.NoError(t, g.Record(ctx, "G9", text))
			clk.now = clk.now.Add(time.Minute)
		}

		decision, err := g.Check(ctx, "G9", messages[0])
		require.NoError(t, err)
		assert.True(t, decision.Suppressed, "cache=%v", withCache)
		assert.Equal(t, 3, decision.Window)
		assert.Greater(t, decision.MinScore, 0.85)

		// Другой разговор не затронут
		other, err := g.Check(ctx, "G5", messages[0])
		require.NoError(t, err)
		assert.False(t, other.Suppressed)
	}
}

func TestGuard_DifferentMessageIsAllowed(t *testing.T) {
	history := &memoryHistory{}
	g, _ := newTestGuard(t, history, true)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, g.Record(ctx, "G9", "Reply YES to accept or NO to decline."))
	}

	decision, err := g.Check(ctx, "G9", "Thanks for responding. This shift has been filled.")
	require.NoError(t, err)
	assert.False(t, decision.Suppressed)
}

func TestGuard_HorizonExpiresWindow(t *testing.T) {
	history := &memoryHistory{}
	g, clk := newTestGuard(t, history, false)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, g.Record(ctx, "G9", "Reply YES to accept or NO to decline."))
	}
	clk.now = clk.now.Add(31 * time.Minute)

	decision, err := g.Check(ctx, "G9", "Reply YES to accept or NO to decline.")
	require.NoError(t, err)
	assert.False(t, decision.Suppressed)
	assert.Equal(t, 0, decision.Window)
}

func TestGuard_RebuildsWindowFromHistory(t *testing.T) {
	history := &memoryHistory{}
	seed, _ := newTestGuard(t, history, false)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, seed.Record(ctx, "G3", "Reply YES to accept or NO to decline."))
	}

	// Новый экземпляр с пустым кэшем, как после перезапуска
	restarted, _ := newTestGuard(t, history, true)
	decision, err := restarted.Check(ctx, "G3", "Reply YES to accept or NO to decline.")
	require.NoError(t, err)
	assert.True(t, decision.Suppressed)

	loads := history.loads
	_, err = restarted.Check(ctx, "G3", "Reply YES to accept or NO to decline.")
	require.NoError(t, err)
	assert.Equal(t, loads, history.loads, "second check is served from cache")
}

func TestGuard_PluggableSimilarity(t *testing.T) {
	history := &memoryHistory{}
	cfg := testConfig()
	never := func(a, b string) float64 { return 0 }
	g := NewGuard(history, nil, cfg, logger.NewDiscardLogger(), WithSimilarity(never))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, g.Record(ctx, "G1", "same"))
	}
	decision, err := g.Check(ctx, "G1", "same")
	require.NoError(t, err)
	assert.False(t, decision.Suppressed)
}
