package repetition_guard

import (
	"context"
	"sync"
	"time"

	"github.com/suchimauz/shift-coverage-coordinator/internal/config"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/ports/out"
)

// Decision - результат проверки исходящего сообщения.
type Decision struct {
	Suppressed bool
	// Минимальная похожесть по окну, 0 если окно не заполнено
	MinScore float64
	Window   int
}

// Guard хранит по каждому разговору скользящее окно последних исходящих
// сообщений. Окно - производный кэш, при промахе оно восстанавливается
// из истории в хранилище.
type Guard struct {
	history    out.MessageHistoryPort
	cachePort  out.CachePort
	similarity SimilarityFunc
	windowSize int
	threshold  float64
	horizon    time.Duration
	logger     out.LoggerPort
	now        func() time.Time

	mu sync.Mutex
}

type Option func(*Guard)

func WithSimilarity(fn SimilarityFunc) Option {
	return func(g *Guard) {
		if fn != nil {
			g.similarity = fn
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		g.now = now
	}
}

func NewGuard(
	history out.MessageHistoryPort,
	cachePort out.CachePort,
	cfg *config.Config,
	logger out.LoggerPort,
	opts ...Option,
) *Guard {
	g := &Guard{
		history:    history,
		cachePort:  cachePort,
		similarity: CosineSimilarity,
		windowSize: cfg.Guard.WindowSize,
		threshold:  cfg.Guard.Threshold,
		horizon:    cfg.Guard.Horizon,
		logger:     logger.WithModule("RepetitionGuard"),
		now:        func() time.Time { return time.Now().UTC() },
	}
	if g.windowSize <= 0 {
		g.windowSize = 3
	}
	if g.threshold <= 0 {
		g.threshold = 0.85
	}
	if g.horizon <= 0 {
		g.horizon = 30 * time.Minute
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check решает, можно ли отправить text в разговор conversationKey.
// Отправка подавляется, только если окно заполнено и каждое сообщение
// в нем похоже на text сильнее порога.
func (g *Guard) Check(ctx context.Context, conversationKey string, text string) (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	window, err := g.window(ctx, conversationKey)
	if err != nil {
		return Decision{}, err
	}

	decision := Decision{Window: len(window)}
	if len(window) < g.windowSize {
		return decision, nil
	}

	minScore := 1.0
	for _, msg := range window {
		score := g.similarity(msg.Text, text)
		if score < minScore {
			minScore = score
		}
	}
	decision.MinScore = minScore
	decision.Suppressed = minScore > g.threshold

	if decision.Suppressed {
		g.logger.Warn("guard.send.suppressed", out.LogFields{
			"conversation": conversationKey,
			"minScore":     minScore,
			"window":       len(window),
		})
	}
	return decision, nil
}

// Record фиксирует фактически отправленное сообщение в истории и в окне.
func (g *Guard) Record(ctx context.Context, conversationKey string, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	msg := domain.SentMessage{
		ConversationKey: conversationKey,
		Text:            text,
		SentAt:          g.now(),
	}
	if err := g.history.AppendOutboundMessage(ctx, msg); err != nil {
		g.logger.Error("guard.history.append_failed", out.LogFields{
			"conversation": conversationKey,
			"error":        err.Error(),
		})
		return err
	}

	if g.cachePort == nil {
		return nil
	}
	window, ok := g.cachePort.GetWindow(ctx, conversationKey)
	if !ok {
		// Окно будет восстановлено из истории при следующей проверке
		return nil
	}
	window = append(window, msg)
	g.cachePort.StoreWindow(ctx, conversationKey, g.trim(window))
	return nil
}

func (g *Guard) window(ctx context.Context, conversationKey string) ([]domain.SentMessage, error) {
	if g.cachePort != nil {
		if window, ok := g.cachePort.GetWindow(ctx, conversationKey); ok {
			return g.trim(window), nil
		}
	}

	window, err := g.history.ListOutboundMessages(ctx, conversationKey, g.now().Add(-g.horizon), g.windowSize)
	if err != nil {
		g.logger.Error("guard.history.load_failed", out.LogFields{
			"conversation": conversationKey,
			"error":        err.Error(),
		})
		return nil, err
	}
	g.logger.Debug("guard.window.rebuilt", out.LogFields{
		"conversation": conversationKey,
		"size":         len(window),
	})

	if g.cachePort != nil {
		g.cachePort.StoreWindow(ctx, conversationKey, window)
	}
	return window, nil
}

// trim оставляет не больше windowSize последних сообщений в пределах горизонта.
func (g *Guard) trim(window []domain.SentMessage) []domain.SentMessage {
	since := g.now().Add(-g.horizon)
	fresh := make([]domain.SentMessage, 0, len(window))
	for _, msg := range window {
		if !msg.SentAt.Before(since) {
			fresh = append(fresh, msg)
		}
	}
	if len(fresh) > g.windowSize {
		fresh = fresh[len(fresh)-g.windowSize:]
	}
	return fresh
}
