package timer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/suchimauz/shift-coverage-coordinator/internal/config"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/ports/in"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/ports/out"
)

type armedTimer struct {
	timer *time.Timer
	seq   uint64
}

// WaveTimer взводит таймеры истечения волн внутри процесса и периодически
// догоняет сохраненные дедлайны, поэтому перезапуск не теряет волны.
type WaveTimer struct {
	mu      sync.Mutex
	timers  map[uuid.UUID]armedTimer
	seq     uint64
	useCase in.CoordinationUseCase

	interval time.Duration
	logger   out.LoggerPort
	now      func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWaveTimer(cfg *config.Config, logger out.LoggerPort) *WaveTimer {
	interval := cfg.Outreach.SweepInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &WaveTimer{
		timers:   make(map[uuid.UUID]armedTimer),
		interval: interval,
		logger:   logger.WithModule("WaveTimer"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Bind подключает обработчик. Таймер создается раньше сервиса,
// которому он нужен как зависимость.
func (t *WaveTimer) Bind(useCase in.CoordinationUseCase) {
	t.mu.Lock()
	t.useCase = useCase
	t.mu.Unlock()
}

func (t *WaveTimer) Arm(shiftID uuid.UUID, tier int, at time.Time) {
	delay := at.Sub(t.now())
	if delay < 0 {
		delay = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.timers[shiftID]; ok {
		existing.timer.Stop()
	}
	t.seq++
	seq := t.seq
	t.timers[shiftID] = armedTimer{
		timer: time.AfterFunc(delay, func() { t.fire(shiftID, tier, seq) }),
		seq:   seq,
	}

	t.logger.Debug("timer.armed", out.LogFields{
		"shiftId": shiftID,
		"tier":    tier,
		"delay":   delay.String(),
	})
}

func (t *WaveTimer) Cancel(shiftID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if armed, ok := t.timers[shiftID]; ok {
		armed.timer.Stop()
		delete(t.timers, shiftID)
	}
}

func (t *WaveTimer) fire(shiftID uuid.UUID, tier int, seq uint64) {
	t.mu.Lock()
	if armed, ok := t.timers[shiftID]; ok && armed.seq == seq {
		delete(t.timers, shiftID)
	}
	useCase := t.useCase
	t.mu.Unlock()

	if useCase == nil {
		return
	}
	if err := useCase.HandleWaveExpiry(context.Background(), shiftID, tier); err != nil {
		// Sweeper подберет дедлайн при следующем проходе
		t.logger.Error("timer.expiry.failed", out.LogFields{
			"shiftId": shiftID,
			"tier":    tier,
			"error":   err.Error(),
		})
	}
}

// Start запускает периодический проход по просроченным дедлайнам.
// Первый проход выполняется сразу.
func (t *WaveTimer) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		t.sweep(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.sweep(ctx)
			}
		}
	}()

	t.logger.Info("timer.sweeper.started", out.LogFields{
		"interval": t.interval.String(),
	})
}

func (t *WaveTimer) sweep(ctx context.Context) {
	t.mu.Lock()
	useCase := t.useCase
	t.mu.Unlock()
	if useCase == nil {
		return
	}

	if err := useCase.SweepDue(ctx, t.now()); err != nil {
		t.logger.Error("timer.sweep.failed", out.LogFields{
			"error": err.Error(),
		})
	}
}

// Stop останавливает sweeper и все взведенные таймеры.
func (t *WaveTimer) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()

	t.mu.Lock()
	defer t.mu.Unlock()
	for id, armed := range t.timers {
		armed.timer.Stop()
		delete(t.timers, id)
	}
}

func (t *WaveTimer) armed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}
