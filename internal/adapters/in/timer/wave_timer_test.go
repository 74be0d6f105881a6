package timer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suchimauz/shift-coverage-coordinator/internal/adapters/out/logger"
	"github.com/suchimauz/shift-coverage-coordinator/internal/config"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
)

type expiry struct {
	shiftID uuid.UUID
	tier    int
}

type fakeUseCase struct {
	mu       sync.Mutex
	expiries []expiry
	sweeps   int
	fired    chan expiry
}

func newFakeUseCase() *fakeUseCase {
	return &fakeUseCase{fired: make(chan expiry, 8)}
}

func (f *fakeUseCase) ReportCallOff(ctx context.Context, callOff domain.CallOff) (*domain.ShiftSlot, bool, error) {
	return nil, false, nil
}

func (f *fakeUseCase) HandleChannelEvent(ctx context.Context, event domain.ChannelEvent) (domain.EventOutcome, error) {
	return "", nil
}

func (f *fakeUseCase) HandleWaveExpiry(ctx context.Context, shiftID uuid.UUID, tier int) error {
	f.mu.Lock()
	f.expiries = append(f.expiries, expiry{shiftID, tier})
	f.mu.Unlock()
	f.fired <- expiry{shiftID, tier}
	return nil
}

func (f *fakeUseCase) ExpireEscalated(ctx context.Context, shiftID uuid.UUID) error {
	return nil
}

func (f *fakeUseCase) AssignManually(ctx context.Context, shiftID uuid.UUID, candidateID string) (*domain.Assignment, error) {
	return nil, nil
}

func (f *fakeUseCase) GetShiftOverview(ctx context.Context, shiftID uuid.UUID) (*domain.ShiftOverview, error) {
	return nil, nil
}

func (f *fakeUseCase) ResetMeltdown(ctx context.Context) error {
	return nil
}

func (f *fakeUseCase) SweepDue(ctx context.Context, now time.Time) error {
	f.mu.Lock()
	f.sweeps++
	f.mu.Unlock()
	return nil
}

func (f *fakeUseCase) sweepCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sweeps
}

func newTestTimer(interval time.Duration) *WaveTimer {
	cfg := &config.Config{}
	cfg.Outreach.SweepInterval = interval
	return NewWaveTimer(cfg, logger.NewDiscardLogger())
}

func TestWaveTimer_Fires(t *testing.T) {
	useCase := newFakeUseCase()
	timer := newTestTimer(time.Hour)
	timer.Bind(useCase)
	defer timer.Stop()

	shiftID := uuid.New()
	timer.Arm(shiftID, 2, time.Now().Add(20*time.Millisecond))

	select {
	case got := <-useCase.fired:
		assert.Equal(t, expiry{shiftID, 2}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
	assert.Eventually(t, func() bool { return timer.armed() == 0 }, time.Second, 10*time.Millisecond)
}

func TestWaveTimer_RearmReplaces(t *testing.T) {
	useCase := newFakeUseCase()
	timer := newTestTimer(time.Hour)
	timer.Bind(useCase)
	defer timer.Stop()

	shiftID := uuid.New()
	timer.Arm(shiftID, 1, time.Now().Add(time.Hour))
	timer.Arm(shiftID, 2, time.Now().Add(10*time.Millisecond))
	require.Equal(t, 1, timer.armed())

	select {
	case got := <-useCase.fired:
		assert.Equal(t, 2, got.tier)
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestWaveTimer_Cancel(t *testing.T) {
	useCase := newFakeUseCase()
	timer := newTestTimer(time.Hour)
	timer.Bind(useCase)
	defer timer.Stop()

	shiftID := uuid.New()
	timer.Arm(shiftID, 1, time.Now().Add(30*time.Millisecond))
	timer.Cancel(shiftID)
	assert.Equal(t, 0, timer.armed())

	select {
	case <-useCase.fired:
		t.Fatal("cancelled timer fired")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWaveTimer_Sweeper(t *testing.T) {
	useCase := newFakeUseCase()
	timer := newTestTimer(10 * time.Millisecond)
	timer.Bind(useCase)

	timer.Start(context.Background())
	assert.Eventually(t, func() bool { return useCase.sweepCount() >= 3 }, 2*time.Second, 5*time.Millisecond)

	timer.Stop()
	stopped := useCase.sweepCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, useCase.sweepCount())
}
