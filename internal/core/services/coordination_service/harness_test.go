package coordination_service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/suchimauz/shift-coverage-coordinator/internal/adapters/out/cache"
	"github.com/suchimauz/shift-coverage-coordinator/internal/adapters/out/logger"
	"github.com/suchimauz/shift-coverage-coordinator/internal/adapters/out/storage"
	"github.com/suchimauz/shift-coverage-coordinator/internal/config"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/services/ranking_service"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/services/repetition_guard"
)

type fakeDirectory struct {
	mu         sync.Mutex
	candidates []domain.CandidateProfile
	err        error
	calls      int
}

func (d *fakeDirectory) QueryCandidates(ctx context.Context, query domain.CandidateQuery) ([]domain.CandidateProfile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.candidates, nil
}

type fakeChannel struct {
	mu    sync.Mutex
	sent  []domain.OutboundMessage
	fail  map[string]error
	calls map[string]int
	seq   int

	// вызывается после успешной отправки, вне блокировки
	afterSend func(msg domain.OutboundMessage)
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		fail:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (c *fakeChannel) Send(ctx context.Context, msg domain.OutboundMessage) (string, error) {
	c.mu.Lock()
	c.calls[msg.Recipient]++
	if err, ok := c.fail[msg.Recipient]; ok {
		c.mu.Unlock()
		return "", err
	}
	c.seq++
	c.sent = append(c.sent, msg)
	deliveryID := fmt.Sprintf("dlv-%d", c.seq)
	hook := c.afterSend
	c.mu.Unlock()

	if hook != nil {
		hook(msg)
	}
	return deliveryID, nil
}

func (c *fakeChannel) callsTo(recipient string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[recipient]
}

func (c *fakeChannel) failFor(recipient string, err error) {
	c.mu.Lock()
	c.fail[recipient] = err
	c.mu.Unlock()
}

func (c *fakeChannel) sentTo(recipient string) []domain.OutboundMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var result []domain.OutboundMessage
	for _, msg := range c.sent {
		if msg.Recipient == recipient {
			result = append(result, msg)
		}
	}
	return result
}

func (c *fakeChannel) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type fakeNotifier struct {
	mu            sync.Mutex
	notifications []domain.Notification
}

func (n *fakeNotifier) Notify(ctx context.Context, notification domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, notification)
	return nil
}

func (n *fakeNotifier) byKind(kind domain.NotificationKind) []domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var result []domain.Notification
	for _, item := range n.notifications {
		if item.Kind == kind {
			result = append(result, item)
		}
	}
	return result
}

type fakeTimer struct {
	mu        sync.Mutex
	armed     map[uuid.UUID]int
	deadlines map[uuid.UUID]time.Time
	cancelled map[uuid.UUID]bool
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{
		armed:     make(map[uuid.UUID]int),
		deadlines: make(map[uuid.UUID]time.Time),
		cancelled: make(map[uuid.UUID]bool),
	}
}

func (t *fakeTimer) Arm(shiftID uuid.UUID, tier int, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armed[shiftID] = tier
	t.deadlines[shiftID] = at
}

func (t *fakeTimer) Cancel(shiftID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled[shiftID] = true
}

type harness struct {
	service   *CoordinationService
	store     *storage.SQLAdapter
	directory *fakeDirectory
	channel   *fakeChannel
	notifier  *fakeNotifier
	timer     *fakeTimer

	mu  sync.Mutex
	now time.Time
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	h.now = h.now.Add(d)
	h.mu.Unlock()
}

// 07:45 в понедельник, 2 марта 2026
var callOffTime = time.Date(2026, 3, 2, 7, 45, 0, 0, time.UTC)

func testConfig(t *testing.T) *config.Config {
	cfg := &config.Config{}
	cfg.App.Timezone = "UTC"
	cfg.Storage.Driver = "sqlite3"
	cfg.Storage.DSN = filepath.Join(t.TempDir(), "coordinator.db")
	cfg.Channel.Timeout = time.Second
	cfg.Cache.Enabled = true
	cfg.Cache.CandidateSize = 64
	cfg.Cache.CandidateTTL = time.Minute
	cfg.Cache.WindowSize = 64
	cfg.Outreach.Concurrency = 4
	cfg.Outreach.MaxSendAttempts = 3
	cfg.Outreach.BackoffBase = time.Millisecond
	cfg.Outreach.BackoffMax = time.Millisecond
	cfg.Outreach.OpenGracePeriod = time.Minute
	cfg.Guard.WindowSize = 3
	cfg.Guard.Threshold = 0.85
	cfg.Guard.Horizon = 30 * time.Minute
	cfg.Meltdown.MaxFailures = 10
	cfg.Meltdown.Window = 5 * time.Minute
	cfg.Ranking.SkillWeight = 0.35
	cfg.Ranking.ProximityWeight = 0.25
	cfg.Ranking.ReliabilityWeight = 0.25
	cfg.Ranking.AvailabilityWeight = 0.15
	return cfg
}

func newHarness(t *testing.T, cfg *config.Config, candidates ...domain.CandidateProfile) *harness {
	t.Helper()
	if cfg == nil {
		cfg = testConfig(t)
	}
	log := logger.NewDiscardLogger()

	store, err := storage.NewSQLAdapter(cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cacheAdapter, err := cache.NewCacheAdapter(cfg, log)
	require.NoError(t, err)

	tiers, err := config.NewTierPolicies(domain.DefaultTierPolicies())
	require.NoError(t, err)

	h := &harness{
		store:     store,
		directory: &fakeDirectory{candidates: candidates},
		channel:   newFakeChannel(),
		notifier:  &fakeNotifier{},
		timer:     newFakeTimer(),
		now:       callOffTime,
	}

	guard := repetition_guard.NewGuard(store, cacheAdapter, cfg, log, repetition_guard.WithClock(h.clock))
	ranker := ranking_service.NewRankingService(h.directory, cacheAdapter, cfg, log)

	h.service = NewCoordinationService(Dependencies{
		Store:    store,
		Ranker:   ranker,
		Channel:  h.channel,
		Guard:    guard,
		Notifier: h.notifier,
		Timer:    h.timer,
		Tiers:    tiers,
	}, cfg, log)
	h.service.now = h.clock
	h.service.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return h
}

func candidate(id string, reliability float64, languages ...string) domain.CandidateProfile {
	return domain.CandidateProfile{
		ID:          id,
		Name:        "Caregiver " + id,
		Phone:       "+1555" + id,
		Skills:      []string{"HHA"},
		Languages:   languages,
		Home:        domain.Location{Lat: 40.7128, Lon: -74.0060},
		Reliability: domain.Reliability{AcceptRate: reliability, OnTimeRate: reliability},
	}
}

func callOff(shiftRef string) domain.CallOff {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return domain.CallOff{
		CaregiverID:      "G1",
		ShiftRef:         shiftRef,
		ClientID:         "C-77",
		StartTime:        start,
		EndTime:          start.Add(3 * time.Hour),
		RequiredSkills:   []string{"HHA"},
		RequiredLanguage: "es",
		Location:         domain.Location{Lat: 40.7128, Lon: -74.0060},
		Reason:           "sick",
		DetectedAt:       callOffTime,
	}
}

func (h *harness) attemptFor(t *testing.T, shiftID uuid.UUID, candidateID string, tier int) domain.OutreachAttempt {
	t.Helper()
	attempts, err := h.store.ListAttempts(context.Background(), shiftID)
	require.NoError(t, err)
	for _, a := range attempts {
		if a.CandidateID == candidateID && a.Tier == tier {
			return a
		}
	}
	t.Fatalf("no attempt for %s at tier %d", candidateID, tier)
	return domain.OutreachAttempt{}
}

func (h *harness) reply(attempt domain.OutreachAttempt, providerMessageID string, text string) (domain.EventOutcome, error) {
	return h.service.HandleChannelEvent(context.Background(), domain.ChannelEvent{
		ProviderMessageID:    providerMessageID,
		AttemptCorrelationID: attempt.ID.String(),
		RawTextOrDTMF:        text,
		ReceivedAt:           callOffTime.Add(7 * time.Minute),
	})
}
