package coordination_service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/suchimauz/shift-coverage-coordinator/internal/config"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/ports/out"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/services/repetition_guard"
)

type CandidateRanker interface {
	Rank(ctx context.Context, slot *domain.ShiftSlot, policy domain.TierPolicy, excludeIDs []string) ([]domain.ScoredCandidate, error)
}

type MessageGuard interface {
	Check(ctx context.Context, conversationKey string, text string) (repetition_guard.Decision, error)
	Record(ctx context.Context, conversationKey string, text string) error
}

type TierPolicySource interface {
	Policy(tier int) (domain.TierPolicy, bool)
	MaxTier() int
}

type Dependencies struct {
	Store    out.StorePort
	Ranker   CandidateRanker
	Channel  out.ChannelPort
	Guard    MessageGuard
	Notifier out.NotificationPort
	Timer    out.WaveTimerPort
	Metrics  out.MetricsPort
	Tiers    TierPolicySource
}

// CoordinationService ведет слот смены от call-off до назначения или эскалации.
// Своего состояния по слотам сервис не держит: любой переход - условная
// запись в хранилище, поэтому несколько инстансов могут работать параллельно.
type CoordinationService struct {
	store    out.StorePort
	ranker   CandidateRanker
	channel  out.ChannelPort
	guard    MessageGuard
	notifier out.NotificationPort
	timer    out.WaveTimerPort
	metrics  out.MetricsPort
	tiers    TierPolicySource

	concurrency     int
	maxSendAttempts int
	backoffBase     time.Duration
	backoffMax      time.Duration
	sendTimeout     time.Duration
	openGrace       time.Duration
	location        *time.Location

	meltdownMaxFailures int
	meltdownWindow      time.Duration

	logger out.LoggerPort
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewCoordinationService(deps Dependencies, cfg *config.Config, logger out.LoggerPort) *CoordinationService {
	s := &CoordinationService{
		store:    deps.Store,
		ranker:   deps.Ranker,
		channel:  deps.Channel,
		guard:    deps.Guard,
		notifier: deps.Notifier,
		timer:    deps.Timer,
		metrics:  deps.Metrics,
		tiers:    deps.Tiers,

		concurrency:     positiveOr(cfg.Outreach.Concurrency, 4),
		maxSendAttempts: positiveOr(cfg.Outreach.MaxSendAttempts, 3),
		backoffBase:     durationOr(cfg.Outreach.BackoffBase, 500*time.Millisecond),
		backoffMax:      durationOr(cfg.Outreach.BackoffMax, 10*time.Second),
		sendTimeout:     durationOr(cfg.Channel.Timeout, 10*time.Second),
		openGrace:       durationOr(cfg.Outreach.OpenGracePeriod, time.Minute),
		location:        cfg.Location(),

		meltdownMaxFailures: positiveOr(cfg.Meltdown.MaxFailures, 10),
		meltdownWindow:      durationOr(cfg.Meltdown.Window, 5*time.Minute),

		logger: logger.WithModule("CoordinationService"),
		now:    func() time.Time { return time.Now().UTC() },
		sleep:  sleepContext,
	}

	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.timer == nil {
		s.timer = nopTimer{}
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	return s
}

func positiveOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(ctx context.Context, notification domain.Notification) error { return nil }

type nopTimer struct{}

func (nopTimer) Arm(shiftID uuid.UUID, tier int, at time.Time) {}
func (nopTimer) Cancel(shiftID uuid.UUID) {}

type nopMetrics struct{}

func (nopMetrics) CallOffReceived(created bool) {}
func (nopMetrics) AttemptFinished(channel domain.Channel, s domain.DeliveryStatus) {}
func (nopMetrics) AcceptResolved(won bool) {}
func (nopMetrics) Escalated(kind domain.NotificationKind) {}
func (nopMetrics) ReplySuppressed() {}
func (nopMetrics) MeltdownTripped() {}
func (nopMetrics) TimeToFill(d time.Duration) {}
