package coordination_service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/ports/out"
	"golang.org/x/sync/errgroup"
)

// advanceToWave переводит слот из состояния expect в WAVE_ACTIVE(tier)
// и рассылает волну. Если условная запись не прошла, другой обработчик
// уже сдвинул слот, и вызов ничего не делает.
func (s *CoordinationService) advanceToWave(ctx context.Context, slot *domain.ShiftSlot, expect domain.ShiftExpectation, tier int) error {
	if s.isHalted(ctx) {
		_, err := s.escalate(ctx, slot, expect, domain.UrgencyCritical, "automated outreach is halted")
		return err
	}

	policy, ok := s.tiers.Policy(tier)
	if !ok {
		_, err := s.escalate(ctx, slot, expect, domain.UrgencyHigh, fmt.Sprintf("no outreach policy for wave %d", tier))
		return err
	}

	if err := domain.ValidateShiftTransition(expect.Status, expect.Tier, domain.ShiftStatusWaveActive, tier); err != nil {
		return err
	}

	startedAt := s.now()
	expiresAt := startedAt.Add(policy.Timeout)
	swapped, err := s.store.CompareAndSwapShift(ctx, slot.ID, expect, domain.ShiftState{
		Status:        domain.ShiftStatusWaveActive,
		Tier:          tier,
		WaveStartedAt: &startedAt,
		WaveExpiresAt: &expiresAt,
	})
	if err != nil {
		return fmt.Errorf("wave.advance.write_failed: %w", err)
	}
	if !swapped {
		s.logger.Debug("wave.advance.skipped", out.LogFields{
			"shiftId": slot.ID,
			"from":    expect.Status,
			"tier":    tier,
		})
		return nil
	}

	fromTier := slot.Tier
	slot.Status = domain.ShiftStatusWaveActive
	slot.Tier = tier
	slot.WaveStartedAt = &startedAt
	slot.WaveExpiresAt = &expiresAt
	slot.Version++

	s.logger.Info("wave.started", out.LogFields{
		"shiftId":   slot.ID,
		"tier":      tier,
		"channel":   policy.Channel,
		"expiresAt": expiresAt,
	})

	s.timer.Arm(slot.ID, tier, expiresAt)

	if tier > 1 {
		s.notifyOnce(ctx, domain.TransitionKeyAdvance(fromTier, tier), domain.Notification{
			ShiftID: slot.ID,
			Kind:    domain.NotificationKindTierAdvance,
			Urgency: domain.UrgencyLow,
			Summary: tierAdvanceSummary(slot, fromTier, policy, s.location),
			Waves:   fromTier,
		})
	}

	// Кандидаты прошлых волн исключаются, повторной попытки им не будет
	exclude, err := s.store.ListAttemptedCandidates(ctx, slot.ID)
	if err != nil {
		return fmt.Errorf("wave.exclusions.load_failed: %w", err)
	}

	ranked, err := s.ranker.Rank(ctx, slot, policy, exclude)
	if err != nil {
		s.logger.Warn("wave.ranking.degraded", out.LogFields{
			"shiftId": slot.ID,
			"tier":    tier,
			"ranked":  len(ranked),
			"error":   err.Error(),
		})
	}
	if len(ranked) == 0 {
		s.logger.Warn("wave.no_candidates", out.LogFields{
			"shiftId": slot.ID,
			"tier":    tier,
		})
		return nil
	}

	s.sendWave(ctx, slot, policy, ranked)
	return nil
}

// sendWave рассылает попытки параллельно. Ошибка доставки по одному кандидату
// не прерывает волну. Если слот ушел с волны (назначен, эскалирован) или ctx
// отменен, оставшимся кандидатам сообщения не отправляются.
func (s *CoordinationService) sendWave(ctx context.Context, slot *domain.ShiftSlot, policy domain.TierPolicy, ranked []domain.ScoredCandidate) {
	g, waveCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, candidate := range ranked {
		g.Go(func() error {
			if err := waveCtx.Err(); err != nil {
				return err
			}
			// Уже начатая отправка не обрывается из-за закрытия волны
			return s.dispatchAttempt(ctx, slot, policy, candidate)
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, domain.ErrWaveNotActive) {
			s.logger.Info("wave.closed_early", out.LogFields{
				"shiftId": slot.ID,
				"tier":    policy.Tier,
				"reason":  err.Error(),
			})
			return
		}
		s.logger.Warn("wave.interrupted", out.LogFields{
			"shiftId": slot.ID,
			"tier":    policy.Tier,
			"error":   err.Error(),
		})
		return
	}

	s.logger.Info("wave.sent", out.LogFields{
		"shiftId":    slot.ID,
		"tier":       policy.Tier,
		"candidates": len(ranked),
	})
}

// dispatchAttempt возвращает ошибку только если волна закрылась,
// остальные сбои фиксируются в статусе попытки.
func (s *CoordinationService) dispatchAttempt(ctx context.Context, slot *domain.ShiftSlot, policy domain.TierPolicy, candidate domain.ScoredCandidate) error {
	profile := candidate.Profile
	text := outreachText(slot, policy.Channel, s.location)
	attempt := &domain.OutreachAttempt{
		ID:             uuid.New(),
		ShiftID:        slot.ID,
		CandidateID:    profile.ID,
		Channel:        policy.Channel,
		Tier:           policy.Tier,
		Recipient:      strings.TrimSpace(profile.Phone),
		Message:        text,
		IdempotencyKey: domain.AttemptIdempotencyKey(slot.ID, profile.ID, policy.Tier),
		DeliveryStatus: domain.DeliveryStatusPending,
		CreatedAt:      s.now(),
	}

	logger := s.logger.WithFields(out.LogFields{
		"shiftId":     slot.ID,
		"candidateId": profile.ID,
		"tier":        policy.Tier,
	})

	inserted, err := s.store.InsertAttempt(ctx, attempt)
	if errors.Is(err, domain.ErrWaveNotActive) {
		logger.Info("attempt.skipped.wave_closed", out.LogFields{
			"reason": err.Error(),
		})
		return err
	}
	if err != nil {
		logger.Error("attempt.insert_failed", out.LogFields{
			"error": err.Error(),
		})
		return nil
	}
	if !inserted {
		logger.Debug("attempt.duplicate", out.LogFields{
			"idempotencyKey": attempt.IdempotencyKey,
		})
		return nil
	}

	if attempt.Recipient == "" {
		s.finishAttempt(ctx, attempt, domain.DeliveryStatusInvalid, "", 0)
		return nil
	}

	decision, err := s.guard.Check(ctx, profile.ID, text)
	if err != nil {
		logger.Warn("attempt.guard.check_failed", out.LogFields{
			"error": err.Error(),
		})
	} else if decision.Suppressed {
		s.finishAttempt(ctx, attempt, domain.DeliveryStatusSuppressed, "", 0)
		s.escalateInteraction(ctx, slot, attempt, "repeated outreach message was suppressed")
		return nil
	}

	deliveryID, sendAttempts, err := s.send(ctx, domain.OutboundMessage{
		Channel:       attempt.Channel,
		Recipient:     attempt.Recipient,
		Text:          text,
		CorrelationID: attempt.ID.String(),
	}, s.attemptStillWanted(attempt))
	switch {
	case err == nil:
		s.finishAttempt(ctx, attempt, domain.DeliveryStatusSent, deliveryID, sendAttempts)
		s.recordOutbound(ctx, profile.ID, text)
	case errors.Is(err, domain.ErrWaveNotActive):
		s.finishAttempt(ctx, attempt, domain.DeliveryStatusSuperseded, "", sendAttempts)
		return err
	case errors.Is(err, domain.ErrRecipientInvalid):
		s.finishAttempt(ctx, attempt, domain.DeliveryStatusInvalid, "", sendAttempts)
	default:
		s.finishAttempt(ctx, attempt, domain.DeliveryStatusFailed, "", sendAttempts)
	}
	return nil
}

func (s *CoordinationService) finishAttempt(ctx context.Context, attempt *domain.OutreachAttempt, status domain.DeliveryStatus, deliveryID string, sendAttempts int) {
	attempt.DeliveryStatus = status
	attempt.DeliveryID = deliveryID
	attempt.SendAttempts = sendAttempts

	if err := s.store.UpdateAttemptDelivery(ctx, attempt.ID, status, deliveryID, sendAttempts); err != nil {
		s.logger.Error("attempt.update_failed", out.LogFields{
			"attemptId": attempt.ID,
			"status":    status,
			"error":     err.Error(),
		})
	}
	s.metrics.AttemptFinished(attempt.Channel, status)

	s.logger.Info("attempt.finished", out.LogFields{
		"shiftId":      attempt.ShiftID,
		"attemptId":    attempt.ID,
		"candidateId":  attempt.CandidateID,
		"channel":      attempt.Channel,
		"tier":         attempt.Tier,
		"status":       status,
		"sendAttempts": sendAttempts,
	})
}
