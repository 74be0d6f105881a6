package coordination_service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/ports/out"
)

// HandleWaveExpiry срабатывает по таймеру волны tier. Если слот уже ушел
// с этой волны, вызов ничего не делает, поэтому повторные срабатывания безопасны.
func (s *CoordinationService) HandleWaveExpiry(ctx context.Context, shiftID uuid.UUID, tier int) error {
	slot, err := s.store.GetShiftSlot(ctx, shiftID)
	if err != nil {
		return err
	}
	if slot.Status != domain.ShiftStatusWaveActive || slot.Tier != tier {
		s.logger.Debug("wave.expiry.stale", out.LogFields{
			"shiftId": shiftID,
			"tier":    tier,
			"status":  slot.StatusLabel(),
		})
		return nil
	}

	s.logger.Info("wave.expired", out.LogFields{
		"shiftId": shiftID,
		"tier":    tier,
	})

	expect := domain.ShiftExpectation{Status: domain.ShiftStatusWaveActive, Tier: tier}
	if tier >= s.tiers.MaxTier() {
		_, err := s.escalate(ctx, slot, expect, domain.UrgencyHigh, fmt.Sprintf("no acceptance after %d waves", tier))
		return err
	}
	return s.advanceToWave(ctx, slot, expect, tier+1)
}

// escalate переводит слот в ESCALATED и один раз уведомляет дежурного
// с полной историей попыток.
func (s *CoordinationService) escalate(ctx context.Context, slot *domain.ShiftSlot, expect domain.ShiftExpectation, urgency domain.Urgency, reason string) (bool, error) {
	if err := domain.ValidateShiftTransition(expect.Status, expect.Tier, domain.ShiftStatusEscalated, slot.Tier); err != nil {
		return false, err
	}

	swapped, err := s.store.CompareAndSwapShift(ctx, slot.ID, expect, domain.ShiftState{
		Status: domain.ShiftStatusEscalated,
		Tier:   slot.Tier,
	})
	if err != nil {
		return false, fmt.Errorf("shift.escalate.write_failed: %w", err)
	}
	if !swapped {
		s.logger.Debug("shift.escalate.skipped", out.LogFields{
			"shiftId": slot.ID,
			"from":    expect.Status,
		})
		return false, nil
	}

	slot.Status = domain.ShiftStatusEscalated
	slot.WaveStartedAt = nil
	slot.WaveExpiresAt = nil
	slot.Version++

	s.timer.Cancel(slot.ID)
	s.metrics.Escalated(domain.NotificationKindEscalated)

	s.logger.Warn("shift.escalated", out.LogFields{
		"shiftId": slot.ID,
		"tier":    slot.Tier,
		"urgency": urgency,
		"reason":  reason,
	})

	notification, err := s.escalationNotification(ctx, slot, urgency, reason)
	if err != nil {
		return true, err
	}
	s.notifyOnce(ctx, domain.TransitionKeyEscalated(slot.Tier), notification)
	return true, nil
}

func (s *CoordinationService) escalationNotification(ctx context.Context, slot *domain.ShiftSlot, urgency domain.Urgency, reason string) (domain.Notification, error) {
	attempts, err := s.store.ListAttempts(ctx, slot.ID)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("shift.escalate.history_failed: %w", err)
	}
	responses, err := s.store.ListResponses(ctx, slot.ID)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("shift.escalate.history_failed: %w", err)
	}

	history := buildHistory(attempts, responses)
	return domain.Notification{
		ShiftID: slot.ID,
		Kind:    domain.NotificationKindEscalated,
		Urgency: urgency,
		Summary: escalationSummary(slot, reason, history, s.location),
		Waves:   slot.Tier,
		History: history,
	}, nil
}

// ExpireEscalated закрывает эскалированный слот, смена которого уже началась.
// Ручное назначение после этого по-прежнему возможно.
func (s *CoordinationService) ExpireEscalated(ctx context.Context, shiftID uuid.UUID) error {
	slot, err := s.store.GetShiftSlot(ctx, shiftID)
	if err != nil {
		return err
	}
	return s.expireEscalated(ctx, slot, s.now())
}

func (s *CoordinationService) expireEscalated(ctx context.Context, slot *domain.ShiftSlot, now time.Time) error {
	if slot.Status != domain.ShiftStatusEscalated || now.Before(slot.StartTime) {
		return nil
	}

	swapped, err := s.store.CompareAndSwapShift(ctx, slot.ID,
		domain.ShiftExpectation{Status: domain.ShiftStatusEscalated},
		domain.ShiftState{Status: domain.ShiftStatusUnfilledExpired, Tier: slot.Tier},
	)
	if err != nil {
		return fmt.Errorf("shift.expire.write_failed: %w", err)
	}
	if !swapped {
		return nil
	}
	if _, err := s.store.RecordTransition(ctx, slot.ID, domain.TransitionKeyExpired); err != nil {
		s.logger.Warn("shift.expire.transition_failed", out.LogFields{
			"shiftId": slot.ID,
			"error":   err.Error(),
		})
	}

	s.logger.Warn("shift.unfilled_expired", out.LogFields{
		"shiftId":  slot.ID,
		"shiftRef": slot.ShiftRef,
		"start":    slot.StartTime,
	})
	return nil
}

// SweepDue догоняет таймеры по сохраненным дедлайнам: после перезапуска
// или если таймер другого инстанса потерян.
func (s *CoordinationService) SweepDue(ctx context.Context, now time.Time) error {
	var errs []error

	due, err := s.store.ListDueWaves(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("sweep.waves.list_failed: %w", err))
	}
	for _, slot := range due {
		if err := s.HandleWaveExpiry(ctx, slot.ID, slot.Tier); err != nil {
			errs = append(errs, err)
		}
	}

	started, err := s.store.ListStartedEscalations(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("sweep.escalations.list_failed: %w", err))
	}
	for _, slot := range started {
		if err := s.expireEscalated(ctx, slot, now); err != nil {
			errs = append(errs, err)
		}
	}

	// Слоты, где первая волна не стартовала из-за сбоя между созданием и рассылкой
	open, err := s.store.ListShiftsByStatus(ctx, domain.ShiftStatusOpen)
	if err != nil {
		errs = append(errs, fmt.Errorf("sweep.open.list_failed: %w", err))
	}
	for _, slot := range open {
		if slot.CreatedAt.Add(s.openGrace).After(now) {
			continue
		}
		expect := domain.ShiftExpectation{Status: domain.ShiftStatusOpen, Version: slot.Version}
		if err := s.advanceToWave(ctx, slot, expect, 1); err != nil {
			errs = append(errs, err)
		}
	}

	if len(due) > 0 || len(started) > 0 {
		s.logger.Info("sweep.completed", out.LogFields{
			"dueWaves":    len(due),
			"escalations": len(started),
		})
	}
	return errors.Join(errs...)
}
