package coordination_service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/ports/out"
)

func (s *CoordinationService) isHalted(ctx context.Context) bool {
	state, err := s.store.GetEngineState(ctx)
	if err != nil {
		s.logger.Warn("meltdown.state.read_failed", out.LogFields{
			"error": err.Error(),
		})
		return false
	}
	return state.Halted
}

// recordSendFailure пишет отказ в общий для всех инстансов счетчик хранилища
// и останавливает автоматику, когда отказов в окне больше порога.
func (s *CoordinationService) recordSendFailure(ctx context.Context, cause error) {
	ctx = context.WithoutCancel(ctx)
	now := s.now()
	count, err := s.store.RecordSendFailure(ctx, cause.Error(), now, now.Add(-s.meltdownWindow))
	if err != nil {
		s.logger.Error("meltdown.failure.record_failed", out.LogFields{
			"error": err.Error(),
		})
		return
	}
	if count <= s.meltdownMaxFailures {
		return
	}
	reason := fmt.Sprintf("%d failed sends within %s, last error: %s", count, s.meltdownWindow, cause.Error())
	s.tripMeltdown(ctx, reason)
}

// tripMeltdown останавливает автоматику для всех инстансов и сразу
// эскалирует все слоты, по которым идет обзвон.
func (s *CoordinationService) tripMeltdown(ctx context.Context, reason string) {
	now := s.now()
	changed, err := s.store.SetEngineHalted(ctx, true, reason, now)
	if err != nil {
		s.logger.Error("meltdown.halt.write_failed", out.LogFields{
			"error": err.Error(),
		})
		return
	}
	s.clearSendFailures(ctx)
	if !changed {
		return
	}

	s.metrics.MeltdownTripped()
	s.logger.Error("meltdown.tripped", out.LogFields{
		"reason": reason,
	})

	if err := s.notifier.Notify(ctx, domain.Notification{
		ShiftID: uuid.Nil,
		Kind:    domain.NotificationKindMeltdown,
		Urgency: domain.UrgencyCritical,
		Summary: meltdownSummary(reason),
		SentAt:  now,
	}); err != nil {
		s.logger.Error("meltdown.notify_failed", out.LogFields{
			"error": err.Error(),
		})
	}

	for _, status := range []domain.ShiftStatus{domain.ShiftStatusWaveActive, domain.ShiftStatusOpen} {
		slots, err := s.store.ListShiftsByStatus(ctx, status)
		if err != nil {
			s.logger.Error("meltdown.shifts.list_failed", out.LogFields{
				"status": status,
				"error":  err.Error(),
			})
			continue
		}
		for _, slot := range slots {
			expect := domain.ShiftExpectation{Status: slot.Status, Tier: slot.Tier}
			if _, err := s.escalate(ctx, slot, expect, domain.UrgencyCritical, "automated outreach halted: "+reason); err != nil {
				s.logger.Error("meltdown.escalate_failed", out.LogFields{
					"shiftId": slot.ID,
					"error":   err.Error(),
				})
			}
		}
	}
}

func (s *CoordinationService) clearSendFailures(ctx context.Context) {
	if err := s.store.ClearSendFailures(ctx); err != nil {
		s.logger.Warn("meltdown.failures.clear_failed", out.LogFields{
			"error": err.Error(),
		})
	}
}

// ResetMeltdown снимает остановку автоматики. Уже эскалированные слоты
// остаются у людей.
func (s *CoordinationService) ResetMeltdown(ctx context.Context) error {
	changed, err := s.store.SetEngineHalted(ctx, false, "", s.now())
	if err != nil {
		return fmt.Errorf("meltdown.reset_failed: %w", err)
	}
	s.clearSendFailures(ctx)

	s.logger.Info("meltdown.reset", out.LogFields{
		"changed": changed,
	})
	return nil
}
