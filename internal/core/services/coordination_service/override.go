package coordination_service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/ports/out"
)

// Ручное назначение возможно из любого незаполненного статуса.
var manualAssignStatuses = []domain.ShiftStatus{
	domain.ShiftStatusOpen,
	domain.ShiftStatusWaveActive,
	domain.ShiftStatusEscalated,
	domain.ShiftStatusUnfilledExpired,
}

// AssignManually записывает назначение в обход волн через тот же
// уникальный guard по shift_id, что и автоматическое принятие.
func (s *CoordinationService) AssignManually(ctx context.Context, shiftID uuid.UUID, candidateID string) (*domain.Assignment, error) {
	candidateID = strings.TrimSpace(candidateID)
	if candidateID == "" {
		return nil, fmt.Errorf("%w: candidate_id is required", domain.ErrInvalidAssignment)
	}

	slot, err := s.store.GetShiftSlot(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	if slot.Status == domain.ShiftStatusFilled {
		return nil, domain.ErrAlreadyResolved
	}

	assignment := &domain.Assignment{
		ShiftID:     shiftID,
		CandidateID: candidateID,
		Source:      domain.AssignmentSourceManual,
		ResolvedAt:  s.now(),
	}
	err = s.store.ResolveAssignment(ctx, assignment, domain.ResolveCondition{Statuses: manualAssignStatuses})
	if err != nil {
		if !errors.Is(err, domain.ErrAlreadyResolved) {
			s.logger.Error("shift.assign.manual_failed", out.LogFields{
				"shiftId": shiftID,
				"error":   err.Error(),
			})
		}
		return nil, err
	}

	s.timer.Cancel(shiftID)
	s.metrics.TimeToFill(assignment.ResolvedAt.Sub(slot.CreatedAt))
	if _, err := s.store.SupersedePendingAttempts(ctx, shiftID, nil); err != nil {
		s.logger.Error("shift.assign.supersede_failed", out.LogFields{
			"shiftId": shiftID,
			"error":   err.Error(),
		})
	}

	s.logger.Info("shift.assigned.manual", out.LogFields{
		"shiftId":     shiftID,
		"candidateId": candidateID,
		"fromStatus":  slot.StatusLabel(),
	})
	return assignment, nil
}

func (s *CoordinationService) GetShiftOverview(ctx context.Context, shiftID uuid.UUID) (*domain.ShiftOverview, error) {
	slot, err := s.store.GetShiftSlot(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	attempts, err := s.store.ListAttempts(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	responses, err := s.store.ListResponses(ctx, shiftID)
	if err != nil {
		return nil, err
	}

	overview := &domain.ShiftOverview{
		Slot:      slot,
		Attempts:  attempts,
		Responses: responses,
	}
	assignment, err := s.store.GetAssignment(ctx, shiftID)
	switch {
	case err == nil:
		overview.Assignment = assignment
	case !errors.Is(err, domain.ErrAssignmentNotFound):
		return nil, err
	}
	return overview, nil
}
