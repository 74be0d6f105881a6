package coordination_service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/ports/out"
	"github.com/suchimauz/shift-coverage-coordinator/internal/utils"
)

// ReportCallOff создает слот для смены и сразу запускает первую волну.
// Повторный call-off по той же смене и дате возвращает существующий слот.
func (s *CoordinationService) ReportCallOff(ctx context.Context, callOff domain.CallOff) (*domain.ShiftSlot, bool, error) {
	if err := callOff.Validate(); err != nil {
		return nil, false, err
	}

	shiftDate := callOff.ShiftDate
	if shiftDate == "" {
		shiftDate = utils.ShiftDateKey(callOff.StartTime, s.location)
	}

	slot := &domain.ShiftSlot{
		ID:                  uuid.New(),
		ShiftRef:            callOff.ShiftRef,
		ShiftDate:           shiftDate,
		ClientID:            callOff.ClientID,
		OriginalCaregiverID: callOff.CaregiverID,
		StartTime:           callOff.StartTime.UTC(),
		EndTime:             callOff.EndTime.UTC(),
		RequiredSkills:      callOff.RequiredSkills,
		RequiredLanguage:    callOff.RequiredLanguage,
		Location:            callOff.Location,
		Reason:              callOff.Reason,
		Status:              domain.ShiftStatusOpen,
		CreatedAt:           s.now(),
	}

	stored, created, err := s.store.CreateShiftSlot(ctx, slot)
	if err != nil {
		s.logger.Error("calloff.slot.create_failed", out.LogFields{
			"shiftRef": callOff.ShiftRef,
			"error":    err.Error(),
		})
		return nil, false, fmt.Errorf("calloff.slot.create_failed: %w", err)
	}
	s.metrics.CallOffReceived(created)

	s.logger.Info("calloff.received", out.LogFields{
		"shiftId":     stored.ID,
		"shiftRef":    stored.ShiftRef,
		"shiftDate":   stored.ShiftDate,
		"caregiverId": callOff.CaregiverID,
		"created":     created,
		"status":      stored.StatusLabel(),
	})

	// Дубликат по уже идущему слоту ничего не перезапускает
	if stored.Status != domain.ShiftStatusOpen {
		return stored, created, nil
	}

	// Волна не должна обрываться, если инициатор запроса отключился
	waveCtx := context.WithoutCancel(ctx)
	expect := domain.ShiftExpectation{Status: domain.ShiftStatusOpen, Version: stored.Version}
	if err := s.advanceToWave(waveCtx, stored, expect, 1); err != nil {
		s.logger.Error("calloff.wave.start_failed", out.LogFields{
			"shiftId": stored.ID,
			"error":   err.Error(),
		})
	}

	fresh, err := s.store.GetShiftSlot(ctx, stored.ID)
	if err != nil {
		return stored, created, nil
	}
	return fresh, created, nil
}
