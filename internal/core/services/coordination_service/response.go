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

// HandleChannelEvent принимает нормализованное событие канала.
// Сначала событие записывается по provider_message_id, повтор того же
// события возвращает domain.ErrDuplicateEvent без побочных эффектов.
func (s *CoordinationService) HandleChannelEvent(ctx context.Context, event domain.ChannelEvent) (domain.EventOutcome, error) {
	providerMessageID := strings.TrimSpace(event.ProviderMessageID)
	if providerMessageID == "" {
		return "", fmt.Errorf("%w: provider_message_id is required", domain.ErrInvalidEvent)
	}
	attemptID, err := uuid.Parse(strings.TrimSpace(event.AttemptCorrelationID))
	if err != nil {
		return "", fmt.Errorf("%w: attempt_correlation_id %q", domain.ErrInvalidEvent, event.AttemptCorrelationID)
	}

	attempt, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return "", err
	}

	receivedAt := event.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}
	record := &domain.ResponseRecord{
		ID:                uuid.New(),
		AttemptID:         attempt.ID,
		ProviderMessageID: providerMessageID,
		RawText:           event.RawTextOrDTMF,
		Intent:            domain.InterpretReply(event.RawTextOrDTMF),
		ReceivedAt:        receivedAt.UTC(),
	}

	inserted, err := s.store.InsertResponse(ctx, record)
	if err != nil {
		return "", fmt.Errorf("response.insert_failed: %w", err)
	}
	if !inserted {
		s.logger.Info("response.duplicate", out.LogFields{
			"providerMessageId": providerMessageID,
			"attemptId":         attempt.ID,
		})
		return domain.EventOutcomeDuplicate, domain.ErrDuplicateEvent
	}

	s.logger.Info("response.received", out.LogFields{
		"shiftId":     attempt.ShiftID,
		"attemptId":   attempt.ID,
		"candidateId": attempt.CandidateID,
		"intent":      record.Intent,
	})

	switch record.Intent {
	case domain.IntentAccept:
		return s.resolveAccept(ctx, attempt)
	case domain.IntentDecline:
		return domain.EventOutcomeDeclined, nil
	default:
		return s.requestClarification(ctx, attempt)
	}
}

// resolveAccept - единственная атомарная попытка назначения. Победитель
// определяется порядком условных записей в хранилище.
func (s *CoordinationService) resolveAccept(ctx context.Context, attempt *domain.OutreachAttempt) (domain.EventOutcome, error) {
	slot, err := s.store.GetShiftSlot(ctx, attempt.ShiftID)
	if err != nil {
		return "", err
	}

	for retried := false; ; retried = true {
		if slot.Status != domain.ShiftStatusWaveActive {
			return s.rejectAccept(ctx, slot, attempt), nil
		}

		assignment := &domain.Assignment{
			ShiftID:           slot.ID,
			CandidateID:       attempt.CandidateID,
			AcceptedAttemptID: &attempt.ID,
			Source:            domain.AssignmentSourceAutomatic,
			ResolvedAt:        s.now(),
		}
		err = s.store.ResolveAssignment(ctx, assignment, domain.ResolveCondition{
			Statuses: []domain.ShiftStatus{domain.ShiftStatusWaveActive},
			Version:  slot.Version,
		})
		if err == nil {
			s.completeAssignment(ctx, slot, attempt, assignment)
			return domain.EventOutcomeAssigned, nil
		}

		// Версия сменилась из-за смены волны: одна повторная попытка со свежей версией
		if errors.Is(err, domain.ErrVersionConflict) || errors.Is(err, domain.ErrAlreadyResolved) {
			fresh, getErr := s.store.GetShiftSlot(ctx, slot.ID)
			if getErr != nil {
				return "", getErr
			}
			slot = fresh
			if errors.Is(err, domain.ErrVersionConflict) && !retried {
				continue
			}
			return s.rejectAccept(ctx, slot, attempt), nil
		}
		return "", fmt.Errorf("response.accept.resolve_failed: %w", err)
	}
}

func (s *CoordinationService) completeAssignment(ctx context.Context, slot *domain.ShiftSlot, attempt *domain.OutreachAttempt, assignment *domain.Assignment) {
	s.metrics.AcceptResolved(true)
	s.metrics.TimeToFill(assignment.ResolvedAt.Sub(slot.CreatedAt))
	s.timer.Cancel(slot.ID)

	superseded, err := s.store.SupersedePendingAttempts(ctx, slot.ID, &attempt.ID)
	if err != nil {
		s.logger.Error("response.accept.supersede_failed", out.LogFields{
			"shiftId": slot.ID,
			"error":   err.Error(),
		})
	}

	s.logger.Info("response.accept.won", out.LogFields{
		"shiftId":     slot.ID,
		"attemptId":   attempt.ID,
		"candidateId": attempt.CandidateID,
		"tier":        slot.Tier,
		"superseded":  superseded,
	})

	s.reply(ctx, slot, attempt, confirmationText(slot, s.location))
}

// rejectAccept отвечает проигравшему или опоздавшему кандидату.
// Принятие после эскалации не теряется: оно передается дежурному.
func (s *CoordinationService) rejectAccept(ctx context.Context, slot *domain.ShiftSlot, attempt *domain.OutreachAttempt) domain.EventOutcome {
	if slot.Status == domain.ShiftStatusFilled {
		// Повторное "да" от уже назначенного кандидата
		if assignment, err := s.store.GetAssignment(ctx, slot.ID); err == nil && assignment.CandidateID == attempt.CandidateID {
			return domain.EventOutcomeAssigned
		}
	}
	s.metrics.AcceptResolved(false)

	if slot.Status == domain.ShiftStatusEscalated || slot.Status == domain.ShiftStatusUnfilledExpired {
		s.logger.Info("response.accept.forwarded", out.LogFields{
			"shiftId":     slot.ID,
			"candidateId": attempt.CandidateID,
			"status":      slot.Status,
		})
		s.notifyOnce(ctx, domain.TransitionKeyLateAccept(attempt.CandidateID), domain.Notification{
			ShiftID: slot.ID,
			Kind:    domain.NotificationKindInteraction,
			Urgency: domain.UrgencyHigh,
			Summary: lateAcceptSummary(slot, attempt, s.location),
			Waves:   slot.Tier,
		})
		s.reply(ctx, slot, attempt, forwardedText(slot, s.location))
		return domain.EventOutcomeForwarded
	}

	s.logger.Info("response.accept.lost", out.LogFields{
		"shiftId":     slot.ID,
		"attemptId":   attempt.ID,
		"candidateId": attempt.CandidateID,
		"status":      slot.Status,
	})
	s.reply(ctx, slot, attempt, filledText())
	return domain.EventOutcomeAlreadyFilled
}

func (s *CoordinationService) requestClarification(ctx context.Context, attempt *domain.OutreachAttempt) (domain.EventOutcome, error) {
	slot, err := s.store.GetShiftSlot(ctx, attempt.ShiftID)
	if err != nil {
		return "", err
	}
	if slot.Status == domain.ShiftStatusFilled {
		s.reply(ctx, slot, attempt, filledText())
		return domain.EventOutcomeAlreadyFilled, nil
	}

	s.reply(ctx, slot, attempt, clarificationText(slot, s.location))
	return domain.EventOutcomeClarification, nil
}
