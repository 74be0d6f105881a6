package coordination_service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/ports/out"
	"github.com/suchimauz/shift-coverage-coordinator/internal/utils"
)

// send отправляет сообщение с экспоненциальной задержкой между попытками.
// Возвращает delivery id и число выполненных вызовов шлюза. stillWanted,
// если задан, проверяется перед каждым вызовом шлюза.
func (s *CoordinationService) send(ctx context.Context, msg domain.OutboundMessage, stillWanted func(context.Context) error) (string, int, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", attempt - 1, err
		}
		if s.isHalted(ctx) {
			return "", attempt - 1, domain.ErrMeltdownDetected
		}
		if stillWanted != nil {
			if err := stillWanted(ctx); err != nil {
				return "", attempt - 1, err
			}
		}

		sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
		deliveryID, err := s.channel.Send(sendCtx, msg)
		cancel()
		if err == nil {
			return deliveryID, attempt, nil
		}
		if ctx.Err() != nil {
			return "", attempt, ctx.Err()
		}
		if errors.Is(err, domain.ErrRecipientInvalid) {
			s.logger.Warn("send.recipient_invalid", out.LogFields{
				"channel":       msg.Channel,
				"correlationId": msg.CorrelationID,
				"error":         err.Error(),
			})
			return "", attempt, err
		}

		s.recordSendFailure(ctx, err)
		if attempt >= s.maxSendAttempts {
			s.logger.Warn("send.failed", out.LogFields{
				"channel":       msg.Channel,
				"correlationId": msg.CorrelationID,
				"attempts":      attempt,
				"error":         err.Error(),
			})
			return "", attempt, err
		}

		delay := utils.Backoff(attempt, s.backoffBase, s.backoffMax)
		s.logger.Debug("send.retry", out.LogFields{
			"channel":       msg.Channel,
			"correlationId": msg.CorrelationID,
			"attempt":       attempt,
			"delay":         delay.String(),
			"error":         err.Error(),
		})
		if err := s.sleep(ctx, delay); err != nil {
			return "", attempt, err
		}
	}
}

// reply отправляет кандидату служебный ответ по SMS через Repetition Guard.
func (s *CoordinationService) reply(ctx context.Context, slot *domain.ShiftSlot, attempt *domain.OutreachAttempt, text string) {
	if strings.TrimSpace(attempt.Recipient) == "" {
		return
	}

	decision, err := s.guard.Check(ctx, attempt.CandidateID, text)
	if err != nil {
		s.logger.Warn("reply.guard.check_failed", out.LogFields{
			"candidateId": attempt.CandidateID,
			"error":       err.Error(),
		})
	} else if decision.Suppressed {
		s.escalateInteraction(ctx, slot, attempt, "repeated automated reply was suppressed")
		return
	}

	_, _, err = s.send(ctx, domain.OutboundMessage{
		Channel:       domain.ChannelSMS,
		Recipient:     attempt.Recipient,
		Text:          text,
		CorrelationID: attempt.ID.String(),
	}, nil)
	if err != nil {
		s.logger.Warn("reply.send_failed", out.LogFields{
			"shiftId":     slot.ID,
			"candidateId": attempt.CandidateID,
			"error":       err.Error(),
		})
		return
	}
	s.recordOutbound(ctx, attempt.CandidateID, text)
}

// attemptStillWanted проверяет, что попытка не вытеснена и ее волна
// все еще идет. Назначение могло случиться посреди рассылки.
func (s *CoordinationService) attemptStillWanted(attempt *domain.OutreachAttempt) func(context.Context) error {
	return func(ctx context.Context) error {
		current, err := s.store.GetAttempt(ctx, attempt.ID)
		if err != nil {
			return err
		}
		if current.DeliveryStatus == domain.DeliveryStatusSuperseded {
			return fmt.Errorf("%w: attempt superseded", domain.ErrWaveNotActive)
		}
		slot, err := s.store.GetShiftSlot(ctx, attempt.ShiftID)
		if err != nil {
			return err
		}
		if slot.Status != domain.ShiftStatusWaveActive || slot.Tier != attempt.Tier {
			return fmt.Errorf("%w: shift is %s", domain.ErrWaveNotActive, slot.StatusLabel())
		}
		return nil
	}
}

func (s *CoordinationService) recordOutbound(ctx context.Context, conversationKey string, text string) {
	if err := s.guard.Record(ctx, conversationKey, text); err != nil {
		s.logger.Warn("guard.record_failed", out.LogFields{
			"conversation": conversationKey,
			"error":        err.Error(),
		})
	}
}

// escalateInteraction передает разговор с кандидатом человеку вместо
// очередного автоматического сообщения.
func (s *CoordinationService) escalateInteraction(ctx context.Context, slot *domain.ShiftSlot, attempt *domain.OutreachAttempt, reason string) {
	s.metrics.ReplySuppressed()
	s.notifyOnce(ctx, domain.TransitionKeySuppressed(attempt.CandidateID, attempt.Tier), domain.Notification{
		ShiftID: slot.ID,
		Kind:    domain.NotificationKindInteraction,
		Urgency: domain.UrgencyNormal,
		Summary: interactionSummary(slot, attempt, reason, s.location),
		Waves:   slot.Tier,
	})
}

// notifyOnce уведомляет, только если переход key записан этим вызовом впервые.
func (s *CoordinationService) notifyOnce(ctx context.Context, key string, notification domain.Notification) bool {
	first, err := s.store.RecordTransition(ctx, notification.ShiftID, key)
	if err != nil {
		s.logger.Error("notify.transition.record_failed", out.LogFields{
			"shiftId": notification.ShiftID,
			"key":     key,
			"error":   err.Error(),
		})
		return false
	}
	if !first {
		s.logger.Debug("notify.duplicate_suppressed", out.LogFields{
			"shiftId": notification.ShiftID,
			"key":     key,
		})
		return false
	}

	notification.SentAt = s.now()
	if err := s.notifier.Notify(ctx, notification); err != nil {
		s.logger.Error("notify.failed", out.LogFields{
			"shiftId": notification.ShiftID,
			"kind":    notification.Kind,
			"error":   err.Error(),
		})
		return false
	}
	s.logger.Info("notify.sent", out.LogFields{
		"shiftId": notification.ShiftID,
		"kind":    notification.Kind,
		"urgency": notification.Urgency,
	})
	return true
}
