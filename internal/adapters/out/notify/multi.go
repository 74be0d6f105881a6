package notify

import (
	"context"
	"errors"

	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/ports/out"
)

// MultiNotifier отправляет уведомление во все приемники, сбой одного
// не мешает остальным.
type MultiNotifier struct {
	notifiers []out.NotificationPort
}

func NewMultiNotifier(notifiers ...out.NotificationPort) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

func (m *MultiNotifier) Notify(ctx context.Context, notification domain.Notification) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, notification); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier пишет уведомление в лог, используется когда внешние приемники не настроены.
type LogNotifier struct {
	logger out.LoggerPort
}

func NewLogNotifier(logger out.LoggerPort) *LogNotifier {
	return &LogNotifier{logger: logger.WithModule("Escalations")}
}

func (n *LogNotifier) Notify(ctx context.Context, notification domain.Notification) error {
	n.logger.Warn("escalation.notification", out.LogFields{
		"shiftId": notification.ShiftID,
		"kind":    notification.Kind,
		"urgency": notification.Urgency,
		"waves":   notification.Waves,
		"summary": notification.Summary,
	})
	return nil
}
