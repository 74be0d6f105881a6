package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/ports/out"
)

// TelegramNotifier пишет эскалации в чат дежурных координаторов.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger out.LoggerPort
}

func NewTelegramNotifier(token string, chatID int64, logger out.LoggerPort) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return newTelegramNotifier(api, chatID, logger), nil
}

func newTelegramNotifier(api *tgbotapi.BotAPI, chatID int64, logger out.LoggerPort) *TelegramNotifier {
	logger = logger.WithModule("TelegramNotifier")
	logger.Info("telegram.authorized", out.LogFields{
		"bot":    api.Self.UserName,
		"chatId": chatID,
	})
	return &TelegramNotifier{
		api:    api,
		chatID: chatID,
		logger: logger,
	}
}

func (n *TelegramNotifier) Notify(ctx context.Context, notification domain.Notification) error {
	msg := tgbotapi.NewMessage(n.chatID, formatText(notification))
	msg.DisableWebPagePreview = true
	// low и normal уходят без звука
	msg.DisableNotification = notification.Urgency == domain.UrgencyLow || notification.Urgency == domain.UrgencyNormal

	if _, err := n.api.Send(msg); err != nil {
		n.logger.Error("telegram.send_failed", out.LogFields{
			"shiftId": notification.ShiftID,
			"error":   err.Error(),
		})
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

var urgencyMarks = map[domain.Urgency]string{
	domain.UrgencyLow:      "ℹ️",
	domain.UrgencyNormal:   "💬",
	domain.UrgencyHigh:     "⚠️",
	domain.UrgencyCritical: "🚨",
}

func formatText(notification domain.Notification) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s %s [%s]\n", urgencyMarks[notification.Urgency],
		strings.ToUpper(string(notification.Urgency)), notification.Kind))
	sb.WriteString(notification.Summary)
	if notification.ShiftID != uuid.Nil {
		sb.WriteString("\nShift id: ")
		sb.WriteString(notification.ShiftID.String())
	}
	return sb.String()
}
