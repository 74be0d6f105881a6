package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/ports/out"
)

// WebhookNotifier отправляет уведомление JSON-ом во внешнюю систему дежурств.
type WebhookNotifier struct {
	client *http.Client
	url    string
	logger out.LoggerPort
}

func NewWebhookNotifier(url string, timeout time.Duration, logger out.LoggerPort) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		client: &http.Client{Timeout: timeout},
		url:    url,
		logger: logger.WithModule("WebhookNotifier"),
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, notification domain.Notification) error {
	body, err := json.Marshal(notification)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Error("webhook.send_failed", out.LogFields{
			"shiftId": notification.ShiftID,
			"error":   err.Error(),
		})
		return fmt.Errorf("webhook send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.logger.Error("webhook.send_failed", out.LogFields{
			"shiftId": notification.ShiftID,
			"status":  resp.StatusCode,
		})
		return fmt.Errorf("webhook send: unexpected status code: %d", resp.StatusCode)
	}
	return nil
}
