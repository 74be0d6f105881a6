package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/suchimauz/shift-coverage-coordinator/internal/config"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/ports/out"
)

// ChannelAdapter - HTTP-шлюз провайдера SMS и голосовых звонков.
// Один вызов Send - ровно один запрос, повторы делает ядро.
type ChannelAdapter struct {
	client      *http.Client
	baseURL     string
	token       string
	callbackURL string
	logger      out.LoggerPort
}

type sendRequest struct {
	To            string `json:"to"`
	Body          string `json:"body"`
	CorrelationID string `json:"correlationId"`
	CallbackURL   string `json:"callbackUrl,omitempty"`
	// Для звонков: текст читается синтезатором, ответ вводится с клавиатуры
	Gather string `json:"gather,omitempty"`
}

type sendResponse struct {
	ID string `json:"id"`
}

func NewChannelAdapter(cfg *config.Config, logger out.LoggerPort) *ChannelAdapter {
	timeout := cfg.Channel.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ChannelAdapter{
		client:      &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(cfg.Channel.URL, "/"),
		token:       cfg.Channel.Token,
		callbackURL: cfg.Channel.CallbackURL,
		logger:      logger.WithModule("ChannelAdapter"),
	}
}

func endpoint(channel domain.Channel) (string, error) {
	switch channel {
	case domain.ChannelSMS:
		return "/messages", nil
	case domain.ChannelVoice:
		return "/calls", nil
	}
	return "", fmt.Errorf("%w: unsupported channel %q", domain.ErrRecipientInvalid, channel)
}

func (a *ChannelAdapter) Send(ctx context.Context, msg domain.OutboundMessage) (string, error) {
	path, err := endpoint(msg.Channel)
	if err != nil {
		return "", err
	}

	payload := sendRequest{
		To:            msg.Recipient,
		Body:          msg.Text,
		CorrelationID: msg.CorrelationID,
		CallbackURL:   a.callbackURL,
	}
	if msg.Channel == domain.ChannelVoice {
		payload.Gather = "dtmf"
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Warn("channel.send.transport_failed", out.LogFields{
			"channel":       msg.Channel,
			"correlationId": msg.CorrelationID,
			"error":         err.Error(),
		})
		return "", fmt.Errorf("%w: %w", domain.ErrChannelUnavailable, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		a.logger.Warn("channel.send.rejected", out.LogFields{
			"channel":       msg.Channel,
			"correlationId": msg.CorrelationID,
			"status":        resp.StatusCode,
			"error":         err.Error(),
		})
		return "", err
	}

	var result sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("%w: decode response: %w", domain.ErrChannelUnavailable, err)
	}
	if result.ID == "" {
		result.ID = msg.CorrelationID
	}

	a.logger.Debug("channel.send.success", out.LogFields{
		"channel":       msg.Channel,
		"correlationId": msg.CorrelationID,
		"deliveryId":    result.ID,
	})
	return result.ID, nil
}

// statusError: 5xx и 429 - провайдер недоступен, прочие 4xx - неверный получатель.
func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	reason := fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", domain.ErrChannelUnavailable, reason)
	}
	return fmt.Errorf("%w: %s", domain.ErrRecipientInvalid, reason)
}
