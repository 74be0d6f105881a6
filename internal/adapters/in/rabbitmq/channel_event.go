package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/ports/out"
)

func (l *CoordinationListener) processChannelEventMessage(ctx context.Context, body []byte) error {
	var event domain.ChannelEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%w: %w", errMalformed, err)
	}

	outcome, err := l.useCase.HandleChannelEvent(ctx, event)
	if err != nil {
		return err
	}

	l.logger.Info("channel_event.message.processed", out.LogFields{
		"providerMessageId": event.ProviderMessageID,
		"outcome":           outcome,
	})
	return nil
}
