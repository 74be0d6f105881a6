package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/ports/out"
)

func (l *CoordinationListener) processCallOffMessage(ctx context.Context, body []byte) error {
	var payload domain.CallOffPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("%w: %w", errMalformed, err)
	}

	callOff, err := payload.ToCallOff()
	if err != nil {
		return err
	}

	slot, created, err := l.useCase.ReportCallOff(ctx, callOff)
	if err != nil {
		return err
	}

	l.logger.Info("call_off.message.processed", out.LogFields{
		"shiftId":  slot.ID,
		"shiftRef": slot.ShiftRef,
		"created":  created,
		"status":   slot.StatusLabel(),
	})
	return nil
}
