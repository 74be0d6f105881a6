package out

import (
	"context"

	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
)

// ChannelPort отправляет ровно одно сообщение или звонок на вызов.
// Ошибки: domain.ErrChannelUnavailable (повторяемая), domain.ErrRecipientInvalid.
type ChannelPort interface {
	Send(ctx context.Context, msg domain.OutboundMessage) (string, error)
}
