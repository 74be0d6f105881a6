package out

import (
	"context"

	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
)

type NotificationPort interface {
	Notify(ctx context.Context, notification domain.Notification) error
}
