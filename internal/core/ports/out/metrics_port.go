package out

import (
	"time"

	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
)

type MetricsPort interface {
	CallOffReceived(created bool)
	AttemptFinished(channel domain.Channel, status domain.DeliveryStatus)
	AcceptResolved(won bool)
	Escalated(kind domain.NotificationKind)
	ReplySuppressed()
	MeltdownTripped()
	TimeToFill(d time.Duration)
}
