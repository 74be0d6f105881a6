package out

import (
	"time"

	"github.com/google/uuid"
)

// WaveTimerPort взводит таймер истечения волны. Отмена best-effort,
// обработчик таймера всегда перепроверяет статус условной записью.
type WaveTimerPort interface {
	Arm(shiftID uuid.UUID, tier int, at time.Time)
	Cancel(shiftID uuid.UUID)
}
