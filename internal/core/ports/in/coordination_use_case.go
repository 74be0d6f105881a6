package in

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
)

type CoordinationUseCase interface {
	// Создание слота по call-off, идемпотентно по смене и дате
	ReportCallOff(ctx context.Context, callOff domain.CallOff) (*domain.ShiftSlot, bool, error)

	// Обработка нормализованного события канала
	HandleChannelEvent(ctx context.Context, event domain.ChannelEvent) (domain.EventOutcome, error)

	// Истечение таймера волны, повторный вызов безопасен
	HandleWaveExpiry(ctx context.Context, shiftID uuid.UUID, tier int) error

	// ESCALATED -> UNFILLED_EXPIRED после начала смены
	ExpireEscalated(ctx context.Context, shiftID uuid.UUID) error

	// Ручное назначение в обход волн
	AssignManually(ctx context.Context, shiftID uuid.UUID, candidateID string) (*domain.Assignment, error)

	GetShiftOverview(ctx context.Context, shiftID uuid.UUID) (*domain.ShiftOverview, error)

	ResetMeltdown(ctx context.Context) error

	// Догоняющая обработка просроченных таймеров после перезапуска
	SweepDue(ctx context.Context, now time.Time) error
}
