package out

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
)

// StorePort - долговременное хранилище. Все изменения статуса слота
// выполняются условными записями, без чтения-потом-записи.
type StorePort interface {
	MessageHistoryPort

	// Слоты
	CreateShiftSlot(ctx context.Context, slot *domain.ShiftSlot) (*domain.ShiftSlot, bool, error)
	GetShiftSlot(ctx context.Context, shiftID uuid.UUID) (*domain.ShiftSlot, error)
	CompareAndSwapShift(ctx context.Context, shiftID uuid.UUID, expect domain.ShiftExpectation, next domain.ShiftState) (bool, error)
	ListShiftsByStatus(ctx context.Context, status domain.ShiftStatus) ([]*domain.ShiftSlot, error)
	ListDueWaves(ctx context.Context, now time.Time) ([]*domain.ShiftSlot, error)
	ListStartedEscalations(ctx context.Context, now time.Time) ([]*domain.ShiftSlot, error)

	// Попытки обзвона
	InsertAttempt(ctx context.Context, attempt *domain.OutreachAttempt) (bool, error)
	UpdateAttemptDelivery(ctx context.Context, attemptID uuid.UUID, status domain.DeliveryStatus, deliveryID string, sendAttempts int) error
	SupersedePendingAttempts(ctx context.Context, shiftID uuid.UUID, exceptAttemptID *uuid.UUID) (int64, error)
	GetAttempt(ctx context.Context, attemptID uuid.UUID) (*domain.OutreachAttempt, error)
	ListAttempts(ctx context.Context, shiftID uuid.UUID) ([]domain.OutreachAttempt, error)
	ListAttemptedCandidates(ctx context.Context, shiftID uuid.UUID) ([]string, error)

	// Ответы
	InsertResponse(ctx context.Context, response *domain.ResponseRecord) (bool, error)
	ListResponses(ctx context.Context, shiftID uuid.UUID) ([]domain.ResponseRecord, error)

	// Назначения
	ResolveAssignment(ctx context.Context, assignment *domain.Assignment, cond domain.ResolveCondition) error
	GetAssignment(ctx context.Context, shiftID uuid.UUID) (*domain.Assignment, error)

	// Защита переходов от повторной обработки
	RecordTransition(ctx context.Context, shiftID uuid.UUID, key string) (bool, error)

	// Состояние движка
	GetEngineState(ctx context.Context) (*domain.EngineState, error)
	SetEngineHalted(ctx context.Context, halted bool, reason string, at time.Time) (bool, error)

	// Отказы отправки, общий счетчик meltdown для всех инстансов
	RecordSendFailure(ctx context.Context, cause string, at time.Time, since time.Time) (int, error)
	ClearSendFailures(ctx context.Context) error
}

// MessageHistoryPort - история исходящих сообщений, из которой
// восстанавливается окно Repetition Guard после перезапуска.
type MessageHistoryPort interface {
	AppendOutboundMessage(ctx context.Context, msg domain.SentMessage) error
	ListOutboundMessages(ctx context.Context, conversationKey string, since time.Time, limit int) ([]domain.SentMessage, error)
}
