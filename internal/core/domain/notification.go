package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyNormal   Urgency = "normal"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

type NotificationKind string

const (
	NotificationKindTierAdvance NotificationKind = "tier_advance"
	NotificationKindEscalated   NotificationKind = "escalated"
	NotificationKindInteraction NotificationKind = "interaction"
	NotificationKindMeltdown    NotificationKind = "meltdown"
)

type AttemptOutcome struct {
	Tier           int            `json:"tier"`
	CandidateID    string         `json:"candidateId"`
	Channel        Channel        `json:"channel"`
	DeliveryStatus DeliveryStatus `json:"deliveryStatus"`
	Response       Intent         `json:"response,omitempty"`
}

type Notification struct {
	ShiftID uuid.UUID        `json:"shiftId"`
	Kind    NotificationKind `json:"kind"`
	Urgency Urgency          `json:"urgency"`
	Summary string           `json:"summary"`
	Waves   int              `json:"waves"`
	History []AttemptOutcome `json:"history,omitempty"`
	SentAt  time.Time        `json:"sentAt"`
}

// Ключи переходов для защиты от повторных уведомлений.
func TransitionKeyAdvance(fromTier, toTier int) string {
	return fmt.Sprintf("advance:%d->%d", fromTier, toTier)
}

func TransitionKeyEscalated(tier int) string {
	return fmt.Sprintf("escalate:%d", tier)
}

func TransitionKeySuppressed(candidateID string, tier int) string {
	return fmt.Sprintf("suppress:%s:%d", candidateID, tier)
}

func TransitionKeyLateAccept(candidateID string) string {
	return "late-accept:" + candidateID
}

const (
	TransitionKeyExpired  = "expire"
	TransitionKeyMeltdown = "meltdown"
)

// EngineState - общий для всех инстансов флаг остановки автоматики.
type EngineState struct {
	Halted   bool       `json:"halted"`
	Reason   string     `json:"reason,omitempty"`
	HaltedAt *time.Time `json:"haltedAt,omitempty"`
}
