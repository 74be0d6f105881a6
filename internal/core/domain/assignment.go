package domain

import (
	"time"

	"github.com/google/uuid"
)

type AssignmentSource string

const (
	AssignmentSourceAutomatic AssignmentSource = "automatic"
	AssignmentSourceManual    AssignmentSource = "manual"
)

type Assignment struct {
	ShiftID           uuid.UUID        `json:"shiftId"`
	CandidateID       string           `json:"candidateId"`
	AcceptedAttemptID *uuid.UUID       `json:"acceptedAttemptId,omitempty"`
	Source            AssignmentSource `json:"source"`
	ResolvedAt        time.Time        `json:"resolvedAt"`
}

// ResolveCondition - допустимые статусы слота и ожидаемая версия (0 - любая)
// для атомарной записи назначения.
type ResolveCondition struct {
	Statuses []ShiftStatus
	Version  int64
}
