package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ShiftStatus string

const (
	ShiftStatusOpen            ShiftStatus = "OPEN"
	ShiftStatusWaveActive      ShiftStatus = "WAVE_ACTIVE"
	ShiftStatusEscalated       ShiftStatus = "ESCALATED"
	ShiftStatusFilled          ShiftStatus = "FILLED"
	ShiftStatusUnfilledExpired ShiftStatus = "UNFILLED_EXPIRED"
)

var terminalShiftStatuses = map[ShiftStatus]bool{
	ShiftStatusFilled:          true,
	ShiftStatusUnfilledExpired: true,
}

// Ранг статуса, переходы допускаются только в сторону неубывания
var shiftStatusRank = map[ShiftStatus]int{
	ShiftStatusOpen:            0,
	ShiftStatusWaveActive:      1,
	ShiftStatusEscalated:       2,
	ShiftStatusFilled:          3,
	ShiftStatusUnfilledExpired: 3,
}

// WAVE_ACTIVE -> WAVE_ACTIVE допустим только с ростом тира
var validShiftTransitions = map[ShiftStatus]map[ShiftStatus]bool{
	ShiftStatusOpen: {
		ShiftStatusWaveActive: true,
		ShiftStatusEscalated:  true,
		ShiftStatusFilled:     true,
	},
	ShiftStatusWaveActive: {
		ShiftStatusWaveActive: true,
		ShiftStatusEscalated:  true,
		ShiftStatusFilled:     true,
	},
	ShiftStatusEscalated: {
		ShiftStatusFilled:          true,
		ShiftStatusUnfilledExpired: true,
	},
	ShiftStatusUnfilledExpired: {
		ShiftStatusFilled: true,
	},
}

func (s ShiftStatus) IsTerminal() bool {
	return terminalShiftStatuses[s]
}

func (s ShiftStatus) Rank() int {
	return shiftStatusRank[s]
}

func (s ShiftStatus) IsValid() bool {
	_, ok := shiftStatusRank[s]
	return ok
}

// ValidateShiftTransition проверяет переход статуса с учетом тира волны.
func ValidateShiftTransition(from ShiftStatus, fromTier int, to ShiftStatus, toTier int) error {
	if !validShiftTransitions[from][to] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if from == ShiftStatusWaveActive && to == ShiftStatusWaveActive && toTier <= fromTier {
		return fmt.Errorf("%w: tier %d -> %d", ErrInvalidTransition, fromTier, toTier)
	}
	return nil
}

type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (l Location) IsZero() bool {
	return l.Lat == 0 && l.Lon == 0
}

type ShiftSlot struct {
	ID                  uuid.UUID   `json:"id"`
	ShiftRef            string      `json:"shiftId"`
	ShiftDate           string      `json:"shiftDate"`
	ClientID            string      `json:"clientId"`
	OriginalCaregiverID string      `json:"originalCaregiverId"`
	StartTime           time.Time   `json:"start"`
	EndTime             time.Time   `json:"end"`
	RequiredSkills      []string    `json:"requiredSkills"`
	RequiredLanguage    string      `json:"requiredLanguage,omitempty"`
	Location            Location    `json:"location"`
	Reason              string      `json:"reason,omitempty"`
	Status              ShiftStatus `json:"status"`
	Tier                int         `json:"tier"`
	Version             int64       `json:"version"`
	WaveStartedAt       *time.Time  `json:"waveStartedAt,omitempty"`
	WaveExpiresAt       *time.Time  `json:"waveExpiresAt,omitempty"`
	CreatedAt           time.Time   `json:"createdAt"`
	UpdatedAt           time.Time   `json:"updatedAt"`
}

// StatusLabel возвращает статус в виде WAVE_ACTIVE(2) для активных волн.
func (s *ShiftSlot) StatusLabel() string {
	if s.Status == ShiftStatusWaveActive {
		return fmt.Sprintf("%s(%d)", s.Status, s.Tier)
	}
	return string(s.Status)
}

func (s *ShiftSlot) Window() TimeWindow {
	return TimeWindow{Start: s.StartTime, End: s.EndTime}
}

// ShiftExpectation - условие для compare-and-swap записи слота.
// Нулевые Tier и Version означают "любой".
type ShiftExpectation struct {
	Status  ShiftStatus
	Tier    int
	Version int64
}

// ShiftState - новое состояние слота, применяемое при успешном CAS.
type ShiftState struct {
	Status        ShiftStatus
	Tier          int
	WaveStartedAt *time.Time
	WaveExpiresAt *time.Time
}

type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Overlap возвращает длительность пересечения двух окон.
func (w TimeWindow) Overlap(other TimeWindow) time.Duration {
	start := w.Start
	if other.Start.After(start) {
		start = other.Start
	}
	end := w.End
	if other.End.Before(end) {
		end = other.End
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start)
}

// ShiftOverview - слот вместе с полной историей попыток.
type ShiftOverview struct {
	Slot       *ShiftSlot        `json:"slot"`
	Attempts   []OutreachAttempt `json:"attempts"`
	Responses  []ResponseRecord  `json:"responses"`
	Assignment *Assignment       `json:"assignment,omitempty"`
}
