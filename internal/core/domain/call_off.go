package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/suchimauz/shift-coverage-coordinator/internal/core/json_types"
	"github.com/suchimauz/shift-coverage-coordinator/internal/utils"
)

// CallOff - входящий триггер о невыходе сиделки на смену.
type CallOff struct {
	CaregiverID      string
	ShiftRef         string
	ShiftDate        string
	ClientID         string
	StartTime        time.Time
	EndTime          time.Time
	RequiredSkills   []string
	RequiredLanguage string
	Location         Location
	Reason           string
	DetectedAt       time.Time
}

func (c CallOff) Validate() error {
	if strings.TrimSpace(c.CaregiverID) == "" {
		return fmt.Errorf("%w: caregiver_id is required", ErrInvalidCallOff)
	}
	if strings.TrimSpace(c.ShiftRef) == "" {
		return fmt.Errorf("%w: shift_id is required", ErrInvalidCallOff)
	}
	if c.StartTime.IsZero() || c.EndTime.IsZero() {
		return fmt.Errorf("%w: shift start and end are required", ErrInvalidCallOff)
	}
	if !c.EndTime.After(c.StartTime) {
		return fmt.Errorf("%w: shift end must be after start", ErrInvalidCallOff)
	}
	return nil
}

// CallOffPayload - JSON call-off, одинаковый для HTTP и очереди.
type CallOffPayload struct {
	CaregiverID string                     `json:"caregiver_id" binding:"required"`
	ShiftID     string                     `json:"shift_id" binding:"required"`
	ShiftDate   string                     `json:"shift_date"`
	ClientID    string                     `json:"client_id"`
	Start       string                     `json:"start" binding:"required"`
	End         string                     `json:"end" binding:"required"`
	Skills      []string                   `json:"skills"`
	Language    string                     `json:"language"`
	Location    Location                   `json:"location"`
	Reason      string                     `json:"reason"`
	DetectedAt  json_types.DateTimeOrEmpty `json:"detected_at"`
}

// ToCallOff разбирает время смены, без таймзоны - в таймзоне агентства.
func (p CallOffPayload) ToCallOff() (CallOff, error) {
	start, err := utils.ParseDate(p.Start, json_types.DefaultLocation)
	if err != nil {
		return CallOff{}, fmt.Errorf("%w: invalid start time format", ErrInvalidCallOff)
	}
	end, err := utils.ParseDate(p.End, json_types.DefaultLocation)
	if err != nil {
		return CallOff{}, fmt.Errorf("%w: invalid end time format", ErrInvalidCallOff)
	}

	return CallOff{
		CaregiverID:      p.CaregiverID,
		ShiftRef:         p.ShiftID,
		ShiftDate:        p.ShiftDate,
		ClientID:         p.ClientID,
		StartTime:        start,
		EndTime:          end,
		RequiredSkills:   p.Skills,
		RequiredLanguage: p.Language,
		Location:         p.Location,
		Reason:           p.Reason,
		DetectedAt:       p.DetectedAt.Date,
	}, nil
}
