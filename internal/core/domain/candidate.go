package domain

import (
	"strings"
	"time"

	"github.com/suchimauz/shift-coverage-coordinator/internal/core/json_types"
	"github.com/suchimauz/shift-coverage-coordinator/internal/utils"
)

type DayOfWeek string

const (
	DayOfWeekMon DayOfWeek = "mon"
	DayOfWeekTue DayOfWeek = "tue"
	DayOfWeekWed DayOfWeek = "wed"
	DayOfWeekThu DayOfWeek = "thu"
	DayOfWeekFri DayOfWeek = "fri"
	DayOfWeekSat DayOfWeek = "sat"
	DayOfWeekSun DayOfWeek = "sun"
)

var weekdays = map[time.Weekday]DayOfWeek{
	time.Monday:    DayOfWeekMon,
	time.Tuesday:   DayOfWeekTue,
	time.Wednesday: DayOfWeekWed,
	time.Thursday:  DayOfWeekThu,
	time.Friday:    DayOfWeekFri,
	time.Saturday:  DayOfWeekSat,
	time.Sunday:    DayOfWeekSun,
}

func DayOfWeekFrom(w time.Weekday) DayOfWeek {
	return weekdays[w]
}

// AvailabilityWindow - регулярное окно доступности сиделки.
// Если End не позже Start, окно переходит через полночь.
type AvailabilityWindow struct {
	Day   DayOfWeek       `json:"day"`
	Start json_types.Time `json:"start"`
	End   json_types.Time `json:"end"`
}

// On возвращает окно, привязанное к конкретной дате.
func (w AvailabilityWindow) On(date time.Time) TimeWindow {
	day := utils.StartCurrentDay(date)
	start := day.Add(sinceMidnight(w.Start.Time))
	end := day.Add(sinceMidnight(w.End.Time))
	if !end.After(start) {
		end = end.Add(24 * time.Hour)
	}
	return TimeWindow{Start: start, End: end}
}

func sinceMidnight(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second
}

type Reliability struct {
	AcceptRate float64 `json:"acceptRate"`
	OnTimeRate float64 `json:"onTimeRate"`
}

type CandidateProfile struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	Phone        string               `json:"phone"`
	Skills       []string             `json:"skills"`
	Languages    []string             `json:"languages"`
	Home         Location             `json:"home"`
	Availability []AvailabilityWindow `json:"availability"`
	Reliability  Reliability          `json:"reliability"`
}

func (c CandidateProfile) HasSkill(skill string) bool {
	return containsFold(c.Skills, skill)
}

func (c CandidateProfile) SpeaksLanguage(language string) bool {
	if language == "" {
		return true
	}
	return containsFold(c.Languages, language)
}

func containsFold(values []string, needle string) bool {
	for _, v := range values {
		if strings.EqualFold(v, needle) {
			return true
		}
	}
	return false
}

// CandidateQuery - параметры запроса к внешнему справочнику сиделок.
type CandidateQuery struct {
	Skills     []string
	Language   string
	Location   Location
	TimeWindow TimeWindow
	ExcludeIDs []string
}

type ScoredCandidate struct {
	Profile CandidateProfile `json:"profile"`
	Score   float64          `json:"score"`
}
