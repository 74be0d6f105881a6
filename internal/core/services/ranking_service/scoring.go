package ranking_service

import (
	"math"
	"time"

	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
)

const earthRadiusKm = 6371.0

// haversineKm - расстояние по дуге большого круга.
func haversineKm(a, b domain.Location) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// proximityScore = 1/(1+km/10). Без координат - нейтральные 0.5.
func proximityScore(home, shift domain.Location) float64 {
	if home.IsZero() || shift.IsZero() {
		return 0.5
	}
	return 1 / (1 + haversineKm(home, shift)/10)
}

// matchScore - доля совпавших навыков и язык, поровну.
func matchScore(profile domain.CandidateProfile, skills []string, language string) float64 {
	skillPart := 1.0
	if len(skills) > 0 {
		matched := 0
		for _, skill := range skills {
			if profile.HasSkill(skill) {
				matched++
			}
		}
		skillPart = float64(matched) / float64(len(skills))
	}

	languagePart := 0.0
	if profile.SpeaksLanguage(language) {
		languagePart = 1
	}
	return (skillPart + languagePart) / 2
}

func hasAllSkills(profile domain.CandidateProfile, skills []string) bool {
	for _, skill := range skills {
		if !profile.HasSkill(skill) {
			return false
		}
	}
	return true
}

func reliabilityScore(r domain.Reliability) float64 {
	return (clamp01(r.AcceptRate) + clamp01(r.OnTimeRate)) / 2
}

// availabilityScore - доля смены, покрытая окнами доступности.
// Окна задаются в локальном времени агентства. Кандидат без окон считается
// доступным всегда.
func availabilityScore(profile domain.CandidateProfile, shift domain.TimeWindow, loc *time.Location) float64 {
	total := shift.Duration()
	if total <= 0 {
		return 0
	}
	if len(profile.Availability) == 0 {
		return 1
	}

	local := domain.TimeWindow{Start: shift.Start.In(loc), End: shift.End.In(loc)}
	windows := make([]domain.TimeWindow, 0, len(profile.Availability))
	// Ночные окна предыдущего дня тоже могут покрывать смену
	first := time.Date(local.Start.Year(), local.Start.Month(), local.Start.Day(), 0, 0, 0, 0, loc)
	for day := first.AddDate(0, 0, -1); !day.After(local.End); day = day.AddDate(0, 0, 1) {
		weekday := domain.DayOfWeekFrom(day.Weekday())
		for _, w := range profile.Availability {
			if w.Day == weekday {
				windows = append(windows, w.On(day))
			}
		}
	}

	return clamp01(float64(coveredDuration(local, windows)) / float64(total))
}

// coveredDuration считает объединение пересечений, чтобы перекрывающиеся окна не учитывались дважды.
func coveredDuration(shift domain.TimeWindow, windows []domain.TimeWindow) time.Duration {
	var covered time.Duration
	cursor := shift.Start
	for cursor.Before(shift.End) {
		next := shift.End
		var coveredUntil time.Time
		for _, w := range windows {
			if !w.Start.After(cursor) && w.End.After(cursor) && w.End.After(coveredUntil) {
				coveredUntil = w.End
			}
			if w.Start.After(cursor) && w.Start.Before(next) {
				next = w.Start
			}
		}
		if !coveredUntil.IsZero() {
			if coveredUntil.After(shift.End) {
				coveredUntil = shift.End
			}
			covered += coveredUntil.Sub(cursor)
			cursor = coveredUntil
			continue
		}
		cursor = next
	}
	return covered
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
