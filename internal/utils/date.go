package utils

import (
	"fmt"
	"time"
)

func StartCurrentDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ShiftDateKey - дата смены в таймзоне агентства, часть ключа идемпотентности слота
func ShiftDateKey(t time.Time, location *time.Location) string {
	if location == nil {
		location = time.UTC
	}
	return t.In(location).Format("2006-01-02")
}

// ParseDate парсит дату из строки в формате RFC3339, если не удается, то пробует парсить дату со временем, но без таймзоны
func ParseDate(str string, location *time.Location) (time.Time, error) {
	if location == nil {
		location = time.UTC
	}
	parsedDate, err := time.Parse(time.RFC3339, str)
	if err != nil {
		parsedDate, err = time.ParseInLocation("2006-01-02T15:04:05", str, location)
		if err != nil {
			// Если не удалось, пробуем как дату без времени
			parsedDate, err = time.ParseInLocation("2006-01-02", str, location)
			if err != nil {
				return time.Time{}, fmt.Errorf("failed to parse time: %v", err)
			}
		}
	}

	return parsedDate, nil
}
