package json_types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Time - время суток без даты, "15:04:05" или "15:04".
type Time struct {
	Time time.Time
}

func NewTime(hour, minute int) Time {
	return Time{Time: time.Date(0, 1, 1, hour, minute, 0, 0, time.UTC)}
}

func (t *Time) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("failed to parse time: %v", err)
	}
	parsedTime, err := time.Parse("15:04:05", str)
	if err != nil {
		parsedTime, err = time.Parse("15:04", str)
		if err != nil {
			return fmt.Errorf("failed to parse time: %v", err)
		}
	}
	*t = Time{Time: parsedTime}
	return nil
}

func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format("15:04:05"))
}
