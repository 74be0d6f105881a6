package json_types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/suchimauz/shift-coverage-coordinator/internal/utils"
)

// DefaultLocation применяется к датам без таймзоны, выставляется из конфига
var DefaultLocation = time.UTC

type DateTime struct {
	Date time.Time
}

func (t *DateTime) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("failed to parse time: %v", err)
	}

	parsedDate, err := utils.ParseDate(str, DefaultLocation)
	if err != nil {
		return err
	}

	*t = DateTime{Date: parsedDate}
	return nil
}

func (t DateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Date.Format(time.RFC3339))
}

type DateTimeOrEmpty struct {
	Date time.Time
}

func (t *DateTimeOrEmpty) UnmarshalJSON(data []byte) error {
	if string(data) == "null" || string(data) == `""` {
		return nil
	}

	dt := DateTime{}
	err := dt.UnmarshalJSON(data)
	if err != nil {
		return err
	}

	*t = DateTimeOrEmpty{Date: dt.Date}
	return nil
}

func (t DateTimeOrEmpty) MarshalJSON() ([]byte, error) {
	if t.Date.IsZero() {
		return json.Marshal(nil)
	}

	return t.Date.MarshalJSON()
}
