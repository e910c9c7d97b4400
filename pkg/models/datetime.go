package models

import (
	"encoding/json"
	"time"
)

// DateTimeLayout is the format the backend uses for record timestamps.
const DateTimeLayout = "2006-01-02 15:04:05.000Z"

// DateTime is a time.Time that reads and writes the backend's record
// timestamp format. RFC 3339 input is accepted as well.
type DateTime struct {
	time.Time
}

func NewDateTime(t time.Time) DateTime {
	return DateTime{Time: t.UTC()}
}

func (d DateTime) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(d.UTC().Format(DateTimeLayout))
}

func (d *DateTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		d.Time = time.Time{}
		return nil
	}

	for _, layout := range []string{DateTimeLayout, "2006-01-02 15:04:05Z", time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t
			return nil
		}
	}
	return NewTransformationError("unrecognised timestamp " + s)
}
