package event

import (
	"fmt"
	"time"
)

// timestampLayout prints exactly three fractional digits and a zone
// designator, the collector's expected shape ("2024-05-01T13:37:00.250Z").
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp is a UTC instant carried with millisecond precision. At() is the
// only constructor used by the pipeline; it truncates to the millisecond so
// that a persisted event reloads field-for-field identical.
type Timestamp struct {
	time.Time
}

// At converts a time into a wire Timestamp, normalizing to UTC and dropping
// sub-millisecond precision.
func At(t time.Time) Timestamp {
	return Timestamp{t.UTC().Truncate(time.Millisecond)}
}

// MarshalJSON renders the instant as UTC ISO-8601 with milliseconds.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + ts.Time.UTC().Format(timestampLayout) + `"`), nil
}

// UnmarshalJSON parses the wire form produced by MarshalJSON.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("timestamp is not a JSON string: %s", s)
	}
	t, err := time.Parse(timestampLayout, s[1:len(s)-1])
	if err != nil {
		return fmt.Errorf("parse timestamp: %w", err)
	}
	ts.Time = t.UTC()
	return nil
}
