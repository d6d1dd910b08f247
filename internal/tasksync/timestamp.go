package tasksync

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02",
}

// Timestamp accepts every date shape the backends emit. The zero value means unset.
type Timestamp struct {
	time.Time
}

func ParseTimestamp(s string) Timestamp {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{t.UTC()}
		}
	}
	return Timestamp{}
}

func (t Timestamp) Set() bool {
	return !t.IsZero()
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// numbers and other shapes are treated as unset rather than failing the whole payload
		*t = Timestamp{}
		return nil
	}
	*t = ParseTimestamp(s)
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

// DateString formats the date part for form payloads, empty when unset.
func (t Timestamp) DateString() string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}
