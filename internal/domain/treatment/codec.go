package treatment

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// List and map columns are stored as JSON text. Decoding never fails: NULL,
// blank or malformed text yields an empty collection.

// StringList is an ordered list of free-text entries.
type StringList []string

func DecodeStringList(raw string) StringList {
	if strings.TrimSpace(raw) == "" {
		return StringList{}
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return StringList{}
	}
	return StringList(out)
}

func (l StringList) Encode() string {
	if len(l) == 0 {
		return "[]"
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return "[]"
	}
	return string(b)
}

func (l StringList) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

// Union appends the entries of more that are not already present, keeping
// first-seen order and skipping blanks. It reports whether anything was added.
func (l StringList) Union(more ...string) (StringList, bool) {
	seen := make(map[string]bool, len(l)+len(more))
	out := make(StringList, 0, len(l)+len(more))
	for _, s := range l {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	before := len(out)
	for _, s := range more {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out, len(out) > before
}

// Dedupe returns l without duplicate or blank entries.
func (l StringList) Dedupe() StringList {
	out, _ := StringList(nil).Union(l...)
	return out
}

// VitalSigns holds readings taken during a session, keyed by measurement
// name. Values are scalars (numbers, strings or booleans).
type VitalSigns map[string]interface{}

func DecodeVitalSigns(raw string) VitalSigns {
	if strings.TrimSpace(raw) == "" {
		return VitalSigns{}
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return VitalSigns{}
	}
	return VitalSigns(out)
}

func (v VitalSigns) Encode() string {
	if len(v) == 0 {
		return "{}"
	}
	b, err := json.Marshal(map[string]interface{}(v))
	if err != nil {
		return "{}"
	}
	return string(b)
}

func (v VitalSigns) MarshalJSON() ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]interface{}(v))
}

const dateLayout = "2006-01-02"

// Date is a calendar day in request bodies. It accepts "2006-01-02" or a
// full RFC 3339 timestamp, keeping the day as written in the timestamp's own
// offset. Stored treatments carry the day as a time.Time at UTC midnight.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if raw == "" {
		d.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return fmt.Errorf("invalid date %q: want YYYY-MM-DD", raw)
	}
	d.Time = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) ptr() *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}
