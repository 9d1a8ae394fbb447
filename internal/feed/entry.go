package feed

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Entry is one row of a ThingSpeak channel feed
type Entry struct {
	EntryID   int64
	CreatedAt time.Time
	Fields    map[string]string // field name -> raw text; null fields are absent
}

// Response is the body of a channel feeds request
type Response struct {
	Feeds []Entry `json:"feeds"`
}

// UnmarshalJSON accepts field values as strings, numbers or null.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var createdAt string
	if v, ok := raw["created_at"]; ok {
		if err := json.Unmarshal(v, &createdAt); err != nil {
			return fmt.Errorf("invalid created_at: %w", err)
		}
	}
	ts, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}

	var id json.Number
	if v, ok := raw["entry_id"]; ok {
		if err := json.Unmarshal(v, &id); err != nil {
			return fmt.Errorf("invalid entry_id: %w", err)
		}
	}
	entryID, err := id.Int64()
	if err != nil {
		return fmt.Errorf("invalid entry_id %q: %w", id, err)
	}

	fields := make(map[string]string)
	for key, v := range raw {
		if !strings.HasPrefix(key, "field") {
			continue
		}
		text, ok := fieldText(v)
		if !ok {
			continue
		}
		fields[key] = text
	}

	e.EntryID = entryID
	e.CreatedAt = ts.UTC()
	e.Fields = fields
	return nil
}

// MarshalJSON writes the entry back in feed format.
func (e Entry) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Fields)+2)
	out["created_at"] = e.CreatedAt.UTC().Format(time.RFC3339)
	out["entry_id"] = e.EntryID
	for k, v := range e.Fields {
		out[k] = v
	}
	return json.Marshal(out)
}

func fieldText(v json.RawMessage) (string, bool) {
	if string(v) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

// ParseField converts a raw field value to a number. Missing or unparseable
// values are coerced to 0.
func ParseField(fields map[string]string, name string) float64 {
	v, ok := LookupField(fields, name)
	if !ok {
		return 0
	}
	return v
}

// LookupField reports the numeric value of a field if it parses.
func LookupField(fields map[string]string, name string) (float64, bool) {
	text, ok := fields[name]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}
