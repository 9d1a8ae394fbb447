package feed

import (
	"sort"
	"time"

	"github.com/smukkama/flood-forecast/internal/flood"
	"github.com/smukkama/flood-forecast/internal/series"
	"github.com/smukkama/flood-forecast/pkg/config"
)

// Policy decides which feed entries count as history and how a reading's
// value is derived from the device fields
type Policy struct {
	MinEntryID int64
	Denylist   []int64
	Fields     [2]string
}

// NewPolicy builds a policy from feed configuration.
func NewPolicy(cfg config.FeedConfig) Policy {
	return Policy{
		MinEntryID: cfg.MinEntryID,
		Denylist:   cfg.Denylist,
		Fields:     cfg.Fields,
	}
}

// Apply drops entries below MinEntryID and denylisted ids, returning the rest
// ordered by entry id. The input slice is not modified.
func (p Policy) Apply(entries []Entry) []Entry {
	denied := make(map[int64]struct{}, len(p.Denylist))
	for _, id := range p.Denylist {
		denied[id] = struct{}{}
	}

	kept := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.EntryID < p.MinEntryID {
			continue
		}
		if _, ok := denied[e.EntryID]; ok {
			continue
		}
		kept = append(kept, e)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].EntryID < kept[j].EntryID
	})
	return kept
}

// Value derives a reading from an entry: primary + round(secondary, 2), with
// unparseable fields counted as 0 and negative sums clamped to 0.
func (p Policy) Value(e Entry) float64 {
	v := ParseField(e.Fields, p.Fields[0]) + series.Round(ParseField(e.Fields, p.Fields[1]), 2)
	if v < 0 {
		return 0
	}
	return v
}

// Records converts entries already filtered by Apply into records,
// renumbering entry ids from 1.
func (p Policy) Records(entries []Entry) []series.Record {
	records := make([]series.Record, len(entries))
	for i, e := range entries {
		records[i] = series.Record{
			EntryID:   int64(i + 1),
			Timestamp: e.CreatedAt,
			Value:     p.Value(e),
		}
	}
	return records
}

// History is Apply followed by Records.
func (p Policy) History(entries []Entry) []series.Record {
	return p.Records(p.Apply(entries))
}

// DeviceLevel is the most recent reading of one device field
type DeviceLevel struct {
	Field     string        `json:"field"`
	EntryID   int64         `json:"entry_id"`
	Timestamp time.Time     `json:"timestamp"`
	Reading   float64       `json:"reading"`
	Metres    float64       `json:"metres"`
	Warning   flood.Warning `json:"warning"`
}

// Latest returns, per device field, the newest entry carrying a numeric
// value. Devices without any reading are omitted.
func (p Policy) Latest(entries []Entry) []DeviceLevel {
	var out []DeviceLevel
	for _, field := range p.Fields {
		for i := len(entries) - 1; i >= 0; i-- {
			v, ok := LookupField(entries[i].Fields, field)
			if !ok {
				continue
			}
			metres := v / flood.CentimetresPerMetre
			out = append(out, DeviceLevel{
				Field:     field,
				EntryID:   entries[i].EntryID,
				Timestamp: entries[i].CreatedAt,
				Reading:   v,
				Metres:    metres,
				Warning:   flood.Classify(metres),
			})
			break
		}
	}
	return out
}
