// Package cleaning drops readings taken during known sensor outages and
// rejects anomalous readings with a median-based outlier test.
package cleaning

import (
	"time"

	"github.com/smukkama/flood-forecast/internal/series"
)

// Window is a time range whose interior readings are discarded
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies strictly inside the window. Readings at
// the exact boundaries are kept.
func (w Window) Contains(t time.Time) bool {
	return t.After(w.Start) && t.Before(w.End)
}

// ExclusionWindows are the sensor outage periods dropped before cleaning.
var ExclusionWindows = []Window{
	{
		Start: time.Date(2024, time.October, 6, 12, 41, 50, 0, time.UTC),
		End:   time.Date(2024, time.November, 3, 4, 5, 20, 0, time.UTC),
	},
	{
		Start: time.Date(2024, time.November, 11, 5, 27, 6, 0, time.UTC),
		End:   time.Date(2025, time.February, 19, 5, 15, 47, 0, time.UTC),
	},
}

// Result is the outcome of cleaning one history
type Result struct {
	Records  []series.Record
	Excluded int // dropped by an exclusion window
	Outliers int // dropped by the outlier filter

	// Regressions counts survivors whose timestamp precedes the previous
	// survivor's. Entry id order and time order should agree.
	Regressions int
}

// DropExcluded removes records inside any of the windows and returns the
// survivors along with the number removed.
func DropExcluded(records []series.Record, windows []Window) ([]series.Record, int) {
	kept := make([]series.Record, 0, len(records))
	for _, r := range records {
		if inAny(r.Timestamp, windows) {
			continue
		}
		kept = append(kept, r)
	}
	return kept, len(records) - len(kept)
}

func inAny(t time.Time, windows []Window) bool {
	for _, w := range windows {
		if w.Contains(t) {
			return true
		}
	}
	return false
}

// Clean applies the exclusion windows and then the outlier filter. The input
// slice is not modified.
func Clean(records []series.Record) Result {
	return CleanWith(records, ExclusionWindows)
}

// CleanWith is Clean with an explicit set of exclusion windows.
func CleanWith(records []series.Record, windows []Window) Result {
	kept, excluded := DropExcluded(records, windows)

	values := make([]float64, len(kept))
	for i, r := range kept {
		values[i] = r.Value
	}
	mask := OutlierMask(values)

	cleaned := make([]series.Record, 0, len(kept))
	for i, r := range kept {
		if mask[i] {
			continue
		}
		cleaned = append(cleaned, r)
	}

	return Result{
		Records:     cleaned,
		Excluded:    excluded,
		Outliers:    len(kept) - len(cleaned),
		Regressions: countRegressions(cleaned),
	}
}

func countRegressions(records []series.Record) int {
	n := 0
	for i := 1; i < len(records); i++ {
		if records[i].Timestamp.Before(records[i-1].Timestamp) {
			n++
		}
	}
	return n
}
