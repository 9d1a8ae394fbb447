// Package series holds the value types that flow through the cleaning and
// forecasting pipeline.
package series

import (
	"math"
	"time"
)

// Supported forecast resolutions, finest first.
const (
	Resolution10 = 10 * time.Minute
	Resolution30 = 30 * time.Minute
	Resolution60 = 60 * time.Minute
)

// Resolutions lists the bin widths in cascade order.
var Resolutions = []time.Duration{Resolution10, Resolution30, Resolution60}

// Record is a single sensor reading
type Record struct {
	EntryID   int64
	Timestamp time.Time
	Value     float64
}

// Bin is one fixed-width time bucket of a resampled series
type Bin struct {
	Start    time.Time
	Value    float64
	Smoothed float64
}

// Series is a gap-free, regularly spaced sequence of bins
type Series struct {
	Resolution time.Duration
	Bins       []Bin
}

// Len returns the number of bins
func (s Series) Len() int { return len(s.Bins) }

// Values returns the bin values in order
func (s Series) Values() []float64 {
	out := make([]float64, len(s.Bins))
	for i, b := range s.Bins {
		out[i] = b.Value
	}
	return out
}

// SmoothedValues returns the pre-smoothed signal in order
func (s Series) SmoothedValues() []float64 {
	out := make([]float64, len(s.Bins))
	for i, b := range s.Bins {
		out[i] = b.Smoothed
	}
	return out
}

// CopyRecords returns an independent copy of records.
func CopyRecords(records []Record) []Record {
	out := make([]Record, len(records))
	copy(out, records)
	return out
}

// Round rounds x to the given number of decimal places, resolving ties to
// the even neighbour of x*10^places (numpy's rint based rounding).
func Round(x float64, places int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	p := math.Pow(10, float64(places))
	return math.RoundToEven(x*p) / p
}

// MinutesOf returns d expressed in whole minutes.
func MinutesOf(d time.Duration) int {
	return int(d / time.Minute)
}
