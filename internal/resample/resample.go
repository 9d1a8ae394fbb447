// Package resample buckets irregular readings into fixed-width bins, fills
// empty bins and computes the smoothed working signal for the forecaster.
package resample

import (
	"math"
	"time"

	"github.com/smukkama/flood-forecast/internal/series"
)

const (
	// FillWindow is the number of bins (current one included) the rolling
	// mean looks back over when filling an empty bin
	FillWindow = 10

	// SmoothingSpan is the EWMA span of the pre-smoothed signal
	SmoothingSpan = 5

	valuePlaces = 2
)

// Resample buckets records into bins of the given width. Bin starts are
// aligned to multiples of width since UTC midnight and each bin is closed on
// the left. Every bin between the first and last reading is present.
func Resample(records []series.Record, width time.Duration) series.Series {
	out := series.Series{Resolution: width}
	if len(records) == 0 || width <= 0 {
		return out
	}

	first, last := span(records)
	start := first.UTC().Truncate(width)
	n := int(last.UTC().Truncate(width).Sub(start)/width) + 1

	sums := make([]float64, n)
	counts := make([]int, n)
	for _, r := range records {
		idx := int(r.Timestamp.Sub(start) / width)
		sums[idx] += r.Value
		counts[idx]++
	}

	values := make([]float64, n)
	for i := range values {
		if counts[i] == 0 {
			values[i] = math.NaN()
			continue
		}
		values[i] = series.Round(sums[i]/float64(counts[i]), valuePlaces)
	}

	values = FillGaps(values)
	smoothed := EWMA(values, SmoothingSpan)

	out.Bins = make([]series.Bin, n)
	for i := range out.Bins {
		out.Bins[i] = series.Bin{
			Start:    start.Add(time.Duration(i) * width),
			Value:    values[i],
			Smoothed: smoothed[i],
		}
	}
	return out
}

// All resamples records at every supported resolution concurrently.
func All(records []series.Record) map[time.Duration]series.Series {
	type item struct {
		width time.Duration
		s     series.Series
	}

	results := make(chan item, len(series.Resolutions))
	for _, width := range series.Resolutions {
		go func(w time.Duration) {
			results <- item{width: w, s: Resample(records, w)}
		}(width)
	}

	out := make(map[time.Duration]series.Series, len(series.Resolutions))
	for range series.Resolutions {
		it := <-results
		out[it.width] = it.s
	}
	return out
}

func span(records []series.Record) (time.Time, time.Time) {
	first, last := records[0].Timestamp, records[0].Timestamp
	for _, r := range records[1:] {
		if r.Timestamp.Before(first) {
			first = r.Timestamp
		}
		if r.Timestamp.After(last) {
			last = r.Timestamp
		}
	}
	return first, last
}

// FillGaps fills NaN entries in two stages and returns a new slice.
//
// First, each empty entry takes the mean of the present values among itself
// and the FillWindow-1 entries before it, and the whole column is rounded to
// two places. Entries still empty then take the mean of the column as it
// stands after the first stage.
func FillGaps(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if !math.IsNaN(v) {
			out[i] = v
			continue
		}
		out[i] = rollingMean(values, i, FillWindow)
	}
	for i := range out {
		out[i] = series.Round(out[i], valuePlaces)
	}

	sum, count := 0.0, 0
	for _, v := range out {
		if !math.IsNaN(v) {
			sum += v
			count++
		}
	}
	if count == 0 {
		return out
	}
	mean := sum / float64(count)
	for i, v := range out {
		if math.IsNaN(v) {
			out[i] = mean
		}
	}
	return out
}

// rollingMean averages the non-NaN values in values[end-window+1 : end+1].
func rollingMean(values []float64, end, window int) float64 {
	from := end - window + 1
	if from < 0 {
		from = 0
	}
	sum, count := 0.0, 0
	for _, v := range values[from : end+1] {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		count++
	}
	if count == 0 {
		return math.NaN()
	}
	return sum / float64(count)
}

// EWMA computes an exponentially weighted moving average with smoothing
// factor 2/(span+1) and no bias adjustment: out[0] = values[0].
func EWMA(values []float64, span int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	lambda := 2.0 / (float64(span) + 1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = lambda*values[i] + (1-lambda)*out[i-1]
	}
	return out
}
