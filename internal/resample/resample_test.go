package resample

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/flood-forecast/internal/series"
)

var day = time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC)

func at(minutes, seconds int, value float64) series.Record {
	return series.Record{
		Timestamp: day.Add(time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second),
		Value:     value,
	}
}

func TestResample_BinsAlignedAndContiguous(t *testing.T) {
	records := []series.Record{
		at(3, 10, 1),
		at(27, 0, 2),
		at(65, 59, 3),
	}

	s := Resample(records, 10*time.Minute)
	require.Equal(t, 7, s.Len())
	assert.Equal(t, day, s.Bins[0].Start)
	for i := 1; i < s.Len(); i++ {
		assert.Equal(t, 10*time.Minute, s.Bins[i].Start.Sub(s.Bins[i-1].Start))
	}
	assert.Equal(t, day.Add(60*time.Minute), s.Bins[6].Start)
}

func TestResample_MeanPerBinRounded(t *testing.T) {
	records := []series.Record{
		at(0, 0, 1.111),
		at(4, 0, 2.222),
		at(9, 59, 3.333),
		at(10, 0, 7),
	}

	s := Resample(records, 10*time.Minute)
	require.Equal(t, 2, s.Len())
	assert.Equal(t, 2.22, s.Bins[0].Value)
	assert.Equal(t, 7.0, s.Bins[1].Value)
}

func TestResample_EmptyInput(t *testing.T) {
	s := Resample(nil, 30*time.Minute)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 30*time.Minute, s.Resolution)
}

func TestResample_IdempotentOnRegularSeries(t *testing.T) {
	var records []series.Record
	for i := 0; i < 24; i++ {
		records = append(records, at(i*30, 0, 1.25+float64(i%5)*0.5))
	}

	first := Resample(records, 30*time.Minute)

	again := make([]series.Record, first.Len())
	for i, b := range first.Bins {
		again[i] = series.Record{Timestamp: b.Start, Value: b.Value}
	}
	second := Resample(again, 30*time.Minute)

	assert.Equal(t, first, second)
}

func TestResample_FillsGapFromPreviousBins(t *testing.T) {
	records := []series.Record{
		at(0, 0, 4),
		at(10, 0, 6),
		at(40, 0, 9),
	}

	s := Resample(records, 10*time.Minute)
	require.Equal(t, 5, s.Len())
	assert.Equal(t, []float64{4, 6, 5, 5, 9}, s.Values())
}

func TestFillGaps_FallsBackToColumnMean(t *testing.T) {
	nan := math.NaN()
	values := []float64{2, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, 4}

	filled := FillGaps(values)
	for i := 1; i <= 9; i++ {
		assert.Equal(t, 2.0, filled[i], "index %d", i)
	}
	assert.InDelta(t, 24.0/11.0, filled[10], 1e-12)
	assert.Equal(t, 4.0, filled[11])
}

func TestFillGaps_DoesNotModifyInput(t *testing.T) {
	values := []float64{1, math.NaN(), 3}
	FillGaps(values)
	assert.True(t, math.IsNaN(values[1]))
}

func TestEWMA(t *testing.T) {
	out := EWMA([]float64{3, 6, 6}, SmoothingSpan)
	require.Len(t, out, 3)
	assert.Equal(t, 3.0, out[0])
	assert.InDelta(t, 4.0, out[1], 1e-12)
	assert.InDelta(t, 14.0/3.0, out[2], 1e-12)
	assert.Empty(t, EWMA(nil, SmoothingSpan))
}

func TestAll_ProducesEveryResolution(t *testing.T) {
	var records []series.Record
	for i := 0; i < 180; i++ {
		records = append(records, at(i, 30, 10))
	}

	set := All(records)
	require.Len(t, set, len(series.Resolutions))
	assert.Equal(t, 18, set[series.Resolution10].Len())
	assert.Equal(t, 6, set[series.Resolution30].Len())
	assert.Equal(t, 3, set[series.Resolution60].Len())
}
