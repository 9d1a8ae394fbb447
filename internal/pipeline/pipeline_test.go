package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/flood-forecast/internal/forecast"
	"github.com/smukkama/flood-forecast/internal/series"
)

func constantWithSpike(start time.Time, minutes int, spikeAt int) []series.Record {
	records := make([]series.Record, 0, minutes)
	for i := 0; i < minutes; i++ {
		v := 10.0
		if i == spikeAt {
			v = 10000
		}
		records = append(records, series.Record{
			EntryID:   int64(i + 1),
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Value:     v,
		})
	}
	return records
}

func TestRun_ConstantSeriesWithSpike(t *testing.T) {
	start := time.Date(2025, time.May, 20, 9, 0, 0, 0, time.UTC)
	records := constantWithSpike(start, 300, 137)

	out, err := Run(records)
	require.NoError(t, err)

	assert.Equal(t, 1, out.Cleaning.Outliers)
	assert.Len(t, out.Cleaning.Records, 299)
	for _, r := range out.Cleaning.Records {
		assert.NotEqual(t, int64(138), r.EntryID)
	}

	ten := out.Resampled[series.Resolution10]
	require.Equal(t, 30, ten.Len())
	for _, b := range ten.Bins {
		assert.Equal(t, 10.0, b.Value)
	}

	require.Len(t, out.Forecast.Results, 3)
	for _, r := range out.Forecast.Results {
		assert.Equal(t, 10.0, r.NextValue, "resolution %v", r.Resolution)
		assert.Equal(t, start.Add(5*time.Hour), r.NextTimestamp)
	}
}

func TestRun_EmptyHistory(t *testing.T) {
	_, err := RunForecast(nil)
	assert.True(t, errors.Is(err, forecast.ErrInputTooSmall))
}

func TestRun_LeavesInputUntouched(t *testing.T) {
	start := time.Date(2025, time.May, 20, 9, 0, 0, 0, time.UTC)
	records := constantWithSpike(start, 120, 5)
	before := series.CopyRecords(records)

	_, err := Run(records)
	require.NoError(t, err)
	assert.Equal(t, before, records)
}
