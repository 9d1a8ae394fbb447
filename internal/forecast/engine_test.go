package forecast

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/flood-forecast/internal/series"
)

var origin = time.Date(2025, time.April, 7, 6, 0, 0, 0, time.UTC)

func makeSeries(resolution time.Duration, values ...float64) series.Series {
	s := series.Series{Resolution: resolution}
	for i, v := range values {
		s.Bins = append(s.Bins, series.Bin{
			Start:    origin.Add(time.Duration(i) * resolution),
			Value:    v,
			Smoothed: v,
		})
	}
	return s
}

func TestAlphas(t *testing.T) {
	alphas := Alphas()
	require.Len(t, alphas, 9)
	assert.Equal(t, 0.1, alphas[0])
	assert.InDelta(t, 0.9, alphas[8], 1e-12)
	for i := 1; i < len(alphas); i++ {
		assert.Greater(t, alphas[i], alphas[i-1])
	}
}

func TestSplitIndex(t *testing.T) {
	assert.Equal(t, 0, SplitIndex(1))
	assert.Equal(t, 1, SplitIndex(2))
	assert.Equal(t, 8, SplitIndex(10))
	assert.Equal(t, 24, SplitIndex(30))
}

func TestWalkForward_FirstStepReadsLastActual(t *testing.T) {
	forecasts := WalkForward(0, []float64{1, 2, 3}, 0.5)
	assert.Equal(t, []float64{1.5, 1.25, 1.625}, forecasts)
}

func TestRMSE(t *testing.T) {
	assert.Equal(t, 0.0, RMSE([]float64{1, 2}, []float64{1, 2}))
	assert.InDelta(t, math.Sqrt(2.5), RMSE([]float64{1, 2}, []float64{2, 4}), 1e-12)
	assert.True(t, math.IsNaN(RMSE(nil, nil)))
}

func TestMAPE_SkipsZeroActuals(t *testing.T) {
	assert.InDelta(t, 50.0, MAPE([]float64{0, 2, 4}, []float64{9, 1, 6}), 1e-12)
	assert.True(t, math.IsNaN(MAPE([]float64{0, 0}, []float64{1, 1})))
}

func TestForecast_InputTooSmall(t *testing.T) {
	for _, s := range []series.Series{
		makeSeries(series.Resolution10),
		makeSeries(series.Resolution10, 5),
	} {
		_, err := Forecast(s)
		assert.True(t, errors.Is(err, ErrInputTooSmall), "len %d: %v", s.Len(), err)
	}
}

func TestForecast_ConstantSeries(t *testing.T) {
	s := makeSeries(series.Resolution30, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7)

	r, err := Forecast(s)
	require.NoError(t, err)
	assert.Equal(t, 7.0, r.NextValue)
	assert.InDelta(t, 0.0, r.RMSE, 1e-9)
	assert.InDelta(t, 0.0, r.MAPE, 1e-9)
	assert.Equal(t, 2, r.TestSize)
	assert.False(t, r.LowConfidence())
	assert.Equal(t, origin.Add(10*series.Resolution30), r.NextTimestamp)
}

func TestForecast_AlphaAlwaysFromGrid(t *testing.T) {
	s := makeSeries(series.Resolution10, 3, 5, 4, 8, 6, 9, 7, 12, 10, 11, 15, 13, 9, 14, 16)

	r, err := Forecast(s)
	require.NoError(t, err)

	found := false
	for _, a := range Alphas() {
		if a == r.Alpha {
			found = true
		}
	}
	assert.True(t, found, "alpha %v not in grid", r.Alpha)
	assert.GreaterOrEqual(t, r.RMSE, 0.0)
	assert.GreaterOrEqual(t, r.MAPE, 0.0)
	assert.Equal(t, series.Round(r.NextValue, 3), r.NextValue)
}

func TestForecast_SingleTestPointIsLowConfidence(t *testing.T) {
	s := makeSeries(series.Resolution60, 10, 10, 10, 10, 20)

	r, err := Forecast(s)
	require.NoError(t, err)
	assert.Equal(t, 1, r.TestSize)
	assert.True(t, r.LowConfidence())
	// The error shrinks monotonically with alpha, so every candidate wins.
	assert.Equal(t, Alphas()[8], r.Alpha)
}

func TestForecast_NextValueUsesLastCandidateForecast(t *testing.T) {
	s := makeSeries(series.Resolution10, 10, 10, 10, 10, 10, 10, 10, 10, 12, 20)

	r, err := Forecast(s)
	require.NoError(t, err)

	// 0.2 is the only candidate after 0.1 that improves both scores.
	best := Alphas()[1]
	require.Equal(t, best, r.Alpha)

	last := WalkForward(10, []float64{12, 20}, Alphas()[8])
	want := series.Round(best*20+(1-best)*last[1], 3)
	assert.Equal(t, want, r.NextValue)
	assert.InDelta(t, 14.16, r.NextValue, 1e-9)
}

func TestForecast_AllZeroSeriesIsDegenerate(t *testing.T) {
	s := makeSeries(series.Resolution10, 0, 0, 0, 0, 0)

	_, err := Forecast(s)
	assert.True(t, errors.Is(err, ErrDegenerateStatistic))
}
