// Package forecast grid-searches a simple exponential smoothing model per
// resolution and chains the per-resolution forecasts into a cascade.
package forecast

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/smukkama/flood-forecast/internal/series"
)

const (
	// TrainFraction is the positional share of bins used as training data
	TrainFraction = 0.8

	alphaStart      = 0.1
	alphaStep       = 0.1
	alphaCandidates = 9
	nextValuePlaces = 3
)

var (
	// ErrInputTooSmall means a series cannot form non-empty train and test segments
	ErrInputTooSmall = errors.New("input too small to forecast")

	// ErrDegenerateStatistic means no alpha candidate produced comparable scores
	ErrDegenerateStatistic = errors.New("degenerate error statistic")

	// ErrMissingCascadeDependency means a coarser resolution ran without its finer result
	ErrMissingCascadeDependency = errors.New("missing finer resolution result")
)

// Result is the forecast for one resolution
type Result struct {
	Resolution    time.Duration
	Alpha         float64
	RMSE          float64
	MAPE          float64
	NextValue     float64
	NextTimestamp time.Time

	// TestSize is the number of held-out bins the scores were computed on.
	TestSize int

	// Overridden is set when the cascade replaced NextValue with the finer
	// resolution's forecast.
	Overridden bool
}

// LowConfidence reports whether the scores rest on a single test point.
func (r Result) LowConfidence() bool {
	return r.TestSize < 2
}

// Alphas returns the smoothing factors tried by the grid search, generated as
// start + i*step so the values match an arange over [0.1, 1).
func Alphas() []float64 {
	out := make([]float64, alphaCandidates)
	for i := range out {
		out[i] = alphaStart + float64(i)*alphaStep
	}
	return out
}

// SplitIndex returns the position where the test segment starts.
func SplitIndex(n int) int {
	return int(math.Floor(TrainFraction * float64(n)))
}

// WalkForward produces one forecast per actual value. The first forecast is
// seeded with seed; each step blends the previous actual with the previous
// forecast. For i == 0 the "previous actual" is the last element of actual.
func WalkForward(seed float64, actual []float64, alpha float64) []float64 {
	n := len(actual)
	forecasts := make([]float64, n)
	last := seed
	for i := 0; i < n; i++ {
		prev := actual[(i-1+n)%n]
		f := alpha*prev + (1-alpha)*last
		forecasts[i] = f
		last = f
	}
	return forecasts
}

// RMSE is the root mean squared error between actual and predicted.
func RMSE(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := range actual {
		d := actual[i] - predicted[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(actual)))
}

// MAPE is the mean absolute percentage error, in percent. Positions where the
// actual value is exactly zero are skipped; if none remain the result is NaN.
func MAPE(actual, predicted []float64) float64 {
	sum, count := 0.0, 0
	for i, a := range actual {
		if a == 0 {
			continue
		}
		sum += math.Abs((a - predicted[i]) / a)
		count++
	}
	if count == 0 {
		return math.NaN()
	}
	return sum / float64(count) * 100
}

// Forecast selects alpha by walk-forward evaluation on the held-out tail of s
// and returns the one-step-ahead forecast after the last bin.
//
// A candidate replaces the current best only when it is strictly better on
// both RMSE and MAPE. The final walk-forward forecast that feeds the next
// value comes from the last candidate evaluated, not from the best one.
func Forecast(s series.Series) (Result, error) {
	n := s.Len()
	split := SplitIndex(n)
	if split == 0 || split >= n {
		return Result{}, fmt.Errorf("%w: %d bins at %v", ErrInputTooSmall, n, s.Resolution)
	}

	train := s.Bins[:split]
	test := s.Bins[split:]
	actual := series.Series{Bins: test}.SmoothedValues()
	seed := train[len(train)-1].Smoothed

	bestAlpha := math.NaN()
	bestRMSE := math.Inf(1)
	bestMAPE := math.Inf(1)

	var forecasts []float64
	for _, alpha := range Alphas() {
		forecasts = WalkForward(seed, actual, alpha)
		rmse := RMSE(actual, forecasts)
		mape := MAPE(actual, forecasts)

		if mape < bestMAPE && rmse < bestRMSE {
			bestAlpha = alpha
			bestRMSE = rmse
			bestMAPE = mape
		}
	}

	if math.IsNaN(bestAlpha) {
		return Result{}, fmt.Errorf("%w: no alpha improved both scores at %v", ErrDegenerateStatistic, s.Resolution)
	}

	lastBin := test[len(test)-1]
	lastForecast := forecasts[len(forecasts)-1]
	next := bestAlpha*lastBin.Value + (1-bestAlpha)*lastForecast

	return Result{
		Resolution:    s.Resolution,
		Alpha:         bestAlpha,
		RMSE:          bestRMSE,
		MAPE:          bestMAPE,
		NextValue:     series.Round(next, nextValuePlaces),
		NextTimestamp: lastBin.Start.Add(s.Resolution),
		TestSize:      len(test),
	}, nil
}
