// Package pipeline wires cleaning, resampling and forecasting into the single
// RunForecast operation.
package pipeline

import (
	"time"

	"github.com/smukkama/flood-forecast/internal/cleaning"
	"github.com/smukkama/flood-forecast/internal/forecast"
	"github.com/smukkama/flood-forecast/internal/resample"
	"github.com/smukkama/flood-forecast/internal/series"
)

// Output is everything one pipeline run produced
type Output struct {
	Cleaning  cleaning.Result
	Resampled map[time.Duration]series.Series
	Forecast  forecast.CascadeResult
}

// Run cleans records, resamples them at every resolution and runs the
// forecast cascade. The caller's slice is never modified.
func Run(records []series.Record) (*Output, error) {
	cleaned := cleaning.Clean(series.CopyRecords(records))
	return RunCleaned(cleaned)
}

// RunCleaned runs the resampling and forecasting stages on an already
// cleaned history.
func RunCleaned(cleaned cleaning.Result) (*Output, error) {
	resampled := resample.All(cleaned.Records)

	result, err := forecast.Cascade(resampled)
	if err != nil {
		return nil, err
	}

	return &Output{
		Cleaning:  cleaned,
		Resampled: resampled,
		Forecast:  result,
	}, nil
}

// RunForecast is Run without the intermediate series.
func RunForecast(records []series.Record) (forecast.CascadeResult, error) {
	out, err := Run(records)
	if err != nil {
		return forecast.CascadeResult{}, err
	}
	return out.Forecast, nil
}
