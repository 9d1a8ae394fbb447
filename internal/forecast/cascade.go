package forecast

import (
	"fmt"
	"time"

	"github.com/smukkama/flood-forecast/internal/series"
)

// CascadeResult holds one forecast per resolution, finest first
type CascadeResult struct {
	Results []Result
}

// Get returns the result for a resolution.
func (c CascadeResult) Get(resolution time.Duration) (Result, bool) {
	for _, r := range c.Results {
		if r.Resolution == resolution {
			return r, true
		}
	}
	return Result{}, false
}

// Apply resolves a timestamp collision between a finer and a coarser result.
// When both target the same instant the coarser value is replaced by the
// finer one; otherwise the coarser result is returned unchanged.
func Apply(finer *Result, coarser Result) (Result, error) {
	if finer == nil {
		return Result{}, fmt.Errorf("%w: cannot cascade into %v", ErrMissingCascadeDependency, coarser.Resolution)
	}
	if coarser.NextTimestamp.Equal(finer.NextTimestamp) {
		coarser.NextValue = finer.NextValue
		coarser.Overridden = true
	}
	return coarser, nil
}

// Cascade runs the engine on each resolution in series.Resolutions order,
// feeding every result into the next coarser one. Any failure aborts the
// whole cascade and no partial result is returned.
func Cascade(set map[time.Duration]series.Series) (CascadeResult, error) {
	var out CascadeResult
	var finer *Result

	for _, resolution := range series.Resolutions {
		s, ok := set[resolution]
		if !ok {
			return CascadeResult{}, fmt.Errorf("%w: no series at %v", ErrInputTooSmall, resolution)
		}

		r, err := Forecast(s)
		if err != nil {
			return CascadeResult{}, fmt.Errorf("failed to forecast %v: %w", resolution, err)
		}

		if finer != nil {
			if r, err = Apply(finer, r); err != nil {
				return CascadeResult{}, err
			}
		}

		out.Results = append(out.Results, r)
		prev := r
		finer = &prev
	}

	return out, nil
}
