package forecast

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/flood-forecast/internal/series"
)

func TestApply_CollisionCopiesFinerValue(t *testing.T) {
	target := origin.Add(time.Hour)
	finer := Result{Resolution: series.Resolution10, NextValue: 12.345, NextTimestamp: target}
	coarser := Result{Resolution: series.Resolution30, NextValue: 99.9, NextTimestamp: target, Alpha: 0.4}

	got, err := Apply(&finer, coarser)
	require.NoError(t, err)
	assert.Equal(t, 12.345, got.NextValue)
	assert.True(t, got.Overridden)
	assert.Equal(t, 0.4, got.Alpha)
}

func TestApply_DistinctTimestampsKeepOwnValue(t *testing.T) {
	finer := Result{Resolution: series.Resolution10, NextValue: 1, NextTimestamp: origin.Add(10 * time.Minute)}
	coarser := Result{Resolution: series.Resolution30, NextValue: 2, NextTimestamp: origin.Add(30 * time.Minute)}

	got, err := Apply(&finer, coarser)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.NextValue)
	assert.False(t, got.Overridden)
}

func TestApply_MissingFiner(t *testing.T) {
	_, err := Apply(nil, Result{Resolution: series.Resolution60})
	assert.True(t, errors.Is(err, ErrMissingCascadeDependency))
}

func TestCascade_RunsInOrderAndOverrides(t *testing.T) {
	// Ten-minute bins from 06:00 to 07:50 and coarser bins over the same
	// span all forecast 08:00.
	set := map[time.Duration]series.Series{
		series.Resolution10: makeSeries(series.Resolution10, 5, 6, 5, 6, 5, 6, 5, 6, 5, 6, 5, 6),
		series.Resolution30: makeSeries(series.Resolution30, 1, 2, 3, 4),
		series.Resolution60: makeSeries(series.Resolution60, 40, 50),
	}

	res, err := Cascade(set)
	require.NoError(t, err)
	require.Len(t, res.Results, 3)

	ten, _ := res.Get(series.Resolution10)
	thirty, _ := res.Get(series.Resolution30)
	sixty, ok := res.Get(series.Resolution60)
	require.True(t, ok)

	assert.Equal(t, origin.Add(2*time.Hour), ten.NextTimestamp)
	assert.Equal(t, ten.NextTimestamp, thirty.NextTimestamp)
	assert.Equal(t, ten.NextTimestamp, sixty.NextTimestamp)
	assert.Equal(t, ten.NextValue, thirty.NextValue)
	assert.Equal(t, thirty.NextValue, sixty.NextValue)
	assert.False(t, ten.Overridden)
	assert.True(t, thirty.Overridden)
	assert.True(t, sixty.Overridden)
}

func TestCascade_FinestFailureAborts(t *testing.T) {
	set := map[time.Duration]series.Series{
		series.Resolution10: makeSeries(series.Resolution10, 1),
		series.Resolution30: makeSeries(series.Resolution30, 1, 2, 3, 4),
		series.Resolution60: makeSeries(series.Resolution60, 1, 2, 3),
	}

	res, err := Cascade(set)
	assert.True(t, errors.Is(err, ErrInputTooSmall))
	assert.Empty(t, res.Results)
}
