package database

import (
	"time"
)

// ReadingRun is the cleaning summary of one refresh run
type ReadingRun struct {
	RunID       string
	FetchedAt   time.Time
	Excluded    int
	Outliers    int
	Regressions int
}

// CleanedReading is one reading that survived cleaning
type CleanedReading struct {
	EntryID   int64
	Timestamp time.Time
	Value     float64
}

// ForecastRun is one stored cascade result
type ForecastRun struct {
	RunID       string
	GeneratedAt time.Time
	CreatedAt   time.Time
}

// ForecastResult is the forecast at one resolution of a run
type ForecastResult struct {
	ResolutionMinutes int
	Alpha             float64
	RMSE              *float64
	MAPE              *float64
	NextValue         float64
	NextTimestamp     time.Time
	Overridden        bool
	TestSize          int
	WarningLevel      string
}
