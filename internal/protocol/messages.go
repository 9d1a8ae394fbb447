package protocol

import (
	"encoding/json"
	"math"
	"time"

	"github.com/smukkama/flood-forecast/internal/cleaning"
	"github.com/smukkama/flood-forecast/internal/flood"
	"github.com/smukkama/flood-forecast/internal/forecast"
	"github.com/smukkama/flood-forecast/internal/series"
)

// ClockLayout is the 12-hour display format of forecast timestamps
const ClockLayout = "03:04:05 PM"

// Reading is one cleaned sensor reading
type Reading struct {
	EntryID   int64     `json:"entry_id"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// ReadingsMessage carries the cleaned history of one refresh run
type ReadingsMessage struct {
	RunID       string    `json:"run_id"`
	FetchedAt   time.Time `json:"fetched_at"`
	Excluded    int       `json:"excluded"`
	Outliers    int       `json:"outliers"`
	Regressions int       `json:"regressions"`
	Readings    []Reading `json:"readings"`
}

// ResolutionResult is the serialized forecast at one resolution. RMSE and
// MAPE are null when not finite.
type ResolutionResult struct {
	ResolutionMinutes  int           `json:"resolution_minutes"`
	Alpha              float64       `json:"alpha"`
	RMSE               *float64      `json:"rmse"`
	MAPE               *float64      `json:"mape"`
	NextValue          float64       `json:"next_value"`
	NextTimestamp      time.Time     `json:"next_timestamp"`
	FormattedTimestamp string        `json:"formatted_timestamp"`
	Overridden         bool          `json:"overridden"`
	TestSize           int           `json:"test_size"`
	LowConfidence      bool          `json:"low_confidence"`
	Warning            flood.Warning `json:"warning"`
}

// ForecastMessage is the cascade result of one refresh run
type ForecastMessage struct {
	RunID       string             `json:"run_id"`
	GeneratedAt time.Time          `json:"generated_at"`
	Results     []ResolutionResult `json:"results"`
}

// NewReadingsMessage builds the message for a cleaned history.
func NewReadingsMessage(runID string, fetchedAt time.Time, cleaned cleaning.Result) *ReadingsMessage {
	readings := make([]Reading, len(cleaned.Records))
	for i, r := range cleaned.Records {
		readings[i] = Reading{EntryID: r.EntryID, Timestamp: r.Timestamp, Value: r.Value}
	}
	return &ReadingsMessage{
		RunID:       runID,
		FetchedAt:   fetchedAt,
		Excluded:    cleaned.Excluded,
		Outliers:    cleaned.Outliers,
		Regressions: cleaned.Regressions,
		Readings:    readings,
	}
}

// Records converts the readings back to series records.
func (m *ReadingsMessage) Records() []series.Record {
	out := make([]series.Record, len(m.Readings))
	for i, r := range m.Readings {
		out[i] = series.Record{EntryID: r.EntryID, Timestamp: r.Timestamp, Value: r.Value}
	}
	return out
}

// NewForecastMessage serializes a cascade result. Timestamps are formatted
// in loc (UTC when nil).
func NewForecastMessage(runID string, generatedAt time.Time, result forecast.CascadeResult, loc *time.Location) *ForecastMessage {
	msg := &ForecastMessage{RunID: runID, GeneratedAt: generatedAt}
	for _, r := range result.Results {
		msg.Results = append(msg.Results, NewResolutionResult(r, loc))
	}
	return msg
}

func NewResolutionResult(r forecast.Result, loc *time.Location) ResolutionResult {
	return ResolutionResult{
		ResolutionMinutes:  series.MinutesOf(r.Resolution),
		Alpha:              r.Alpha,
		RMSE:               finite(r.RMSE),
		MAPE:               finite(r.MAPE),
		NextValue:          r.NextValue,
		NextTimestamp:      r.NextTimestamp,
		FormattedTimestamp: FormatClock(r.NextTimestamp, loc),
		Overridden:         r.Overridden,
		TestSize:           r.TestSize,
		LowConfidence:      r.LowConfidence(),
		Warning:            flood.ClassifyReading(r.NextValue),
	}
}

// Get returns the result for a resolution in minutes.
func (m *ForecastMessage) Get(minutes int) (ResolutionResult, bool) {
	for _, r := range m.Results {
		if r.ResolutionMinutes == minutes {
			return r, true
		}
	}
	return ResolutionResult{}, false
}

// FormatClock renders t as a 12-hour wall clock time in loc.
func FormatClock(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(ClockLayout)
}

func finite(x float64) *float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil
	}
	return &x
}

// EncodeReadingsMessage encodes a ReadingsMessage to JSON
func EncodeReadingsMessage(msg *ReadingsMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeReadingsMessage decodes JSON to ReadingsMessage
func DecodeReadingsMessage(data []byte) (*ReadingsMessage, error) {
	var msg ReadingsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EncodeForecastMessage encodes a ForecastMessage to JSON
func EncodeForecastMessage(msg *ForecastMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeForecastMessage decodes JSON to ForecastMessage
func DecodeForecastMessage(data []byte) (*ForecastMessage, error) {
	var msg ForecastMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
