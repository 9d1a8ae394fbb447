package protocol

import (
	"time"

	"github.com/smukkama/flood-forecast/internal/feed"
)

// ForecastResponse is the body of GET /forecast. The flat fields keep the
// shape the dashboard polls; Details carries the full per-resolution result.
type ForecastResponse struct {
	Forecast10  float64            `json:"forecast_10min"`
	Timestamp10 string             `json:"timestamp_10min"`
	Forecast30  float64            `json:"forecast_30min"`
	Timestamp30 string             `json:"timestamp_30min"`
	Forecast60  float64            `json:"forecast_60min"`
	Timestamp60 string             `json:"timestamp_60min"`
	RunID       string             `json:"run_id"`
	GeneratedAt time.Time          `json:"generated_at"`
	Details     []ResolutionResult `json:"details"`
}

func NewForecastResponse(msg *ForecastMessage) ForecastResponse {
	resp := ForecastResponse{
		RunID:       msg.RunID,
		GeneratedAt: msg.GeneratedAt,
		Details:     msg.Results,
	}
	if r, ok := msg.Get(10); ok {
		resp.Forecast10, resp.Timestamp10 = r.NextValue, r.FormattedTimestamp
	}
	if r, ok := msg.Get(30); ok {
		resp.Forecast30, resp.Timestamp30 = r.NextValue, r.FormattedTimestamp
	}
	if r, ok := msg.Get(60); ok {
		resp.Forecast60, resp.Timestamp60 = r.NextValue, r.FormattedTimestamp
	}
	return resp
}

// LevelsMessage is the latest reading of every device, as cached and served
// by GET /latest
type LevelsMessage struct {
	FetchedAt time.Time          `json:"fetched_at"`
	Devices   []feed.DeviceLevel `json:"devices"`
}
