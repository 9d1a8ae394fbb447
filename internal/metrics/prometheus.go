// Package metrics exports refresh and API metrics to Prometheus
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/smukkama/flood-forecast/internal/forecast"
	"github.com/smukkama/flood-forecast/internal/series"
)

var (
	// RequestsTotal counts API requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flood_requests_total",
			Help: "Total number of API requests processed",
		},
		[]string{"endpoint", "method", "status"},
	)

	// RequestDuration times API requests
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flood_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		},
		[]string{"endpoint", "method"},
	)

	// RefreshTotal counts refresh runs by outcome
	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flood_refresh_total",
			Help: "Total number of refresh runs",
		},
		[]string{"outcome"},
	)

	// RefreshDuration times full refresh runs
	RefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flood_refresh_duration_seconds",
			Help:    "Refresh run duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// ReadingsFetched is the size of the last fetched history
	ReadingsFetched = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flood_readings_fetched",
			Help: "Readings in the last fetched history after the ingestion policy",
		},
	)

	// ReadingsDropped counts readings removed by cleaning
	ReadingsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flood_readings_dropped_total",
			Help: "Readings removed by cleaning",
		},
		[]string{"reason"},
	)

	// TimestampRegressions counts out-of-order timestamps seen after cleaning
	TimestampRegressions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flood_timestamp_regressions_total",
			Help: "Timestamp regressions seen in cleaned histories",
		},
	)

	// ForecastValue is the latest forecast per resolution
	ForecastValue = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flood_forecast_value",
			Help: "Latest forecast water level per resolution",
		},
		[]string{"resolution_minutes"},
	)

	// ForecastAlpha is the selected smoothing factor per resolution
	ForecastAlpha = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flood_forecast_alpha",
			Help: "Selected smoothing factor per resolution",
		},
		[]string{"resolution_minutes"},
	)

	// ForecastRMSE is the walk-forward RMSE per resolution
	ForecastRMSE = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flood_forecast_rmse",
			Help: "Walk-forward RMSE of the selected alpha per resolution",
		},
		[]string{"resolution_minutes"},
	)

	// CascadeOverrides counts coarser forecasts replaced by finer ones
	CascadeOverrides = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flood_cascade_overrides_total",
			Help: "Coarser forecasts replaced by the finer resolution",
		},
		[]string{"resolution_minutes"},
	)

	// MemoHits and MemoMisses count pipeline memo lookups
	MemoHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flood_memo_hits_total",
			Help: "Refreshes served from the pipeline memo",
		},
	)

	MemoMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flood_memo_misses_total",
			Help: "Refreshes that ran the pipeline",
		},
	)

	// ScheduledJobs is the number of jobs waiting in the scheduler
	ScheduledJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flood_scheduled_jobs",
			Help: "Jobs waiting in the scheduler",
		},
	)
)

// UpdateForecastMetrics records a cascade result.
func UpdateForecastMetrics(result forecast.CascadeResult) {
	for _, r := range result.Results {
		label := strconv.Itoa(series.MinutesOf(r.Resolution))
		ForecastValue.WithLabelValues(label).Set(r.NextValue)
		ForecastAlpha.WithLabelValues(label).Set(r.Alpha)
		ForecastRMSE.WithLabelValues(label).Set(r.RMSE)
		if r.Overridden {
			CascadeOverrides.WithLabelValues(label).Inc()
		}
	}
}

// UpdateCleaningMetrics records what cleaning removed.
func UpdateCleaningMetrics(excluded, outliers, regressions int) {
	ReadingsDropped.WithLabelValues("exclusion_window").Add(float64(excluded))
	ReadingsDropped.WithLabelValues("outlier").Add(float64(outliers))
	TimestampRegressions.Add(float64(regressions))
}
