// Package api serves forecasts and device levels over HTTP
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smukkama/flood-forecast/internal/feed"
	"github.com/smukkama/flood-forecast/internal/forecast"
	"github.com/smukkama/flood-forecast/internal/protocol"
)

// Forecaster is the service behind the API
type Forecaster interface {
	Latest(ctx context.Context) (*protocol.ForecastMessage, error)
	Levels(ctx context.Context) (*protocol.LevelsMessage, error)
	Refresh(ctx context.Context) (*protocol.ForecastMessage, error)
}

// Checker reports whether a dependency is reachable
type Checker func(ctx context.Context) error

const healthCheckTimeout = 2 * time.Second

// Handler holds the dependencies of the HTTP handlers
type Handler struct {
	svc       Forecaster
	checks    map[string]Checker
	logger    *slog.Logger
	startTime time.Time
}

func NewHandler(svc Forecaster, checks map[string]Checker, logger *slog.Logger) *Handler {
	return &Handler{
		svc:       svc,
		checks:    checks,
		logger:    logger,
		startTime: time.Now(),
	}
}

// Router builds the route table with logging, metrics and CORS middleware.
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/forecast", h.ForecastHandler).Methods(http.MethodGet)
	router.HandleFunc("/latest", h.LatestHandler).Methods(http.MethodGet)
	router.HandleFunc("/refresh", h.RefreshHandler).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/health", h.HealthHandler).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler())

	// Paths the dashboard polls
	router.HandleFunc("/forecast_data", h.ForecastHandler).Methods(http.MethodGet)
	router.HandleFunc("/get_latest", h.LatestReadingsHandler).Methods(http.MethodGet)

	router.Use(corsMiddleware)
	router.Use(h.loggingMiddleware)
	router.Use(metricsMiddleware)
	return router
}

// ForecastHandler handles GET /forecast
func (h *Handler) ForecastHandler(w http.ResponseWriter, r *http.Request) {
	msg, err := h.svc.Latest(r.Context())
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	h.respondJSON(w, protocol.NewForecastResponse(msg), http.StatusOK)
}

// RefreshHandler handles POST /refresh
func (h *Handler) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	msg, err := h.svc.Refresh(r.Context())
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	h.respondJSON(w, protocol.NewForecastResponse(msg), http.StatusOK)
}

// LatestHandler handles GET /latest
func (h *Handler) LatestHandler(w http.ResponseWriter, r *http.Request) {
	msg, err := h.svc.Levels(r.Context())
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	h.respondJSON(w, msg, http.StatusOK)
}

// LatestReadingsHandler handles GET /get_latest: the raw reading of each
// reporting device in field order.
func (h *Handler) LatestReadingsHandler(w http.ResponseWriter, r *http.Request) {
	msg, err := h.svc.Levels(r.Context())
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	h.respondJSON(w, readingsByField(msg.Devices), http.StatusOK)
}

func readingsByField(devices []feed.DeviceLevel) []float64 {
	out := make([]float64, len(devices))
	for i, d := range devices {
		out[i] = d.Reading
	}
	return out
}

// HealthStatus is the body of GET /health
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Uptime    string            `json:"uptime"`
}

// HealthHandler handles GET /health
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]string, len(h.checks)),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}

	code := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status.Checks[name] = "disconnected"
			status.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		status.Checks[name] = "connected"
	}

	h.respondJSON(w, status, code)
}

// StatusFor maps a service error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, forecast.ErrInputTooSmall), errors.Is(err, forecast.ErrDegenerateStatistic):
		return http.StatusServiceUnavailable
	case errors.Is(err, feed.ErrUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondFailure(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusFor(err)
	h.logger.Error("request failed", "path", r.URL.Path, "status", code, "error", err)

	message := "internal error"
	switch code {
	case http.StatusServiceUnavailable:
		message = "forecast unavailable: " + err.Error()
	case http.StatusBadGateway:
		message = "feed unavailable"
	}
	h.respondError(w, message, code)
}

func (h *Handler) respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "status", status, "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, message string, status int) {
	h.respondJSON(w, map[string]string{"error": message}, status)
}
