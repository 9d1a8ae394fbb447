// Package service runs refresh cycles: fetch the feed, clean and forecast
// the history, then cache and publish the result.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smukkama/flood-forecast/internal/cache"
	"github.com/smukkama/flood-forecast/internal/feed"
	"github.com/smukkama/flood-forecast/internal/metrics"
	"github.com/smukkama/flood-forecast/internal/pipeline"
	"github.com/smukkama/flood-forecast/internal/protocol"
	"github.com/smukkama/flood-forecast/internal/series"
)

// Source is where the raw feed comes from
type Source interface {
	FetchFeeds(ctx context.Context) ([]feed.Entry, error)
	Policy() feed.Policy
}

// Archiver stores raw feed snapshots
type Archiver interface {
	PutSnapshot(ctx context.Context, runID string, fetchedAt time.Time, entries []feed.Entry) (string, error)
}

// Publisher announces refresh runs to downstream consumers
type Publisher interface {
	PublishReadings(ctx context.Context, msg *protocol.ReadingsMessage) error
	PublishForecast(ctx context.Context, msg *protocol.ForecastMessage) error
}

// ResultStore keeps the latest results for the API
type ResultStore interface {
	SaveForecast(ctx context.Context, msg *protocol.ForecastMessage) error
	LatestForecast(ctx context.Context) (*protocol.ForecastMessage, error)
	SaveLevels(ctx context.Context, msg *protocol.LevelsMessage) error
	LatestLevels(ctx context.Context) (*protocol.LevelsMessage, error)
}

// Config wires the collaborators of a Service. Archive and Publisher are
// optional.
type Config struct {
	Source    Source
	Archive   Archiver
	Publisher Publisher
	Store     ResultStore
	Memo      *cache.Memo[*pipeline.Output]
	DisplayTZ *time.Location
	Logger    *slog.Logger
}

type Service struct {
	source    Source
	archive   Archiver
	publisher Publisher
	store     ResultStore
	memo      *cache.Memo[*pipeline.Output]
	loc       *time.Location
	logger    *slog.Logger
	now       func() time.Time

	refreshMu sync.Mutex
}

func New(cfg Config) *Service {
	loc := cfg.DisplayTZ
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		source:    cfg.Source,
		archive:   cfg.Archive,
		publisher: cfg.Publisher,
		store:     cfg.Store,
		memo:      cfg.Memo,
		loc:       loc,
		logger:    cfg.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Refresh fetches the feed and recomputes the forecast cascade. Refreshes
// are serialized.
func (s *Service) Refresh(ctx context.Context) (*protocol.ForecastMessage, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	start := time.Now()
	msg, err := s.refresh(ctx)
	metrics.RefreshDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RefreshTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.RefreshTotal.WithLabelValues("ok").Inc()
	return msg, nil
}

func (s *Service) refresh(ctx context.Context) (*protocol.ForecastMessage, error) {
	runID := uuid.NewString()
	fetchedAt := s.now()
	logger := s.logger.With("run_id", runID)

	entries, err := s.source.FetchFeeds(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}

	policy := s.source.Policy()

	levels := &protocol.LevelsMessage{FetchedAt: fetchedAt, Devices: policy.Latest(entries)}
	if err := s.store.SaveLevels(ctx, levels); err != nil {
		logger.Error("failed to cache device levels", "error", err)
	}

	if s.archive != nil {
		key, err := s.archive.PutSnapshot(ctx, runID, fetchedAt, entries)
		if err != nil {
			logger.Error("failed to archive feed snapshot", "error", err)
		} else {
			logger.Debug("archived feed snapshot", "key", key)
		}
	}

	records := policy.History(entries)
	metrics.ReadingsFetched.Set(float64(len(records)))

	out, fresh, err := s.run(records)
	if err != nil {
		return nil, fmt.Errorf("failed to run pipeline: %w", err)
	}

	msg := protocol.NewForecastMessage(runID, fetchedAt, out.Forecast, s.loc)
	if err := s.store.SaveForecast(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to cache forecast: %w", err)
	}

	if fresh {
		metrics.UpdateCleaningMetrics(out.Cleaning.Excluded, out.Cleaning.Outliers, out.Cleaning.Regressions)
		metrics.UpdateForecastMetrics(out.Forecast)
		s.publish(ctx, logger, protocol.NewReadingsMessage(runID, fetchedAt, out.Cleaning), msg)
	}

	logger.Info("refresh completed",
		"entries", len(entries),
		"records", len(records),
		"cleaned", len(out.Cleaning.Records),
		"outliers", out.Cleaning.Outliers,
		"regressions", out.Cleaning.Regressions,
		"recomputed", fresh)
	return msg, nil
}

// run returns the pipeline output for records and whether it was computed
// rather than taken from the memo.
func (s *Service) run(records []series.Record) (*pipeline.Output, bool, error) {
	if s.memo == nil {
		out, err := pipeline.Run(records)
		return out, true, err
	}

	key := cache.Fingerprint(records)
	if out, ok := s.memo.Get(key); ok {
		metrics.MemoHits.Inc()
		return out, false, nil
	}
	metrics.MemoMisses.Inc()

	out, err := pipeline.Run(records)
	if err != nil {
		return nil, true, err
	}
	s.memo.Add(key, out)
	return out, true, nil
}

func (s *Service) publish(ctx context.Context, logger *slog.Logger, readings *protocol.ReadingsMessage, forecast *protocol.ForecastMessage) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishReadings(ctx, readings); err != nil {
		logger.Error("failed to publish readings", "error", err)
	}
	if err := s.publisher.PublishForecast(ctx, forecast); err != nil {
		logger.Error("failed to publish forecast", "error", err)
	}
}

// Latest returns the cached forecast, refreshing first when none is cached.
func (s *Service) Latest(ctx context.Context) (*protocol.ForecastMessage, error) {
	msg, err := s.store.LatestForecast(ctx)
	if err == nil {
		return msg, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		return nil, err
	}
	return s.Refresh(ctx)
}

// Levels returns the cached device levels, refreshing first when none are
// cached. Levels are cached even when the forecast fails.
func (s *Service) Levels(ctx context.Context) (*protocol.LevelsMessage, error) {
	msg, err := s.store.LatestLevels(ctx)
	if err == nil {
		return msg, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		return nil, err
	}

	_, refreshErr := s.Refresh(ctx)
	msg, err = s.store.LatestLevels(ctx)
	if err != nil {
		if refreshErr != nil {
			return nil, refreshErr
		}
		return nil, err
	}
	return msg, nil
}
