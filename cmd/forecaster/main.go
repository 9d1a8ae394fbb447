package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"

	"github.com/smukkama/flood-forecast/internal/api"
	"github.com/smukkama/flood-forecast/internal/archive"
	"github.com/smukkama/flood-forecast/internal/cache"
	"github.com/smukkama/flood-forecast/internal/feed"
	"github.com/smukkama/flood-forecast/internal/metrics"
	"github.com/smukkama/flood-forecast/internal/pipeline"
	"github.com/smukkama/flood-forecast/internal/queue"
	"github.com/smukkama/flood-forecast/internal/scheduler"
	"github.com/smukkama/flood-forecast/internal/service"
	"github.com/smukkama/flood-forecast/pkg/config"
)

const (
	memoSize          = 16
	statsInterval     = 15 * time.Second
	shutdownTimeout   = 30 * time.Second
	startupRefreshDue = 2 * time.Second
	refreshRetryDelay = time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      cfg.LogLevel,
		TimeFormat: time.DateTime,
	})))
	logger := slog.Default()
	logger.Info("starting forecaster", "addr", cfg.HTTP.Addr, "feed", cfg.Feed.URL)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	store := cache.NewResultStore(redisClient, cfg.Redis.ResultTTL)
	if err := store.Ping(context.Background()); err != nil {
		logger.Warn("redis not reachable yet", "addr", cfg.Redis.Addr, "error", err)
	}

	for _, topic := range []string{cfg.Kafka.TopicReadings, cfg.Kafka.TopicForecasts} {
		if err := queue.CreateTopic(cfg.Kafka.Brokers, topic, cfg.Kafka.NumPartitions, 1); err != nil {
			logger.Info("topic creation skipped (may already exist)", "topic", topic, "error", err)
		}
	}
	producer := queue.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()
	publisher := queue.NewPublisher(producer, queue.Topics{
		Readings:  cfg.Kafka.TopicReadings,
		Forecasts: cfg.Kafka.TopicForecasts,
	})

	memo, err := cache.NewMemo[*pipeline.Output](memoSize)
	if err != nil {
		logger.Error("failed to create memo", "error", err)
		os.Exit(1)
	}

	svcCfg := service.Config{
		Source:    feed.NewClient(cfg.Feed, logger.With("component", "feed")),
		Publisher: publisher,
		Store:     store,
		Memo:      memo,
		DisplayTZ: cfg.Schedule.DisplayTZ,
		Logger:    logger.With("component", "service"),
	}

	if cfg.Archive.Enabled() {
		archiveStore, err := archive.NewStore(cfg.Archive)
		if err != nil {
			logger.Error("failed to create archive store", "error", err)
			os.Exit(1)
		}
		if err := archiveStore.EnsureBucket(context.Background()); err != nil {
			logger.Warn("archive bucket check failed", "bucket", cfg.Archive.Bucket, "error", err)
		}
		svcCfg.Archive = archiveStore
		logger.Info("archiving feed snapshots", "endpoint", cfg.Archive.Endpoint, "bucket", cfg.Archive.Bucket)
	}

	svc := service.New(svcCfg)

	sched := scheduler.New(logger.With("component", "scheduler"))
	sched.Start()

	refresh := refreshJob(sched, svc, refreshRetryDelay, logger.With("component", "refresh"))
	if err := sched.ScheduleEvery("refresh", cfg.Schedule.RefreshInterval, startupRefreshDue, refresh); err != nil {
		logger.Error("failed to schedule refresh", "error", err)
		os.Exit(1)
	}
	if err := sched.ScheduleEvery("stats", statsInterval, statsInterval, func(ctx context.Context) {
		stats := sched.Stats()
		metrics.ScheduledJobs.Set(float64(stats.Scheduled))
		hits, misses := memo.Stats()
		logger.Debug("forecaster stats",
			"scheduled", stats.Scheduled,
			"running", stats.Running,
			"skipped", stats.Skipped,
			"memo_hits", hits,
			"memo_misses", misses)
	}); err != nil {
		logger.Error("failed to schedule stats", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(svc, map[string]api.Checker{
		"redis": store.Ping,
		"kafka": producer.Ping,
	}, logger.With("component", "api"))

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("http server listening", "addr", cfg.HTTP.Addr, "refresh_interval", cfg.Schedule.RefreshInterval)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	sched.Stop()
	logger.Info("forecaster stopped")
}
