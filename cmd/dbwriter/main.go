package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/smukkama/flood-forecast/internal/database"
	"github.com/smukkama/flood-forecast/internal/queue"
	"github.com/smukkama/flood-forecast/pkg/config"
)

const (
	batchSize     = 20
	flushInterval = 5 * time.Second
	statsInterval = 60 * time.Second
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
	logger.Info("starting database writer")

	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database", "host", cfg.Database.Host, "db", cfg.Database.DBName)

	if err := db.RunMigrations("migrations"); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	topics := queue.Topics{
		Readings:  cfg.Kafka.TopicReadings,
		Forecasts: cfg.Kafka.TopicForecasts,
	}
	consumer := queue.NewConsumer(cfg.Kafka.Brokers, []string{topics.Readings, topics.Forecasts}, "dbwriter-group")
	defer consumer.Close()

	batchWriter := queue.NewBatchWriter(consumer, db, topics, batchSize, flushInterval, logger.With("component", "batch_writer"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := batchWriter.Start(ctx); err != nil {
		logger.Error("failed to start batch writer", "error", err)
		os.Exit(1)
	}
	logger.Info("batch writer started",
		"topics", []string{topics.Readings, topics.Forecasts},
		"batch_size", batchSize,
		"flush_interval", flushInterval)

	go func() {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				stats := consumer.Stats()
				logger.Info("consumer stats",
					"messages", stats.Messages,
					"bytes", stats.Bytes,
					"errors", stats.Errors,
					"lag", stats.Lag)
			case <-ctx.Done():
				return
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	batchWriter.Stop()
	logger.Info("database writer stopped")
}
