package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/smukkama/flood-forecast/internal/protocol"
	"github.com/smukkama/flood-forecast/internal/scheduler"
)

const retryJobID = "refresh-retry"

type refresher interface {
	Refresh(ctx context.Context) (*protocol.ForecastMessage, error)
}

// refreshJob refreshes the forecast. A failed run books a one-shot retry
// after retryAfter; a successful run cancels any retry still pending.
func refreshJob(sched *scheduler.Scheduler, svc refresher, retryAfter time.Duration, logger *slog.Logger) scheduler.Job {
	var job scheduler.Job
	job = func(ctx context.Context) {
		if _, err := svc.Refresh(ctx); err != nil {
			logger.Error("refresh failed", "retry_in", retryAfter, "error", err)
			if err := sched.Schedule(retryJobID, time.Now().Add(retryAfter), job); err != nil {
				logger.Warn("failed to schedule refresh retry", "error", err)
			}
			return
		}
		if sched.Cancel(retryJobID) {
			logger.Debug("cancelled pending refresh retry")
		}
	}
	return job
}
