package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Start()
	t.Cleanup(s.Stop)
	return s
}

func TestScheduler_Schedule(t *testing.T) {
	s := newTestScheduler(t)

	var executed atomic.Bool
	err := s.Schedule("test1", time.Now().Add(100*time.Millisecond), func(ctx context.Context) {
		executed.Store(true)
	})
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)
	assert.True(t, executed.Load(), "task was not executed")
}

func TestScheduler_Cancel(t *testing.T) {
	s := newTestScheduler(t)

	var executed atomic.Bool
	require.NoError(t, s.Schedule("test1", time.Now().Add(100*time.Millisecond), func(ctx context.Context) {
		executed.Store(true)
	}))

	assert.True(t, s.Cancel("test1"))
	assert.False(t, s.Cancel("test1"))

	time.Sleep(200 * time.Millisecond)
	assert.False(t, executed.Load(), "task was executed despite being cancelled")
}

func TestScheduler_Ordering(t *testing.T) {
	s := newTestScheduler(t)

	var results []int
	var mu sync.Mutex
	record := func(n int) Job {
		return func(ctx context.Context) {
			mu.Lock()
			results = append(results, n)
			mu.Unlock()
		}
	}

	now := time.Now()
	require.NoError(t, s.Schedule("task3", now.Add(150*time.Millisecond), record(3)))
	require.NoError(t, s.Schedule("task1", now.Add(50*time.Millisecond), record(1)))
	require.NoError(t, s.Schedule("task2", now.Add(100*time.Millisecond), record(2)))

	time.Sleep(250 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, results)
}

func TestScheduler_RescheduleExisting(t *testing.T) {
	s := newTestScheduler(t)

	var count atomic.Int32
	require.NoError(t, s.Schedule("test1", time.Now().Add(100*time.Millisecond), func(ctx context.Context) {
		count.Add(1)
	}))
	require.NoError(t, s.Schedule("test1", time.Now().Add(50*time.Millisecond), func(ctx context.Context) {
		count.Add(10)
	}))

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(10), count.Load())
}

func TestScheduler_Every(t *testing.T) {
	s := newTestScheduler(t)

	var count atomic.Int32
	require.NoError(t, s.ScheduleEvery("tick", 30*time.Millisecond, 0, func(ctx context.Context) {
		count.Add(1)
	}))

	require.Eventually(t, func() bool { return count.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, s.Stats().Scheduled)
}

func TestScheduler_EverySkipsOverlappingRuns(t *testing.T) {
	s := newTestScheduler(t)

	var runs atomic.Int32
	release := make(chan struct{})
	require.NoError(t, s.ScheduleEvery("slow", 20*time.Millisecond, 0, func(ctx context.Context) {
		runs.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
	}))

	require.Eventually(t, func() bool { return s.Stats().Skipped >= 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
	close(release)
}

func TestScheduler_StopCancelsJobs(t *testing.T) {
	s := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Start()

	started := make(chan struct{})
	var cancelled atomic.Bool
	require.NoError(t, s.Schedule("long", time.Now(), func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
	}))

	<-started
	s.Stop()
	assert.True(t, cancelled.Load())

	err := s.Schedule("late", time.Now(), func(ctx context.Context) {})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestScheduler_Stats(t *testing.T) {
	s := newTestScheduler(t)

	noop := func(ctx context.Context) {}
	require.NoError(t, s.Schedule("task1", time.Now().Add(time.Hour), noop))
	require.NoError(t, s.Schedule("task2", time.Now().Add(2*time.Hour), noop))
	require.NoError(t, s.ScheduleEvery("task3", time.Hour, time.Hour, noop))

	stats := s.Stats()
	assert.Equal(t, 3, stats.Scheduled)
	assert.Equal(t, 0, stats.Running)
}
