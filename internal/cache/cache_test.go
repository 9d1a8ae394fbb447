package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/flood-forecast/internal/protocol"
	"github.com/smukkama/flood-forecast/internal/series"
)

// fakeRedis is an in-memory stand-in for the Redis client
type fakeRedis struct {
	data    map[string]string
	ttls    map[string]time.Duration
	pingErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.data[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", f.pingErr)
}

func TestResultStore_Forecast(t *testing.T) {
	r := newFakeRedis()
	store := NewResultStore(r, 15*time.Minute)
	ctx := context.Background()

	_, err := store.LatestForecast(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	msg := &protocol.ForecastMessage{
		RunID:   "run-1",
		Results: []protocol.ResolutionResult{{ResolutionMinutes: 10, NextValue: 12.5}},
	}
	require.NoError(t, store.SaveForecast(ctx, msg))
	assert.Equal(t, 15*time.Minute, r.ttls[forecastKey])

	got, err := store.LatestForecast(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 12.5, got.Results[0].NextValue)
}

func TestResultStore_Levels(t *testing.T) {
	store := NewResultStore(newFakeRedis(), time.Minute)
	ctx := context.Background()

	_, err := store.LatestLevels(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.SaveLevels(ctx, &protocol.LevelsMessage{}))
	_, err = store.LatestLevels(ctx)
	assert.NoError(t, err)
}

func TestResultStore_Ping(t *testing.T) {
	r := newFakeRedis()
	store := NewResultStore(r, time.Minute)
	assert.NoError(t, store.Ping(context.Background()))

	r.pingErr = errors.New("connection refused")
	assert.Error(t, store.Ping(context.Background()))
}

func TestMemo(t *testing.T) {
	m, err := NewMemo[string](2)
	require.NoError(t, err)

	_, ok := m.Get(1)
	assert.False(t, ok)

	m.Add(1, "a")
	v, ok := m.Get(1)
	require.True(t, ok)
	assert.Equal(t, "a", v)

	hits, misses := m.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestFingerprint(t *testing.T) {
	ts := time.Date(2024, 10, 1, 8, 0, 0, 0, time.UTC)
	a := []series.Record{{EntryID: 1, Timestamp: ts, Value: 10}, {EntryID: 2, Timestamp: ts.Add(time.Minute), Value: 11}}
	b := series.CopyRecords(a)

	assert.Equal(t, Fingerprint(a), Fingerprint(b))

	b[1].Value = 11.01
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(a[:1]))
}
