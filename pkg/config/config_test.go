package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(70), cfg.Feed.MinEntryID)
	assert.Equal(t, []int64{5715, 5716}, cfg.Feed.Denylist)
	assert.Equal(t, [2]string{"field2", "field3"}, cfg.Feed.Fields)
	assert.Equal(t, 8000, cfg.Feed.Results)
	assert.Equal(t, 10*time.Minute, cfg.Schedule.RefreshInterval)
	assert.Equal(t, time.UTC, cfg.Schedule.DisplayTZ)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.False(t, cfg.Archive.Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("FEED_DENYLIST", "1, 2 ,3")
	t.Setenv("FEED_FIELDS", "field1,field4")
	t.Setenv("REFRESH_INTERVAL", "90s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ARCHIVE_ENDPOINT", "minio:9000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 3}, cfg.Feed.Denylist)
	assert.Equal(t, [2]string{"field1", "field4"}, cfg.Feed.Fields)
	assert.Equal(t, 90*time.Second, cfg.Schedule.RefreshInterval)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.True(t, cfg.Archive.Enabled())
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("FEED_FIELDS", "field2")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("FEED_FIELDS", "field2,field3")
	t.Setenv("FEED_DENYLIST", "abc")
	_, err = Load()
	assert.Error(t, err)
}
