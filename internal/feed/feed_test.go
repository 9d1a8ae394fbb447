package feed

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/flood-forecast/internal/flood"
	"github.com/smukkama/flood-forecast/pkg/config"
)

const sampleFeeds = `{
  "channel": {"id": 2683477},
  "feeds": [
    {"created_at": "2024-10-01T08:00:00Z", "entry_id": 69, "field2": "10", "field3": "1"},
    {"created_at": "2024-10-01T08:01:00Z", "entry_id": 70, "field2": "10", "field3": "1.234"},
    {"created_at": "2024-10-01T08:02:00Z", "entry_id": 71, "field2": "abc", "field3": 2.5},
    {"created_at": "2024-10-01T08:03:00Z", "entry_id": 5715, "field2": "99", "field3": "99"},
    {"created_at": "2024-10-01T08:04:00Z", "entry_id": 72, "field2": "-20", "field3": "3", "field1": null},
    {"created_at": "2024-10-01T08:05:00Z", "entry_id": 73, "field2": "45", "field3": null}
  ]
}`

func testPolicy() Policy {
	return Policy{MinEntryID: 70, Denylist: []int64{5715, 5716}, Fields: [2]string{"field2", "field3"}}
}

func TestDecode(t *testing.T) {
	entries, err := Decode([]byte(sampleFeeds))
	require.NoError(t, err)
	require.Len(t, entries, 6)

	assert.Equal(t, int64(71), entries[2].EntryID)
	assert.Equal(t, "2.5", entries[2].Fields["field3"])
	assert.NotContains(t, entries[4].Fields, "field1")
	assert.Equal(t, time.Date(2024, 10, 1, 8, 5, 0, 0, time.UTC), entries[5].CreatedAt)
}

func TestDecode_BadTimestamp(t *testing.T) {
	_, err := Decode([]byte(`{"feeds":[{"created_at":"yesterday","entry_id":1}]}`))
	assert.Error(t, err)
}

func TestPolicy_History(t *testing.T) {
	entries, err := Decode([]byte(sampleFeeds))
	require.NoError(t, err)

	records := testPolicy().History(entries)
	require.Len(t, records, 4)

	for i, r := range records {
		assert.Equal(t, int64(i+1), r.EntryID)
	}
	assert.InDelta(t, 11.23, records[0].Value, 1e-9)
	// unparseable primary counts as 0
	assert.InDelta(t, 2.5, records[1].Value, 1e-9)
	// negative sums clamp to 0
	assert.Equal(t, 0.0, records[2].Value)
	assert.InDelta(t, 45, records[3].Value, 1e-9)
}

func TestPolicy_ApplyOrdersByID(t *testing.T) {
	entries := []Entry{{EntryID: 90}, {EntryID: 80}, {EntryID: 5716}, {EntryID: 10}}
	kept := testPolicy().Apply(entries)

	require.Len(t, kept, 2)
	assert.Equal(t, int64(80), kept[0].EntryID)
	assert.Equal(t, int64(90), kept[1].EntryID)
	assert.Equal(t, int64(90), entries[0].EntryID)
}

func TestPolicy_Latest(t *testing.T) {
	entries, err := Decode([]byte(sampleFeeds))
	require.NoError(t, err)

	levels := testPolicy().Latest(entries)
	require.Len(t, levels, 2)

	assert.Equal(t, "field2", levels[0].Field)
	assert.Equal(t, int64(73), levels[0].EntryID)
	assert.InDelta(t, 0.45, levels[0].Metres, 1e-9)
	assert.Equal(t, flood.ClassifyReading(45), levels[0].Warning)

	// field3 is null on the newest entry
	assert.Equal(t, "field3", levels[1].Field)
	assert.Equal(t, int64(72), levels[1].EntryID)
}

func TestClient_FetchFeeds(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleFeeds))
	}))
	defer srv.Close()

	c := NewClient(config.FeedConfig{
		URL:        srv.URL + "/channels/1/feeds.json",
		Results:    8000,
		Timeout:    time.Second,
		RatePerMin: 60,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	entries, err := c.FetchFeeds(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 6)
	assert.Equal(t, "results=8000", gotQuery)
}

func TestClient_FetchFeeds_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(config.FeedConfig{URL: srv.URL, Timeout: time.Second, RatePerMin: 60},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := c.FetchFeeds(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}
