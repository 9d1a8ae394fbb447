// Package feed reads the ThingSpeak channel the level sensors report to.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/smukkama/flood-forecast/pkg/config"
)

// ErrUnavailable is returned when the channel cannot be read
var ErrUnavailable = errors.New("feed unavailable")

const maxBodyBytes = 32 << 20

type Client struct {
	cfg     config.FeedConfig
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewClient(cfg config.FeedConfig, logger *slog.Logger) *Client {
	perMin := cfg.RatePerMin
	if perMin <= 0 {
		perMin = 1
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), 1),
		logger:  logger,
	}
}

// Policy returns the ingestion policy configured for this channel.
func (c *Client) Policy() Policy {
	return NewPolicy(c.cfg)
}

// FetchFeeds downloads the raw channel entries.
func (c *Client) FetchFeeds(ctx context.Context) ([]Entry, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for feed rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed request: %w", err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	entries, err := Decode(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	c.logger.Debug("fetched feed",
		"entries", len(entries),
		"duration", time.Since(start))
	return entries, nil
}

// Decode parses a feeds response body.
func Decode(body []byte) ([]Entry, error) {
	var r Response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("failed to decode feeds: %w", err)
	}
	return r.Feeds, nil
}

func (c *Client) requestURL() string {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return c.cfg.URL
	}
	q := u.Query()
	if c.cfg.Results > 0 {
		q.Set("results", strconv.Itoa(c.cfg.Results))
	}
	if c.cfg.APIKey != "" {
		q.Set("api_key", c.cfg.APIKey)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
