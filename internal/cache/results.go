// Package cache keeps the latest refresh results in Redis and memoizes
// pipeline runs in process.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smukkama/flood-forecast/internal/protocol"
)

// ErrNotFound means no result has been stored yet or it expired
var ErrNotFound = errors.New("no cached result")

const (
	forecastKey = "flood:forecast:latest"
	levelsKey   = "flood:levels:latest"
)

// kv is the subset of the Redis client the store uses
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// ResultStore manages the latest forecast and device levels in Redis
type ResultStore struct {
	redis kv
	ttl   time.Duration
}

// NewResultStore creates a store whose entries expire after ttl
func NewResultStore(client kv, ttl time.Duration) *ResultStore {
	return &ResultStore{redis: client, ttl: ttl}
}

func (s *ResultStore) SaveForecast(ctx context.Context, msg *protocol.ForecastMessage) error {
	return s.set(ctx, forecastKey, msg)
}

func (s *ResultStore) LatestForecast(ctx context.Context) (*protocol.ForecastMessage, error) {
	var msg protocol.ForecastMessage
	if err := s.get(ctx, forecastKey, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *ResultStore) SaveLevels(ctx context.Context, msg *protocol.LevelsMessage) error {
	return s.set(ctx, levelsKey, msg)
}

func (s *ResultStore) LatestLevels(ctx context.Context) (*protocol.LevelsMessage, error) {
	var msg protocol.LevelsMessage
	if err := s.get(ctx, levelsKey, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Ping checks the Redis connection.
func (s *ResultStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

func (s *ResultStore) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := s.redis.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s in Redis: %w", key, err)
	}
	return nil
}

func (s *ResultStore) get(ctx context.Context, key string, v any) error {
	data, err := s.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get %s from Redis: %w", key, err)
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}
