package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by Redis, for deployments where runs must
// survive process restarts or be shared across instances.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store. prefix defaults to
// "analyticsflow:run"; ttl zero means checkpoints never expire.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "analyticsflow:run"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(runID string) string {
	return fmt.Sprintf("%s:%s", s.prefix, runID)
}

// Save stores the state under the run ID
func (s *RedisStore) Save(ctx context.Context, runID string, state []byte) error {
	if err := s.client.Set(ctx, s.key(runID), state, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Load returns the stored state or ErrNotFound
func (s *RedisStore) Load(ctx context.Context, runID string) ([]byte, error) {
	state, err := s.client.Get(ctx, s.key(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return state, nil
}

// Delete removes the checkpoint for a run ID, if present
func (s *RedisStore) Delete(ctx context.Context, runID string) error {
	if err := s.client.Del(ctx, s.key(runID)).Err(); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}
