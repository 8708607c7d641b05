// Package redis caches proxy candidates and egress lookups in Redis.
// Nothing about searches or their results is stored.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultCandidatesTTL bounds how long a scraped proxy list is reused
	DefaultCandidatesTTL = 30 * time.Minute
	// DefaultEgressTTL is the default TTL for egress IP lookups
	DefaultEgressTTL = time.Minute
)

// Store handles Redis operations for the proxy caches
type Store struct {
	client *redis.Client
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
	}
}

// Ping checks the connection, used by the readiness and infra endpoints.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

// SaveCandidates replaces the candidate list of source and sets its TTL.
// A zero ttl uses DefaultCandidatesTTL.
func (s *Store) SaveCandidates(ctx context.Context, source string, endpoints []string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultCandidatesTTL
	}
	key := CandidatesKey(source)

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(endpoints) > 0 {
		values := make([]any, len(endpoints))
		for i, e := range endpoints {
			values[i] = e
		}
		pipe.RPush(ctx, key, values...)
		pipe.Expire(ctx, key, ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save proxy candidates: %w", err)
	}
	return nil
}

// GetCandidates returns the cached list for source in insertion order.
// A miss returns an empty slice and no error.
func (s *Store) GetCandidates(ctx context.Context, source string) ([]string, error) {
	endpoints, err := s.client.LRange(ctx, CandidatesKey(source), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get proxy candidates: %w", err)
	}
	return endpoints, nil
}

// DeleteCandidates drops the cached list for source
func (s *Store) DeleteCandidates(ctx context.Context, source string) error {
	if err := s.client.Del(ctx, CandidatesKey(source)).Err(); err != nil {
		return fmt.Errorf("failed to delete proxy candidates: %w", err)
	}
	return nil
}
