package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheEgressIP stores the public IP seen through route
func (s *Store) CacheEgressIP(ctx context.Context, route, ip string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultEgressTTL
	}
	if err := s.client.Set(ctx, EgressKey(route), ip, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache egress ip: %w", err)
	}
	return nil
}

// GetCachedEgressIP retrieves a cached egress IP
func (s *Store) GetCachedEgressIP(ctx context.Context, route string) (string, error) {
	ip, err := s.client.Get(ctx, EgressKey(route)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil // Cache miss
		}
		return "", fmt.Errorf("failed to get cached egress ip: %w", err)
	}
	return ip, nil
}

// CachedSource describes one cached candidate list.
type CachedSource struct {
	Source string
	Count  int64
	TTL    time.Duration
}

// CachedSources lists every cached candidate list, sorted by source.
func (s *Store) CachedSources(ctx context.Context) ([]CachedSource, error) {
	var out []CachedSource
	iter := s.client.Scan(ctx, 0, KeyPrefixCandidates+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		source, err := ExtractSource(key)
		if err != nil {
			continue
		}
		count, err := s.client.LLen(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to count proxy candidates: %w", err)
		}
		ttl, err := s.client.TTL(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read candidates ttl: %w", err)
		}
		out = append(out, CachedSource{Source: source, Count: count, TTL: ttl})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan proxy candidates: %w", err)
	}
	slices.SortFunc(out, func(a, b CachedSource) int { return strings.Compare(a.Source, b.Source) })
	return out, nil
}

// FlushCache removes every cached candidate list and egress lookup
func (s *Store) FlushCache(ctx context.Context) error {
	for _, pattern := range []string{KeyPrefixCandidates + "*", KeyPrefixEgress + "*"} {
		iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
		for iter.Next(ctx) {
			if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
				return fmt.Errorf("failed to delete cache key: %w", err)
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("failed to flush cache: %w", err)
		}
	}
	return nil
}
