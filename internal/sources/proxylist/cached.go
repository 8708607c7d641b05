package proxylist

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/sleuth/internal/logger"
	"github.com/MrSnakeDoc/sleuth/internal/proxypool"
)

// CandidateStore persists candidate lists between restarts.
type CandidateStore interface {
	GetCandidates(ctx context.Context, source string) ([]string, error)
	SaveCandidates(ctx context.Context, source string, endpoints []string, ttl time.Duration) error
	DeleteCandidates(ctx context.Context, source string) error
}

// Cached serves candidates from the store and falls back to the upstream
// source on a miss. Store errors only cost a cache hit.
type Cached struct {
	upstream proxypool.Source
	store    CandidateStore
	key      string
	ttl      time.Duration
	log      logger.Logger
}

// NewCached wraps upstream. key names the cached list, usually the source URL.
func NewCached(upstream proxypool.Source, store CandidateStore, key string, ttl time.Duration, log logger.Logger) *Cached {
	if log == nil {
		log = logger.NewNop()
	}
	return &Cached{upstream: upstream, store: store, key: key, ttl: ttl, log: log}
}

// Fetch implements proxypool.Source.
func (c *Cached) Fetch(ctx context.Context) ([]string, error) {
	cached, err := c.store.GetCandidates(ctx, c.key)
	switch {
	case err != nil:
		c.log.Warn("proxy candidate cache read failed", logger.String("key", c.key), logger.Error(err))
	case len(cached) > 0:
		c.log.Debug("proxy candidates served from cache", logger.Int("count", len(cached)))
		return cached, nil
	}

	fresh, err := c.upstream.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	if len(fresh) > 0 {
		if err := c.store.SaveCandidates(ctx, c.key, fresh, c.ttl); err != nil {
			c.log.Warn("proxy candidate cache write failed", logger.String("key", c.key), logger.Error(err))
		}
	}
	return fresh, nil
}

// Invalidate drops the cached list so the next Fetch goes upstream.
func (c *Cached) Invalidate(ctx context.Context) error {
	return c.store.DeleteCandidates(ctx, c.key)
}

var _ proxypool.Source = (*Cached)(nil)
