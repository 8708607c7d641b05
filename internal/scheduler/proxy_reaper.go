package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/sleuth/internal/logger"
)

const (
	// DefaultMaxFailures mirrors the removal threshold of long-running proxy pools
	DefaultMaxFailures = 7
)

// ProxyPruner is the part of the proxy pool the reaper needs.
type ProxyPruner interface {
	Prune(maxFailures uint64) []string
	Size() int
}

// CandidateInvalidator drops cached proxy candidates.
type CandidateInvalidator interface {
	Invalidate(ctx context.Context) error
}

// ProxyReaper removes proxies that keep failing and never succeeded. When it
// empties the pool it drops cached candidates and asks the refresher for a
// new list.
type ProxyReaper struct {
	pool        ProxyPruner
	cache       CandidateInvalidator
	refresher   *ProxyRefresher
	logger      logger.Logger
	interval    time.Duration
	maxFailures uint64
	stopCh      chan struct{}
}

// NewProxyReaper creates a new proxy reaper. cache and refresher may be nil.
func NewProxyReaper(
	pool ProxyPruner,
	cache CandidateInvalidator,
	refresher *ProxyRefresher,
	log logger.Logger,
	interval time.Duration,
	maxFailures int,
) *ProxyReaper {
	if maxFailures < 0 {
		maxFailures = DefaultMaxFailures
	}

	return &ProxyReaper{
		pool:        pool,
		cache:       cache,
		refresher:   refresher,
		logger:      log,
		interval:    interval,
		maxFailures: uint64(maxFailures),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the periodic reaping process. A zero interval disables it.
func (r *ProxyReaper) Start(ctx context.Context) error {
	if r.interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(r.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.Reap(ctx)
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reaper
func (r *ProxyReaper) Stop() {
	close(r.stopCh)
}

// Reap prunes failing proxies and returns their ids.
func (r *ProxyReaper) Reap(ctx context.Context) []string {
	removed := r.pool.Prune(r.maxFailures)
	if len(removed) == 0 {
		r.logger.Debug("no proxies to reap")
		return nil
	}

	r.logger.Info("reaped failing proxies",
		logger.Strings("proxy_ids", removed),
		logger.Int("remaining", r.pool.Size()))

	if r.pool.Size() > 0 {
		return removed
	}

	if r.cache != nil {
		if err := r.cache.Invalidate(ctx); err != nil {
			r.logger.Warn("failed to invalidate proxy candidate cache",
				logger.Error(err))
		}
	}
	if r.refresher != nil {
		r.refresher.Trigger()
	}
	return removed
}
