package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/sleuth/internal/logger"
)

// ProxyFiller is the part of the proxy pool the refresher drives.
type ProxyFiller interface {
	EnsurePopulated(ctx context.Context) (int, error)
	AutoFetch() bool
}

// ProxyRefresher keeps the proxy pool populated from its source. It runs on
// start, on every tick and on manual triggers.
type ProxyRefresher struct {
	pool          ProxyFiller
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	manualTrigger chan struct{}
	running       atomic.Bool
}

// NewProxyRefresher creates a new proxy refresher. manualTrigger should be
// buffered (size 1) so Trigger never blocks.
func NewProxyRefresher(
	pool ProxyFiller,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
) *ProxyRefresher {
	if manualTrigger == nil {
		manualTrigger = make(chan struct{}, 1)
	}
	return &ProxyRefresher{
		pool:          pool,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start fills the pool once, then keeps refreshing in the background.
// Source failures are logged, never returned: the service runs unproxied.
func (pr *ProxyRefresher) Start(ctx context.Context) error {
	pr.Refresh(ctx)

	if pr.interval <= 0 {
		go pr.loop(ctx, nil)
		return nil
	}

	ticker := time.NewTicker(pr.interval)
	go func() {
		defer ticker.Stop()
		pr.loop(ctx, ticker.C)
	}()

	return nil
}

func (pr *ProxyRefresher) loop(ctx context.Context, tick <-chan time.Time) {
	for {
		select {
		case <-tick:
			pr.Refresh(ctx)
		case <-pr.manualTrigger:
			pr.logger.Info("manual proxy refresh triggered")
			pr.Refresh(ctx)
		case <-pr.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the refresher
func (pr *ProxyRefresher) Stop() {
	close(pr.stopCh)
}

// Trigger requests a refresh. It returns false when one is already queued
// or running.
func (pr *ProxyRefresher) Trigger() bool {
	if pr.running.Load() {
		return false
	}
	select {
	case pr.manualTrigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Refresh populates an empty pool. A populated pool is left alone.
func (pr *ProxyRefresher) Refresh(ctx context.Context) {
	if !pr.pool.AutoFetch() {
		return
	}
	if !pr.running.CompareAndSwap(false, true) {
		return
	}
	defer pr.running.Store(false)

	n, err := pr.pool.EnsurePopulated(ctx)
	if err != nil {
		pr.logger.Warn("proxy source failed, continuing without proxies",
			logger.Error(err))
		return
	}
	pr.logger.Debug("proxy pool checked", logger.Int("count", n))
}
