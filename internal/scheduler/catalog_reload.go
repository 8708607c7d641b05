package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/sleuth/internal/domain"
	"github.com/MrSnakeDoc/sleuth/internal/logger"
	"github.com/MrSnakeDoc/sleuth/internal/sources/catalog"
)

// CatalogStore receives reloaded sites.
type CatalogStore interface {
	Replace(sites []domain.Site) error
	Count() int
}

// CatalogReloader handles reloading of the site catalog file, periodically
// when interval > 0 and on manual triggers.
type CatalogReloader struct {
	path          string
	index         CatalogStore
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	manualTrigger chan struct{}
}

// NewCatalogReloader creates a new catalog reloader
func NewCatalogReloader(
	path string,
	idx CatalogStore,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
) *CatalogReloader {
	if manualTrigger == nil {
		manualTrigger = make(chan struct{}, 1)
	}
	return &CatalogReloader{
		path:          path,
		index:         idx,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start loads the catalog immediately and fails when that load fails, then
// watches for reloads in the background.
func (cr *CatalogReloader) Start(ctx context.Context) error {
	if err := cr.Reload(); err != nil {
		return fmt.Errorf("initial catalog load failed: %w", err)
	}

	var tick <-chan time.Time
	var ticker *time.Ticker
	if cr.interval > 0 {
		ticker = time.NewTicker(cr.interval)
		tick = ticker.C
	}

	go func() {
		if ticker != nil {
			defer ticker.Stop()
		}
		for {
			select {
			case <-tick:
				cr.reloadAndLog()
			case <-cr.manualTrigger:
				cr.logger.Info("manual catalog reload triggered")
				cr.reloadAndLog()
			case <-cr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reloader
func (cr *CatalogReloader) Stop() {
	close(cr.stopCh)
}

// Trigger queues a reload, returning false when one is already queued.
func (cr *CatalogReloader) Trigger() bool {
	select {
	case cr.manualTrigger <- struct{}{}:
		return true
	default:
		return false
	}
}

func (cr *CatalogReloader) reloadAndLog() {
	if err := cr.Reload(); err != nil {
		cr.logger.Error("failed to reload catalog, keeping previous sites",
			logger.String("path", cr.path),
			logger.Error(err))
	}
}

// Reload reads the catalog file and swaps it into the index. On error the
// index keeps its current sites.
func (cr *CatalogReloader) Reload() error {
	sites, err := catalog.LoadSites(cr.path)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	if err := cr.index.Replace(sites); err != nil {
		return fmt.Errorf("failed to replace catalog: %w", err)
	}

	cr.logger.Info("catalog loaded",
		logger.String("path", cr.path),
		logger.Int("sites", len(sites)))
	return nil
}
