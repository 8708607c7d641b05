// Package proxypool keeps a set of outbound proxies, rotates between the
// healthy ones and benches failing ones for a cooldown window.
package proxypool

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MrSnakeDoc/sleuth/internal/logger"
	"github.com/MrSnakeDoc/sleuth/internal/metrics"
)

// ErrProxySource wraps failures of the external proxy list source.
var ErrProxySource = errors.New("proxy source failed")

// Source fetches candidate endpoints (scheme://host:port).
type Source interface {
	Fetch(ctx context.Context) ([]string, error)
}

// Config configures a Pool.
type Config struct {
	Enabled             bool
	Rotation            Rotation
	Cooldown            time.Duration
	AllowDirectFallback bool
	AutoFetch           bool
	Endpoints           []string
}

// Pool is safe for concurrent use. One mutex guards the records and the
// round-robin cursor. Record ids are unique for the pool's lifetime, so a late
// report for a removed proxy never lands on its replacement.
type Pool struct {
	mu       sync.Mutex
	records  []*Record
	next     int
	seq      uint64
	enabled  bool
	rotation Rotation
	cooldown time.Duration
	fallback bool
	autoFill bool

	source  Source
	refill  singleflight.Group
	log     logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	intn    func(int) int
}

// Option customizes a Pool.
type Option func(*Pool)

// WithSource sets the collaborator used by EnsurePopulated.
func WithSource(s Source) Option { return func(p *Pool) { p.source = s } }

func WithLogger(l logger.Logger) Option { return func(p *Pool) { p.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(p *Pool) { p.metrics = m } }

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(p *Pool) { p.now = now } }

// WithRand overrides the random pick used by random_healthy.
func WithRand(intn func(int) int) Option { return func(p *Pool) { p.intn = intn } }

// New builds a pool seeded from cfg.Endpoints.
func New(cfg Config, opts ...Option) *Pool {
	rotation := cfg.Rotation
	if rotation == "" {
		rotation = RotationRoundRobin
	}

	p := &Pool{
		enabled:  cfg.Enabled,
		rotation: rotation,
		cooldown: cfg.Cooldown,
		fallback: cfg.AllowDirectFallback,
		autoFill: cfg.AutoFetch,
		log:      logger.NewNop(),
		now:      time.Now,
		intn:     rand.IntN,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.records = seedRecords(cfg.Endpoints, &p.seq)
	p.metrics.SetPoolSize(len(p.records))
	return p
}

// Select returns a copy of the next healthy record, or false when the pool is
// disabled, empty, or entirely cooling down. Records whose cooldown lapsed get
// their failure timestamp cleared.
func (p *Pool) Select() (Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.enabled || len(p.records) == 0 {
		return Record{}, false
	}

	now := p.now()
	healthy := make([]*Record, 0, len(p.records))
	for _, r := range p.records {
		if !r.healthyAt(now, p.cooldown) {
			continue
		}
		r.LastFailure = time.Time{}
		healthy = append(healthy, r)
	}
	if len(healthy) == 0 {
		return Record{}, false
	}

	var chosen *Record
	switch p.rotation {
	case RotationRandomHealthy:
		chosen = healthy[p.intn(len(healthy))]
	default:
		chosen = healthy[p.next%len(healthy)]
		p.next = (p.next + 1) % len(healthy)
	}
	return *chosen, true
}

// ReportSuccess increments the success counter of id. Unknown ids are ignored.
func (p *Pool) ReportSuccess(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r := p.find(id); r != nil {
		r.Successes++
		p.metrics.ObserveProxyReport(true)
	}
}

// ReportFailure benches id for the cooldown window. Unknown ids are ignored.
func (p *Pool) ReportFailure(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r := p.find(id); r != nil {
		r.LastFailure = p.now()
		r.Failures++
		p.metrics.ObserveProxyReport(false)
	}
}

func (p *Pool) find(id string) *Record {
	for _, r := range p.records {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// EnsurePopulated seeds an empty pool from the source when auto-fetch is on.
// A populated pool is left untouched. The source runs outside the lock and
// concurrent callers share a single fetch. It returns the pool size.
func (p *Pool) EnsurePopulated(ctx context.Context) (int, error) {
	if n, skip := p.needsFill(); skip {
		return n, nil
	}

	v, err, _ := p.refill.Do("refill", func() (any, error) {
		endpoints, err := p.source.Fetch(ctx)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrProxySource, err)
		}

		p.mu.Lock()
		defer p.mu.Unlock()

		if len(p.records) == 0 {
			p.records = seedRecords(endpoints, &p.seq)
			p.next = 0
			p.metrics.SetPoolSize(len(p.records))
			p.log.Info("proxy pool populated", logger.Int("count", len(p.records)))
		}
		return len(p.records), nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (p *Pool) needsFill() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.records)
	return n, n > 0 || !p.autoFill || p.source == nil
}

// SetEnabled toggles proxy use. Enabling an empty pool has no effect.
// It returns the effective state.
func (p *Pool) SetEnabled(enabled bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.enabled = enabled && len(p.records) > 0
	return p.enabled
}

// Enabled reports whether Select may return proxies.
func (p *Pool) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// AllowDirectFallback reports whether unproxied fetches are acceptable when
// no proxy is available.
func (p *Pool) AllowDirectFallback() bool {
	return p.fallback
}

// AutoFetch reports whether EnsurePopulated may call the source.
func (p *Pool) AutoFetch() bool {
	return p.autoFill
}

// Size returns the number of records.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

// Prune drops records that failed at least maxFailures times and never
// succeeded, returning their ids.
func (p *Pool) Prune(maxFailures uint64) []string {
	if maxFailures == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var removed []string
	kept := p.records[:0]
	for _, r := range p.records {
		if r.Failures >= maxFailures && r.Successes == 0 {
			removed = append(removed, r.ID)
			continue
		}
		kept = append(kept, r)
	}
	p.records = kept
	if len(p.records) == 0 {
		p.next = 0
	}
	p.metrics.SetPoolSize(len(p.records))
	return removed
}
