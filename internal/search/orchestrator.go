// Package search fans a username out over the site catalog and collects one
// classified result per site.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/MrSnakeDoc/sleuth/internal/domain"
	"github.com/MrSnakeDoc/sleuth/internal/logger"
	"github.com/MrSnakeDoc/sleuth/internal/metrics"
	"github.com/MrSnakeDoc/sleuth/internal/probe"
	"github.com/MrSnakeDoc/sleuth/internal/proxypool"
)

// DefaultMaxConcurrency caps in-flight probes per search.
const DefaultMaxConcurrency = 8

var (
	// ErrEmptyUsername is returned for blank queries.
	ErrEmptyUsername = errors.New("search: username is empty")
	// ErrEmptyCatalog is returned by New when there is nothing to probe.
	ErrEmptyCatalog = errors.New("search: site catalog is empty")
)

// Catalog provides the ordered site list.
type Catalog interface {
	Limit(n int) []domain.Site
	Count() int
}

// ProxySelector is the part of the proxy pool a search needs.
type ProxySelector interface {
	Select() (proxypool.Record, bool)
	Enabled() bool
	AllowDirectFallback() bool
}

// Fetcher retrieves a page, retries included.
type Fetcher interface {
	Fetch(ctx context.Context, req probe.Request) (*probe.Response, error)
}

// Options tunes one search.
type Options struct {
	// Limit keeps the first Limit sites in catalog order; <= 0 means all.
	Limit int
	// OnResult, when set, is called once per delivered result, from a single
	// goroutine, in completion order.
	OnResult func(domain.Result)
}

// Orchestrator runs searches. It is safe for concurrent use; each search has
// its own concurrency limit.
type Orchestrator struct {
	catalog        Catalog
	proxies        ProxySelector
	fetcher        Fetcher
	maxConcurrency int64
	log            logger.Logger
	metrics        *metrics.Metrics
	newID          func() string
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithMaxConcurrency sets the per-search cap on in-flight probes.
func WithMaxConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxConcurrency = int64(n)
		}
	}
}

func WithLogger(l logger.Logger) Option { return func(o *Orchestrator) { o.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

// WithIDGenerator replaces the uuid search id source.
func WithIDGenerator(fn func() string) Option { return func(o *Orchestrator) { o.newID = fn } }

// New creates an orchestrator. proxies may be nil to always fetch directly.
func New(catalog Catalog, proxies ProxySelector, fetcher Fetcher, opts ...Option) (*Orchestrator, error) {
	if catalog == nil || catalog.Count() == 0 {
		return nil, ErrEmptyCatalog
	}
	if fetcher == nil {
		return nil, errors.New("search: fetcher is required")
	}

	o := &Orchestrator{
		catalog:        catalog,
		proxies:        proxies,
		fetcher:        fetcher,
		maxConcurrency: DefaultMaxConcurrency,
		log:            logger.NewNop(),
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Search probes every selected site and returns the aggregate of the
// delivered results. When ctx ends early, sites that had not finished are
// left out and the partial outcome is returned together with ctx.Err().
func (o *Orchestrator) Search(ctx context.Context, username string, opts Options) (*domain.Outcome, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrEmptyUsername
	}

	return o.run(ctx, o.catalog.Limit(opts.Limit), username, opts.OnResult)
}

// run probes sites for an already trimmed username.
func (o *Orchestrator) run(ctx context.Context, sites []domain.Site, username string, onResult func(domain.Result)) (*domain.Outcome, error) {
	searchID := o.newID()
	log := o.log.With(logger.String("search_id", searchID), logger.String("username", username))

	done := o.metrics.SearchStarted()
	defer done()

	start := time.Now()
	log.Info("search started", logger.Int("sites", len(sites)))

	results := make(chan domain.Result, len(sites))
	sem := semaphore.NewWeighted(o.maxConcurrency)

	var wg sync.WaitGroup
	for _, site := range sites {
		wg.Add(1)
		go func(site domain.Site) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			if r, ok := o.probeSite(ctx, site, username, log); ok {
				results <- r
			}
		}(site)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	collected := make([]domain.Result, 0, len(sites))
	for r := range results {
		collected = append(collected, r)
		if onResult != nil {
			onResult(r)
		}
	}

	outcome := domain.NewOutcome(searchID, username, collected)
	log.Info("search finished",
		logger.Int("checked", outcome.TotalChecked),
		logger.Int("found", outcome.TotalFound),
		logger.Duration("elapsed", time.Since(start)))

	if err := ctx.Err(); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// probeSite runs the whole pipeline for one site. It reports ok=false only
// when the search was canceled before the site finished.
func (o *Orchestrator) probeSite(ctx context.Context, site domain.Site, username string, log logger.Logger) (res domain.Result, ok bool) {
	res = domain.Result{Site: site.Name, URL: site.ProfileURL(username)}

	defer func() {
		if p := recover(); p != nil {
			log.Error("probe panicked", logger.String("site", site.Name), logger.String("panic", fmt.Sprint(p)))
			res = failedResult(res, domain.VerdictError, fmt.Sprintf("internal error: %v", p))
			ok = true
		}
	}()

	if ctx.Err() != nil {
		return res, false
	}

	proxy := o.chooseProxy(log)
	if proxy != nil {
		res.ViaProxy = true
		res.ProxyID = proxy.ID
		res.ProxyEndpoint = proxy.Endpoint
	}

	resp, err := o.fetcher.Fetch(ctx, probe.Request{
		URL:             res.URL,
		Proxy:           proxy,
		FollowRedirects: site.AllowRedirect,
	})
	if err != nil {
		if ctx.Err() != nil || probe.KindOf(err) == probe.KindCanceled {
			return res, false
		}
		verdict, reason := verdictForError(err)
		res = failedResult(res, verdict, reason)
		o.metrics.ObserveProbe(string(res.Verdict), 0)
		return res, true
	}

	c := domain.Classify(domain.Page{StatusCode: resp.StatusCode, Body: resp.Body}, username, site)

	latency := float64(resp.Latency.Microseconds()) / 1000
	res.Verdict = c.Verdict
	res.Reason = c.Reason
	res.StatusCode = resp.StatusCode
	res.LatencyMS = &latency
	if c.Profile != nil {
		res.DisplayName = c.Profile.DisplayName
		res.Bio = c.Profile.Bio
		res.Avatar = c.Profile.Avatar
	}

	o.metrics.ObserveProbe(string(res.Verdict), resp.Latency)
	log.Debug("site probed",
		logger.String("site", site.Name),
		logger.String("verdict", string(res.Verdict)),
		logger.Int("status", res.StatusCode),
		logger.Int("attempts", resp.Attempts))
	return res, true
}

// chooseProxy returns nil for a direct fetch. Direct is used even when
// fallback is disallowed, since failing every site is worse than no proxy.
func (o *Orchestrator) chooseProxy(log logger.Logger) *proxypool.Record {
	if o.proxies == nil || !o.proxies.Enabled() {
		o.metrics.ObserveSelection("direct")
		return nil
	}

	rec, ok := o.proxies.Select()
	if ok {
		o.metrics.ObserveSelection("proxied")
		return &rec
	}

	if o.proxies.AllowDirectFallback() {
		o.metrics.ObserveSelection("direct")
	} else {
		o.metrics.ObserveSelection("direct_disallowed")
		log.Warn("no healthy proxy and direct fallback disallowed, fetching directly")
	}
	return nil
}

func verdictForError(err error) (domain.Verdict, string) {
	reason := err.Error()
	var fe *probe.FetchError
	if errors.As(err, &fe) && fe.Err != nil {
		reason = fe.Err.Error()
	}

	switch probe.KindOf(err) {
	case probe.KindTimeout:
		return domain.VerdictTimeout, "Timeout"
	case probe.KindNetwork:
		return domain.VerdictNetworkError, reason
	default:
		return domain.VerdictError, reason
	}
}

func failedResult(res domain.Result, verdict domain.Verdict, reason string) domain.Result {
	res.Verdict = verdict
	res.Reason = reason
	res.StatusCode = 0
	res.LatencyMS = nil
	res.DisplayName, res.Bio, res.Avatar = "", "", ""
	return res
}
