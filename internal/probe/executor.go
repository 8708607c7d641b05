// Package probe fetches profile pages with a bounded retry loop, optionally
// through a proxy, and reports proxy health back to the pool.
package probe

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/sleuth/internal/logger"
	"github.com/MrSnakeDoc/sleuth/internal/metrics"
	"github.com/MrSnakeDoc/sleuth/internal/proxypool"
	"github.com/MrSnakeDoc/sleuth/internal/utils"
)

// DefaultUserAgent is a current desktop Chrome string.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Config tunes the retry loop and request shape.
type Config struct {
	MaxRetries    int
	BackoffBase   time.Duration
	BackoffJitter time.Duration
	MaxBodyBytes  int64
	UserAgent     string
}

// Reporter receives proxy health signals.
type Reporter interface {
	ReportSuccess(id string)
	ReportFailure(id string)
}

// Request describes one page fetch.
type Request struct {
	URL             string
	Proxy           *proxypool.Record
	FollowRedirects bool
}

// Response is the successful attempt. Latency covers that attempt only.
type Response struct {
	StatusCode int
	Body       string
	FinalURL   string
	Latency    time.Duration
	Attempts   int
}

// Executor runs fetches. It holds no per-request state and is safe for
// concurrent use.
type Executor struct {
	cfg      Config
	clients  ClientFactory
	reporter Reporter
	log      logger.Logger
	metrics  *metrics.Metrics

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(max time.Duration) time.Duration
}

// Option customizes an Executor.
type Option func(*Executor)

// WithReporter wires proxy health reporting, usually the proxy pool.
func WithReporter(r Reporter) Option { return func(e *Executor) { e.reporter = r } }

func WithLogger(l logger.Logger) Option { return func(e *Executor) { e.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(e *Executor) { e.metrics = m } }

// WithSleep replaces the backoff sleep, for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = fn }
}

// WithJitter replaces the random jitter source, for tests.
func WithJitter(fn func(max time.Duration) time.Duration) Option {
	return func(e *Executor) { e.jitter = fn }
}

// NewExecutor creates an executor drawing clients from clients.
func NewExecutor(cfg Config, clients ClientFactory, opts ...Option) *Executor {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	e := &Executor{
		cfg:     cfg,
		clients: clients,
		log:     logger.NewNop(),
		sleep:   sleepCtx,
		jitter:  uniformJitter,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// attemptResult is the typed outcome of a single attempt.
type attemptResult struct {
	resp *Response
	kind ErrorKind
	err  error
}

func (a attemptResult) ok() bool { return a.err == nil }

// Fetch makes up to MaxRetries+1 attempts. Each failed attempt through a
// proxy reports the proxy as failed before any backoff; a successful one
// reports it healthy. Cancellation of ctx stops the loop without retrying.
func (e *Executor) Fetch(ctx context.Context, req Request) (*Response, error) {
	proxyEndpoint, proxyID := "", ""
	if req.Proxy != nil {
		proxyEndpoint, proxyID = req.Proxy.Endpoint, req.Proxy.ID
	}

	client, err := e.clients.Client(proxyEndpoint, req.FollowRedirects)
	if err != nil {
		e.reportFailure(proxyID)
		return nil, &FetchError{Kind: KindOther, Attempts: 0, Err: err}
	}

	base, err := e.newRequest(ctx, req.URL)
	if err != nil {
		return nil, &FetchError{Kind: KindOther, Attempts: 0, Err: err}
	}

	budget := e.cfg.MaxRetries + 1
	var last attemptResult

	for attempt := 0; attempt < budget; attempt++ {
		last = e.attempt(ctx, client, base)
		if last.ok() {
			e.metrics.ObserveAttempt("ok")
			e.reportSuccess(proxyID)
			last.resp.Attempts = attempt + 1
			return last.resp, nil
		}

		e.metrics.ObserveAttempt(string(last.kind))

		if last.kind == KindCanceled {
			return nil, &FetchError{Kind: KindCanceled, Attempts: attempt + 1, Err: last.err}
		}

		e.reportFailure(proxyID)

		if attempt == budget-1 {
			break
		}

		wait := e.backoff(attempt)
		e.log.Debug("fetch attempt failed, retrying",
			logger.String("url", req.URL),
			logger.String("proxy_id", proxyID),
			logger.Int("attempt", attempt+1),
			logger.String("kind", string(last.kind)),
			logger.Duration("backoff", wait),
			logger.Error(last.err))

		if err := e.sleep(ctx, wait); err != nil {
			return nil, &FetchError{Kind: KindCanceled, Attempts: attempt + 1, Err: err}
		}
	}

	return nil, &FetchError{Kind: last.kind, Attempts: budget, Err: last.err}
}

// newRequest builds the GET shared by every attempt. A malformed URL fails
// here, before any attempt is spent.
func (e *Executor) newRequest(ctx context.Context, target string) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if httpReq.URL.Scheme == "" || httpReq.URL.Host == "" {
		return nil, fmt.Errorf("build request: %q is not an absolute URL", target)
	}
	httpReq.Header.Set("User-Agent", e.cfg.UserAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	return httpReq, nil
}

func (e *Executor) attempt(ctx context.Context, client *http.Client, base *http.Request) attemptResult {
	start := time.Now()
	resp, err := client.Do(base.Clone(ctx))
	if err != nil {
		return attemptResult{kind: classifyErr(ctx, err), err: err}
	}
	defer utils.Close(resp.Body)

	var body io.Reader = resp.Body
	if e.cfg.MaxBodyBytes > 0 {
		body = io.LimitReader(resp.Body, e.cfg.MaxBodyBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return attemptResult{kind: classifyErr(ctx, err), err: fmt.Errorf("read body: %w", err)}
	}

	finalURL := base.URL.String()
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return attemptResult{resp: &Response{
		StatusCode: resp.StatusCode,
		Body:       string(data),
		FinalURL:   finalURL,
		Latency:    time.Since(start),
	}}
}

// backoff is BackoffBase * 2^attempt plus uniform jitter in [0, BackoffJitter).
func (e *Executor) backoff(attempt int) time.Duration {
	d := e.cfg.BackoffBase << uint(attempt)
	if e.cfg.BackoffJitter > 0 {
		d += e.jitter(e.cfg.BackoffJitter)
	}
	return d
}

func (e *Executor) reportSuccess(id string) {
	if id != "" && e.reporter != nil {
		e.reporter.ReportSuccess(id)
	}
}

func (e *Executor) reportFailure(id string) {
	if id != "" && e.reporter != nil {
		e.reporter.ReportFailure(id)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func uniformJitter(max time.Duration) time.Duration {
	return rand.N(max)
}
