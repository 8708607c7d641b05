package app

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/MrSnakeDoc/sleuth/internal/config"
	"github.com/MrSnakeDoc/sleuth/internal/domain"
	"github.com/MrSnakeDoc/sleuth/internal/index"
	"github.com/MrSnakeDoc/sleuth/internal/logger"
	"github.com/MrSnakeDoc/sleuth/internal/metrics"
	"github.com/MrSnakeDoc/sleuth/internal/probe"
	"github.com/MrSnakeDoc/sleuth/internal/proxypool"
	"github.com/MrSnakeDoc/sleuth/internal/search"
	"github.com/MrSnakeDoc/sleuth/internal/sources/catalog"
	"github.com/MrSnakeDoc/sleuth/internal/sources/proxylist"
)

// Engine is the search stack without any outer surface.
type Engine struct {
	Catalog      *index.Catalog
	Pool         *proxypool.Pool
	Source       proxypool.Source
	Transport    *probe.Transport
	Executor     *probe.Executor
	Orchestrator *search.Orchestrator
	Metrics      *metrics.Metrics
	Registry     *prometheus.Registry
}

// NewEngine loads the catalog and wires pool, executor and orchestrator.
// store may be nil; scraped proxy candidates are then not cached.
func NewEngine(cfg *config.Config, log logger.Logger, store proxylist.CandidateStore) (*Engine, error) {
	sites, err := catalog.LoadSites(cfg.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	idx, err := index.NewCatalog(sites)
	if err != nil {
		return nil, err
	}
	log.Info("catalog loaded",
		logger.String("file", cfg.CatalogFile),
		logger.Int("sites", idx.Count()))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	for _, v := range domain.Verdicts {
		m.InitVerdicts(string(v))
	}

	rotation, err := proxypool.ParseRotation(cfg.ProxyRotation)
	if err != nil {
		return nil, err
	}
	src := proxySource(cfg, log, store)
	pool := proxypool.New(proxypool.Config{
		Enabled:             cfg.ProxyEnabled,
		Rotation:            rotation,
		Cooldown:            cfg.ProxyCooldown,
		AllowDirectFallback: cfg.ProxyDirectFallback,
		AutoFetch:           cfg.ProxyAutoFetch,
		Endpoints:           cfg.ProxyList,
	},
		proxypool.WithSource(src),
		proxypool.WithLogger(log.With(logger.String("component", "proxypool"))),
		proxypool.WithMetrics(m),
	)

	transport := probe.NewTransport(cfg.RequestTimeout)
	executor := probe.NewExecutor(probe.Config{
		MaxRetries:    cfg.MaxRetries,
		BackoffBase:   cfg.BackoffBase,
		BackoffJitter: cfg.BackoffJitter,
		MaxBodyBytes:  cfg.MaxBodyBytes,
		UserAgent:     cfg.UserAgent,
	}, transport,
		probe.WithReporter(pool),
		probe.WithLogger(log.With(logger.String("component", "probe"))),
		probe.WithMetrics(m),
	)

	orch, err := search.New(idx, pool, executor,
		search.WithMaxConcurrency(cfg.MaxConcurrency),
		search.WithLogger(log.With(logger.String("component", "search"))),
		search.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	return &Engine{
		Catalog:      idx,
		Pool:         pool,
		Source:       src,
		Transport:    transport,
		Executor:     executor,
		Orchestrator: orch,
		Metrics:      m,
		Registry:     reg,
	}, nil
}

// proxySource scrapes the configured list page, through the candidate cache
// when a store is available. Without a list URL, refills restore the
// configured seed endpoints.
func proxySource(cfg *config.Config, log logger.Logger, store proxylist.CandidateStore) proxypool.Source {
	if cfg.ProxySourceURL == "" {
		return proxylist.Static(cfg.ProxyList)
	}

	scraper := proxylist.NewProxyNova(cfg.ProxySourceURL, cfg.ProxySourceMax, cfg.UserAgent,
		log.With(logger.String("component", "proxylist")))
	if store == nil {
		return scraper
	}
	return proxylist.NewCached(scraper, store, cfg.ProxySourceURL, cfg.ProxyCacheTTL,
		log.With(logger.String("component", "proxylist")))
}
