package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/sleuth/internal/config"
	"github.com/MrSnakeDoc/sleuth/internal/httpserver"
	"github.com/MrSnakeDoc/sleuth/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sleuth/internal/logger"
	"github.com/MrSnakeDoc/sleuth/internal/network"
	"github.com/MrSnakeDoc/sleuth/internal/redis"
	"github.com/MrSnakeDoc/sleuth/internal/scheduler"
	"github.com/MrSnakeDoc/sleuth/internal/sources/proxylist"
	redisstore "github.com/MrSnakeDoc/sleuth/internal/store/redis"
	"github.com/MrSnakeDoc/sleuth/internal/utils"
	"github.com/MrSnakeDoc/sleuth/internal/version"
)

type App struct {
	cfg             *config.Config
	logger          logger.Logger
	server          *httpserver.Server
	redisClient     *goredis.Client
	engine          *Engine
	catalogReloader *scheduler.CatalogReloader
	refresher       *scheduler.ProxyRefresher
	reaper          *scheduler.ProxyReaper
}

func New(cfg *config.Config, loggerClient logger.Logger) (*App, error) {
	// Redis is optional: without it scraped proxy candidates are simply not cached.
	redisClient := ConnectRedis(cfg, loggerClient)

	var (
		candidates  proxylist.CandidateStore
		egressCache network.Cache
		pinger      deps.Pinger
	)
	if redisClient != nil {
		store := redisstore.NewStore(redisClient)
		candidates, egressCache, pinger = store, store, store
	}

	engine, err := NewEngine(cfg, loggerClient, candidates)
	if err != nil {
		if redisClient != nil {
			utils.CloseLogged(redisClient, "redis", loggerClient)
		}
		return nil, err
	}

	catalogReloader := scheduler.NewCatalogReloader(
		cfg.CatalogFile,
		engine.Catalog,
		loggerClient.With(logger.String("component", "catalog_reloader")),
		cfg.CatalogReloadInterval,
		make(chan struct{}, 1),
	)

	refresher := scheduler.NewProxyRefresher(
		engine.Pool,
		loggerClient.With(logger.String("component", "proxy_refresher")),
		cfg.ProxyRefreshInterval,
		make(chan struct{}, 1),
	)

	var invalidator scheduler.CandidateInvalidator
	if inv, ok := engine.Source.(scheduler.CandidateInvalidator); ok {
		invalidator = inv
	}
	reaper := scheduler.NewProxyReaper(
		engine.Pool,
		invalidator,
		refresher,
		loggerClient.With(logger.String("component", "proxy_reaper")),
		cfg.ProxyReapInterval,
		cfg.ProxyMaxFailures,
	)

	egress := network.NewResolver(cfg.IPEchoURL, engine.Transport, egressCache,
		redisstore.DefaultEgressTTL, loggerClient.With(logger.String("component", "egress")))

	// Dependencies passed to routes (extend as needed).
	d := deps.Deps{
		Logger:          loggerClient,
		StartTime:       time.Now(),
		Version:         version.Version,
		Commit:          version.Commit,
		BuildDate:       version.BuildDate,
		GoVersion:       version.GoVersion,
		AllowedHosts:    cfg.AllowedHosts,
		AllowedCIDRS:    cfg.AllowedCIDRS,
		TrustProxy:      cfg.TrustProxy,
		CORSOrigins:     cfg.CORSOrigins,
		SearchBurst:     cfg.SearchBurst,
		SearchPerMinute: cfg.SearchPerMinute,
		Searcher:        engine.Orchestrator,
		Catalog:         engine.Catalog,
		Proxies:         engine.Pool,
		Egress:          egress,
		Redis:           pinger,
		CatalogReload:   catalogReloader,
		ProxyRefresh:    refresher,
		Metrics:         promhttp.HandlerFor(engine.Registry, promhttp.HandlerOpts{}),
	}

	return &App{
		cfg:             cfg,
		logger:          loggerClient,
		server:          httpserver.New(cfg, loggerClient, d),
		redisClient:     redisClient,
		engine:          engine,
		catalogReloader: catalogReloader,
		refresher:       refresher,
		reaper:          reaper,
	}, nil
}

// ConnectRedis returns nil when Redis is not configured or cannot be reached.
func ConnectRedis(cfg *config.Config, log logger.Logger) *goredis.Client {
	if !cfg.RedisEnabled() {
		log.Info("redis not configured, proxy candidate cache disabled")
		return nil
	}

	client, err := redis.New(context.Background(), redis.Options{
		Addr:           cfg.RedisAddr,
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		DialTimeout:    cfg.RedisDT,
		ReadTimeout:    cfg.RedisRT,
		WriteTimeout:   cfg.RedisWT,
		PoolSize:       cfg.RedisPoolSize,
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
		WarnThreshold:  cfg.RedisWarnThreshold,
	}, log)
	if err != nil {
		if !errors.Is(err, redis.ErrDisabled) {
			log.Warn("redis unavailable, continuing without proxy candidate cache", logger.Error(err))
		}
		return nil
	}
	return client
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting Sleuth %s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("Sleuth %s", version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start catalog reloader (reloads the file it was built from and watches for triggers)
	if err := a.catalogReloader.Start(ctx); err != nil {
		return fmt.Errorf("failed to start catalog reloader: %w", err)
	}
	a.logger.Info("catalog reloader started",
		logger.Duration("interval", a.cfg.CatalogReloadInterval))

	// Start proxy refresher (fills the pool once, then periodically)
	if err := a.refresher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start proxy refresher: %w", err)
	}
	a.logger.Info("proxy refresher started",
		logger.Duration("interval", a.cfg.ProxyRefreshInterval),
		logger.Int("proxies", a.engine.Pool.Size()))

	// Start proxy reaper
	if err := a.reaper.Start(ctx); err != nil {
		return fmt.Errorf("failed to start proxy reaper: %w", err)
	}
	a.logger.Info("proxy reaper started",
		logger.Duration("interval", a.cfg.ProxyReapInterval),
		logger.Int("max_failures", a.cfg.ProxyMaxFailures))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
	}

	a.catalogReloader.Stop()
	a.refresher.Stop()
	a.reaper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to stop server: %w", err)
	}

	a.engine.Transport.CloseIdleConnections()

	if a.redisClient != nil {
		utils.CloseLogged(a.redisClient, "redis", a.logger)
	}

	if runErr == nil {
		a.logger.Info("✅ Sleuth stopped cleanly")
	}
	return runErr
}
