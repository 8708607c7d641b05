// Package redis dials the optional Redis instance that caches scraped proxy
// candidates and egress lookups. Sleuth runs without it, so every failure here
// is reported to the caller instead of ending the process.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/sleuth/internal/logger"
	"github.com/redis/go-redis/v9"
)

// Options configures the cache client and how long startup waits for it.
type Options struct {
	Addr           string        // host:port, empty disables the cache
	User           string        // ACL user
	Password       string        // ACL password
	RedisDB        int           // logical database
	DialTimeout    time.Duration // per-connection dial timeout
	ReadTimeout    time.Duration // per-command read timeout
	WriteTimeout   time.Duration // per-command write timeout
	PoolSize       int           // connection pool size
	ConnectTimeout time.Duration // total budget for the startup ping loop
	RetryInterval  time.Duration // first backoff, doubled after every failed ping
	MaxWait        time.Duration // backoff ceiling
	PingTimeout    time.Duration // timeout of a single ping
	WarnThreshold  int           // failed pings logged as warnings before escalating to errors
}

// ErrDisabled is returned when no address is configured.
var ErrDisabled = errors.New("redis: no address configured")

// validate checks the startup budget. An empty address is ErrDisabled.
func (o Options) validate() error {
	if o.Addr == "" {
		return ErrDisabled
	}
	durations := []struct {
		name  string
		value time.Duration
	}{
		{"ConnectTimeout", o.ConnectTimeout},
		{"RetryInterval", o.RetryInterval},
		{"MaxWait", o.MaxWait},
		{"PingTimeout", o.PingTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("redis: %s must be > 0, got %v", d.name, d.value)
		}
	}
	if o.WarnThreshold < 0 {
		return fmt.Errorf("redis: WarnThreshold must be >= 0, got %d", o.WarnThreshold)
	}
	return nil
}

// New creates the cache client and pings it with exponential backoff until
// ConnectTimeout or ctx ends. The client is closed when no ping succeeds.
func New(ctx context.Context, opts Options, log logger.Logger) (*redis.Client, error) {
	if err := opts.validate(); err != nil {
		if !errors.Is(err, ErrDisabled) {
			log.Error("invalid redis cache options", logger.Error(err))
		}
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.User,
		Password:     opts.Password,
		DB:           opts.RedisDB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolSize:     opts.PoolSize,
	})

	d := &dialer{client: client, opts: opts, log: log.With(logger.String("addr", opts.Addr))}
	if err := d.waitReady(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// dialer runs the startup ping loop for one client.
type dialer struct {
	client *redis.Client
	opts   Options
	log    logger.Logger
}

func (d *dialer) waitReady(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, d.opts.ConnectTimeout)
	defer cancel()

	start := time.Now()
	d.log.Info("connecting to redis proxy cache", logger.Duration("budget", d.opts.ConnectTimeout))

	wait := d.opts.RetryInterval
	for attempt := 1; ; attempt++ {
		err := d.ping(ctx)
		if err == nil {
			d.connected(attempt, time.Since(start))
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			d.log.Error("redis proxy cache unreachable, candidates and egress lookups will not be cached",
				logger.Int("attempts", attempt),
				logger.Duration("budget", d.opts.ConnectTimeout),
				logger.Error(err))
			return fmt.Errorf("redis unavailable at %s after %d attempts: %w", d.opts.Addr, attempt, err)
		case <-timer.C:
			d.retrying(ctx, attempt, wait, err)
			wait = min(wait*2, d.opts.MaxWait)
		}
	}
}

func (d *dialer) ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, d.opts.PingTimeout)
	defer cancel()
	return d.client.Ping(pingCtx).Err()
}

func (d *dialer) connected(attempts int, elapsed time.Duration) {
	if attempts == 1 {
		d.log.Info("redis proxy cache connected")
		return
	}
	d.log.Warn("redis proxy cache connected after retries",
		logger.Int("attempts", attempts),
		logger.Duration("elapsed", elapsed))
}

// retrying logs a failed ping. Early attempts are warnings; later ones, or
// any attempt close to the budget, are errors.
func (d *dialer) retrying(ctx context.Context, attempt int, wait time.Duration, err error) {
	fields := []logger.Field{
		logger.Int("attempt", attempt),
		logger.Duration("next_retry_in", wait),
		logger.Error(err),
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < 10*time.Second {
			d.log.Error("redis proxy cache still down, startup budget almost spent",
				append(fields, logger.Duration("remaining", remaining))...)
			return
		}
	}
	if attempt <= d.opts.WarnThreshold {
		d.log.Warn("redis proxy cache ping failed, retrying", fields...)
		return
	}
	d.log.Error("redis proxy cache still unreachable", fields...)
}
