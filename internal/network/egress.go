// Package network reports the public IP the service is seen from, directly
// and through a proxy.
package network

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MrSnakeDoc/sleuth/internal/logger"
	"github.com/MrSnakeDoc/sleuth/internal/probe"
	"github.com/MrSnakeDoc/sleuth/internal/utils"
)

const (
	// DefaultEchoURL answers {"ip": "..."}.
	DefaultEchoURL = "https://api.ipify.org?format=json"
	// DefaultLookupTimeout bounds one lookup.
	DefaultLookupTimeout = 5 * time.Second
	// RouteDirect is the cache route for unproxied lookups.
	RouteDirect = "direct"
)

// Cache stores lookups per route. A miss returns "" and no error.
type Cache interface {
	CacheEgressIP(ctx context.Context, route, ip string, ttl time.Duration) error
	GetCachedEgressIP(ctx context.Context, route string) (string, error)
}

// Resolver looks up egress IPs through an IP echo service.
type Resolver struct {
	echoURL string
	clients probe.ClientFactory
	cache   Cache
	ttl     time.Duration
	timeout time.Duration
	log     logger.Logger
	group   singleflight.Group
}

// NewResolver creates a resolver. cache may be nil.
func NewResolver(echoURL string, clients probe.ClientFactory, cache Cache, ttl time.Duration, log logger.Logger) *Resolver {
	if echoURL == "" {
		echoURL = DefaultEchoURL
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Resolver{
		echoURL: echoURL,
		clients: clients,
		cache:   cache,
		ttl:     ttl,
		timeout: DefaultLookupTimeout,
		log:     log,
	}
}

// Lookup returns the public IP seen when going through proxyEndpoint, or
// directly when proxyEndpoint is empty. Concurrent lookups of one route
// share a single request.
func (r *Resolver) Lookup(ctx context.Context, proxyEndpoint string) (string, error) {
	route := RouteDirect
	if proxyEndpoint != "" {
		route = proxyEndpoint
	}

	if r.cache != nil {
		ip, err := r.cache.GetCachedEgressIP(ctx, route)
		if err != nil {
			r.log.Debug("egress cache read failed", logger.String("route", route), logger.Error(err))
		} else if ip != "" {
			return ip, nil
		}
	}

	v, err, _ := r.group.Do(route, func() (any, error) {
		return r.fetch(ctx, proxyEndpoint)
	})
	if err != nil {
		return "", err
	}
	ip := v.(string)

	if r.cache != nil {
		if err := r.cache.CacheEgressIP(ctx, route, ip, r.ttl); err != nil {
			r.log.Debug("egress cache write failed", logger.String("route", route), logger.Error(err))
		}
	}
	return ip, nil
}

type echoResponse struct {
	IP string `json:"ip"`
}

func (r *Resolver) fetch(ctx context.Context, proxyEndpoint string) (string, error) {
	client, err := r.clients.Client(proxyEndpoint, true)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.echoURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build egress request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("egress lookup failed: %w", err)
	}
	defer utils.Close(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("egress lookup failed: status %d", resp.StatusCode)
	}

	var body echoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode egress response: %w", err)
	}
	if body.IP == "" {
		return "", fmt.Errorf("egress response carried no ip")
	}
	return body.IP, nil
}
