package probe

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// ClientFactory hands out HTTP clients per route.
type ClientFactory interface {
	Client(proxyEndpoint string, followRedirects bool) (*http.Client, error)
}

type clientKey struct {
	proxy  string
	follow bool
}

// Transport caches one client per (proxy endpoint, redirect policy) so
// connections are pooled across probes sharing a route.
type Transport struct {
	timeout time.Duration

	mu      sync.Mutex
	clients map[clientKey]*http.Client
}

// NewTransport creates a transport whose clients time out after timeout.
func NewTransport(timeout time.Duration) *Transport {
	return &Transport{
		timeout: timeout,
		clients: make(map[clientKey]*http.Client),
	}
}

// Client returns the cached client for the route, building it on first use.
// An empty proxyEndpoint means a direct connection.
func (t *Transport) Client(proxyEndpoint string, followRedirects bool) (*http.Client, error) {
	key := clientKey{proxy: proxyEndpoint, follow: followRedirects}

	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.clients[key]; ok {
		return c, nil
	}

	rt, err := newRoundTripper(proxyEndpoint)
	if err != nil {
		return nil, err
	}

	c := &http.Client{
		Timeout:   t.timeout,
		Transport: rt,
	}
	if !followRedirects {
		c.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	t.clients[key] = c
	return c, nil
}

// CloseIdleConnections releases pooled connections of every cached client.
func (t *Transport) CloseIdleConnections() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, c := range t.clients {
		c.CloseIdleConnections()
	}
}

func newRoundTripper(proxyEndpoint string) (*http.Transport, error) {
	rt := &http.Transport{
		Proxy: nil,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	if proxyEndpoint == "" {
		return rt, nil
	}

	u, err := url.Parse(proxyEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy endpoint %q: %w", proxyEndpoint, err)
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("invalid proxy endpoint %q: %w", proxyEndpoint, errUnsupportedScheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid proxy endpoint %q: missing host", proxyEndpoint)
	}

	rt.Proxy = http.ProxyURL(u)
	return rt, nil
}

var errUnsupportedScheme = errors.New("unsupported proxy scheme")
