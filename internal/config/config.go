package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenPort      string        // ex: ":8000"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	CatalogFile           string        // path to the platforms catalog (JSON or YAML)
	CatalogReloadInterval time.Duration // periodic catalog reload (0 = manual /reload only)

	// Probing
	RequestTimeout time.Duration // per-request timeout applied by the transport (ex: 20s)
	MaxConcurrency int           // global in-flight probe cap per search
	MaxRetries     int           // retries after the first attempt (2 => 3 attempts)
	BackoffBase    time.Duration // backoff = base * 2^attempt + jitter
	BackoffJitter  time.Duration // upper bound of the uniform jitter
	MaxBodyBytes   int64         // body bytes read per response
	UserAgent      string        // browser UA sent with every probe

	// Proxy pool
	ProxyEnabled         bool          // pool starts enabled (still needs proxies)
	ProxyList            []string      // seed endpoints ("http://1.2.3.4:8080, socks5://...")
	ProxyRotation        string        // "round_robin" | "random_healthy"
	ProxyCooldown        time.Duration // exclusion window after a failure
	ProxyDirectFallback  bool          // allow unproxied fetches when no proxy is healthy
	ProxyAutoFetch       bool          // scrape a public list when the pool is empty
	ProxySourceURL       string        // public proxy list page ("none" = refill from ProxyList)
	ProxySourceMax       int           // max candidates taken from the source
	ProxyCacheTTL        time.Duration // redis TTL for scraped candidates
	ProxyRefreshInterval time.Duration // refresher tick
	ProxyReapInterval    time.Duration // reaper tick
	ProxyMaxFailures     int           // prune proxies with this many failures and no success (0 = never)

	IPEchoURL string // endpoint returning {"ip": "..."} for /api/network/status

	// Redis (optional, empty address disables the candidate cache)
	RedisAddr           string
	RedisUser           string
	RedisPassword       string
	RedisDB             int
	RedisDT             time.Duration // Redis dial timeout (ex: 5s)
	RedisRT             time.Duration // Redis read timeout (ex: 3s)
	RedisWT             time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait        time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout    time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize       int           // Redis connection pool size
	RedisConnectTimeout time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval  time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold  int           // warn after this many attempts

	// Access
	AllowedHosts    []string // optional, restrict access to specific Host headers
	AllowedCIDRS    []string // optional, restrict /metrics and proxy controls to these IPs
	TrustProxy      bool     // true => trust X-Forwarded-For headers
	CORSOrigins     []string // allowed browser origins for the API
	SearchBurst     int      // per-IP search burst
	SearchPerMinute int      // per-IP search refill per minute
}

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("SLEUTH_LISTEN_PORT", ":8000"),
		ShutdownTimeout: mustDuration("SLEUTH_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("SLEUTH_LOG_LEVEL", "info"),
		PrettyLog: mustBool("SLEUTH_PRETTY_LOG", true),

		CatalogFile:           requireEnv("SLEUTH_CATALOG_FILE"),
		CatalogReloadInterval: mustDuration("SLEUTH_CATALOG_RELOAD_INTERVAL", 0),

		// Probing
		RequestTimeout: mustDuration("SLEUTH_REQUEST_TIMEOUT", 20*time.Second),
		MaxConcurrency: getenvInt("SLEUTH_MAX_CONCURRENCY", 8),
		MaxRetries:     getenvInt("SLEUTH_MAX_RETRIES", 2),
		BackoffBase:    mustDuration("SLEUTH_BACKOFF_BASE", 500*time.Millisecond),
		BackoffJitter:  mustDuration("SLEUTH_BACKOFF_JITTER", 250*time.Millisecond),
		MaxBodyBytes:   int64(getenvInt("SLEUTH_MAX_BODY_BYTES", 2<<20)),
		UserAgent:      getenv("SLEUTH_USER_AGENT", DefaultUserAgent),

		// Proxy pool
		ProxyEnabled:         mustBool("SLEUTH_PROXY_ENABLED", false),
		ProxyList:            splitAndTrim(getenv("SLEUTH_PROXY_LIST", "")),
		ProxyRotation:        getenv("SLEUTH_PROXY_ROTATION_MODE", "round_robin"),
		ProxyCooldown:        mustDuration("SLEUTH_PROXY_FAILURE_COOLDOWN", 120*time.Second),
		ProxyDirectFallback:  mustBool("SLEUTH_PROXY_ALLOW_DIRECT_FALLBACK", true),
		ProxyAutoFetch:       mustBool("SLEUTH_PROXY_AUTO_FETCH", true),
		ProxySourceURL:       getenv("SLEUTH_PROXY_SOURCE_URL", "https://www.proxynova.com/proxy-server-list/"),
		ProxySourceMax:       getenvInt("SLEUTH_PROXY_SOURCE_MAX", 10),
		ProxyCacheTTL:        mustDuration("SLEUTH_PROXY_CACHE_TTL", 30*time.Minute),
		ProxyRefreshInterval: mustDuration("SLEUTH_PROXY_REFRESH_INTERVAL", 10*time.Minute),
		ProxyReapInterval:    mustDuration("SLEUTH_PROXY_REAP_INTERVAL", 5*time.Minute),
		ProxyMaxFailures:     getenvInt("SLEUTH_PROXY_MAX_FAILURES", 7),

		IPEchoURL: getenv("SLEUTH_IP_ECHO_URL", "https://api.ipify.org?format=json"),

		// Redis settings
		RedisAddr:           getenv("SLEUTH_REDIS_ADDR", ""),
		RedisUser:           getenv("SLEUTH_REDIS_USERNAME", ""),
		RedisPassword:       getenv("SLEUTH_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("SLEUTH_REDIS_DB", 0),
		RedisDT:             mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:             mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:             mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:        mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:    mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:       getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout: mustDuration("REDIS_CONNECT_TIMEOUT", 15*time.Second),
		RedisRetryInterval:  mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:  getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Access restrictions
		AllowedHosts:    splitAndTrim(getenv("SLEUTH_ALLOWED_HOSTS", "")),
		AllowedCIDRS:    parseAllowedIPs(getenv("SLEUTH_ALLOWED_CIDRS", "")),
		TrustProxy:      mustBool("SLEUTH_TRUST_PROXY", false),
		CORSOrigins:     splitAndTrim(getenv("SLEUTH_CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		SearchBurst:     getenvInt("SLEUTH_SEARCH_BURST", 5),
		SearchPerMinute: getenvInt("SLEUTH_SEARCH_PER_MINUTE", 10),
	}

	// "none" turns scraping off; refills then restore SLEUTH_PROXY_LIST.
	if strings.EqualFold(cfg.ProxySourceURL, "none") {
		cfg.ProxySourceURL = ""
	}

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("❌ FATAL: %v", err))
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		if cfg.RedisPassword != "" {
			cfgCopy.RedisPassword = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// DefaultUserAgent is a current desktop Chrome UA; several platforms serve
// stripped or blocked pages to non-browser agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("SLEUTH_MAX_CONCURRENCY must be >= 1, got %d", c.MaxConcurrency)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("SLEUTH_MAX_RETRIES must be >= 0, got %d", c.MaxRetries)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("SLEUTH_REQUEST_TIMEOUT must be > 0, got %v", c.RequestTimeout)
	}
	switch c.ProxyRotation {
	case "round_robin", "random_healthy":
	default:
		return fmt.Errorf("SLEUTH_PROXY_ROTATION_MODE must be round_robin or random_healthy, got %q", c.ProxyRotation)
	}
	if c.ProxyCooldown < 0 {
		return fmt.Errorf("SLEUTH_PROXY_FAILURE_COOLDOWN must be >= 0, got %v", c.ProxyCooldown)
	}
	return nil
}

// RedisEnabled reports whether a redis address was configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// Bare numbers are seconds, matching the older PROXY_*_SECONDS style settings.
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(f * float64(time.Second))
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
