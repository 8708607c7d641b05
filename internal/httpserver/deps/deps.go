package deps

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/sleuth/internal/domain"
	"github.com/MrSnakeDoc/sleuth/internal/logger"
	"github.com/MrSnakeDoc/sleuth/internal/proxypool"
	"github.com/MrSnakeDoc/sleuth/internal/search"
)

// Searcher runs username searches.
type Searcher interface {
	Search(ctx context.Context, username string, opts search.Options) (*domain.Outcome, error)
	Stream(ctx context.Context, username string, limit int) (<-chan search.Event, error)
}

// ProxyPool is the part of the pool the API controls.
type ProxyPool interface {
	Snapshot() proxypool.Snapshot
	Select() (proxypool.Record, bool)
	SetEnabled(enabled bool) bool
	EnsurePopulated(ctx context.Context) (int, error)
	Size() int
}

// CatalogIndex reports the loaded catalog.
type CatalogIndex interface {
	Count() int
	Categories() map[string]int
	LoadedAt() time.Time
}

// Trigger queues a background job; false means one is already queued or running.
type Trigger interface {
	Trigger() bool
}

// EgressLookup resolves the public IP seen through a proxy ("" = direct).
type EgressLookup interface {
	Lookup(ctx context.Context, proxyEndpoint string) (string, error)
}

// Pinger checks an optional backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Logger          logger.Logger
	StartTime       time.Time
	Version         string
	Commit          string
	BuildDate       string
	GoVersion       string
	AllowedHosts    []string     // Host headers allowed to access control endpoints
	AllowedCIDRS    []string     // IPs allowed to access readyz, metrics and proxy controls
	TrustProxy      bool         // true if running behind a trusted reverse proxy (e.g., cloudflared)
	CORSOrigins     []string     // browser origins allowed to call the API
	SearchBurst     int          // per-IP search burst
	SearchPerMinute int          // per-IP search refill per minute
	Searcher        Searcher     // search orchestrator
	Catalog         CatalogIndex // in-memory site catalog
	Proxies         ProxyPool    // proxy pool
	Egress          EgressLookup // egress IP resolver
	Redis           Pinger       // nil when redis is disabled
	CatalogReload   Trigger      // manual catalog reload
	ProxyRefresh    Trigger      // manual proxy refresh
	Metrics         http.Handler // prometheus exposition, nil disables /metrics
}
