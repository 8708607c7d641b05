package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/sleuth/internal/httpserver/deps"
)

type componentStatus struct {
	OK          bool           `json:"ok"`
	SitesLoaded *int           `json:"sites_loaded,omitempty"`
	Categories  map[string]int `json:"categories,omitempty"`
	LastReload  string         `json:"last_reload,omitempty"`
	Proxies     *int           `json:"proxies,omitempty"`
	Healthy     *int           `json:"healthy,omitempty"`
	Mode        string         `json:"mode,omitempty"`
	Impact      string         `json:"impact,omitempty"`
	Error       string         `json:"error,omitempty"`
}

type infraResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components"`
}

func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sitesCount := d.Catalog.Count()
		lastReload := d.Catalog.LoadedAt()
		lastReloadStr := "never"
		if !lastReload.IsZero() {
			lastReloadStr = lastReload.Format("2006-01-02 15:04:05")
		}

		components := map[string]componentStatus{
			"catalog": {
				OK:          sitesCount > 0,
				SitesLoaded: &sitesCount,
				Categories:  d.Catalog.Categories(),
				LastReload:  lastReloadStr,
			},
			"redis":      checkRedis(r.Context(), d),
			"proxy_pool": checkProxies(d),
		}

		writeJSON(w, http.StatusOK, infraResponse{
			Status:     determineStatus(components),
			Components: components,
		})
	}
}

func determineStatus(components map[string]componentStatus) string {
	// No sites loaded = nothing to search
	if catalog, exists := components["catalog"]; exists && !catalog.OK {
		return "critical"
	}

	// Redis and proxies are optional but impact functionality
	if redis, exists := components["redis"]; exists && !redis.OK {
		return "degraded"
	}
	if proxies, exists := components["proxy_pool"]; exists && !proxies.OK {
		return "degraded"
	}

	return "optimal"
}

func checkRedis(ctx context.Context, d deps.Deps) componentStatus {
	if d.Redis == nil {
		return componentStatus{
			OK:     true,
			Mode:   "disabled",
			Impact: "proxy-candidates-not-cached",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := d.Redis.Ping(ctx); err != nil {
		return componentStatus{
			OK:     false,
			Mode:   "degraded",
			Impact: "proxy-candidates-not-cached",
			Error:  err.Error(),
		}
	}

	return componentStatus{
		OK:     true,
		Mode:   "optimal",
		Impact: "proxy-candidates-cached",
	}
}

func checkProxies(d deps.Deps) componentStatus {
	snap := d.Proxies.Snapshot()
	healthy := 0
	for _, p := range snap.Proxies {
		if p.Healthy {
			healthy++
		}
	}
	count := snap.Count

	switch {
	case !snap.Enabled:
		return componentStatus{OK: true, Proxies: &count, Healthy: &healthy, Mode: "disabled", Impact: "direct-probes"}
	case healthy == 0 && snap.AllowDirectFallback:
		return componentStatus{OK: false, Proxies: &count, Healthy: &healthy, Mode: "degraded", Impact: "direct-fallback"}
	case healthy == 0:
		return componentStatus{OK: false, Proxies: &count, Healthy: &healthy, Mode: "degraded", Impact: "no-healthy-proxy"}
	default:
		return componentStatus{OK: true, Proxies: &count, Healthy: &healthy, Mode: "proxied", Impact: "rotating-egress"}
	}
}
