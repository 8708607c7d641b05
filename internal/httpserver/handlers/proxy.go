package handlers

import (
	"net/http"
	"strconv"

	"github.com/MrSnakeDoc/sleuth/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sleuth/internal/logger"
	"github.com/MrSnakeDoc/sleuth/internal/proxypool"
)

type networkStatusResponse struct {
	ProxyEnabled bool               `json:"proxy_enabled"`
	Proxy        proxypool.Snapshot `json:"proxy"`
	DirectIP     *string            `json:"direct_ip"`
	ProxyIP      *string            `json:"proxy_ip"`
	ProxyID      string             `json:"proxy_id,omitempty"`
}

// NetworkStatus reports the pool state and the public IPs seen directly and
// through the next proxy. Lookup failures yield null IPs, not errors.
func NetworkStatus(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		snap := d.Proxies.Snapshot()
		resp := networkStatusResponse{
			ProxyEnabled: snap.Enabled,
			Proxy:        snap,
		}

		if ip, err := d.Egress.Lookup(ctx, ""); err == nil {
			resp.DirectIP = &ip
		} else {
			d.Logger.Debug("direct egress lookup failed", logger.Error(err))
		}

		if snap.Enabled {
			if rec, ok := d.Proxies.Select(); ok {
				resp.ProxyID = rec.ID
				if ip, err := d.Egress.Lookup(ctx, rec.Endpoint); err == nil {
					resp.ProxyIP = &ip
				} else {
					d.Logger.Debug("proxied egress lookup failed",
						logger.String("proxy_id", rec.ID),
						logger.Error(err))
				}
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

type toggleResponse struct {
	ProxyEnabled       bool   `json:"proxy_enabled"`
	ProxyCount         int    `json:"proxy_count"`
	AutoFetchAttempted bool   `json:"auto_fetch_attempted"`
	Message            string `json:"message,omitempty"`
}

// ProxyToggle switches the pool on or off. Enabling an empty pool fills it
// first; when it stays empty the pool stays off.
func ProxyToggle(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		enabled, err := strconv.ParseBool(r.URL.Query().Get("enabled"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "enabled must be true or false")
			return
		}

		resp := toggleResponse{}
		if enabled && d.Proxies.Size() == 0 {
			resp.AutoFetchAttempted = true
			if _, err := d.Proxies.EnsurePopulated(r.Context()); err != nil {
				d.Logger.Warn("proxy auto-fetch failed", logger.Error(err))
			}
		}

		resp.ProxyEnabled = d.Proxies.SetEnabled(enabled)
		resp.ProxyCount = d.Proxies.Size()
		if enabled && !resp.ProxyEnabled {
			resp.Message = "No proxies available; proxy left off. Set SLEUTH_PROXY_LIST or keep SLEUTH_PROXY_AUTO_FETCH on."
		}

		d.Logger.Info("proxy pool toggled",
			logger.Bool("requested", enabled),
			logger.Bool("enabled", resp.ProxyEnabled),
			logger.Int("proxies", resp.ProxyCount))

		writeJSON(w, http.StatusOK, resp)
	}
}
