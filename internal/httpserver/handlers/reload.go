package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/sleuth/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sleuth/internal/logger"
)

// Reload triggers a manual reload of the site catalog.
func Reload(d deps.Deps) http.HandlerFunc {
	return triggerHandler(d, d.CatalogReload, "catalog reload")
}

// ProxyRefresh triggers a manual refill of the proxy pool.
func ProxyRefresh(d deps.Deps) http.HandlerFunc {
	return triggerHandler(d, d.ProxyRefresh, "proxy refresh")
}

func triggerHandler(d deps.Deps, trigger deps.Trigger, what string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if trigger == nil {
			http.Error(w, what+" not available", http.StatusServiceUnavailable)
			return
		}

		if trigger.Trigger() {
			d.Logger.Info("manual "+what+" triggered via endpoint",
				logger.String("remote_ip", r.RemoteAddr))
			w.WriteHeader(http.StatusAccepted)
			if _, err := w.Write([]byte("✅ Reload triggered successfully\n")); err != nil {
				d.Logger.Debug("failed to write response", logger.Error(err))
			}
			return
		}

		d.Logger.Warn(what+" already in progress",
			logger.String("remote_ip", r.RemoteAddr))
		w.WriteHeader(http.StatusTooManyRequests)
		if _, err := w.Write([]byte("⏳ Reload already in progress, please wait\n")); err != nil {
			d.Logger.Debug("failed to write response", logger.Error(err))
		}
	}
}
