package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/sleuth/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sleuth/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/sleuth/internal/httpserver/mw"
)

func init() { Register(registerProxy) }

func registerProxy(r chi.Router, d deps.Deps) {
	r.Get("/api/network/status", handlers.NetworkStatus(d))

	r.Group(func(r chi.Router) {
		r.Use(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger), mw.EnforceHost(d.AllowedHosts, d.Logger))
		r.Post("/api/proxy/toggle", handlers.ProxyToggle(d))
		r.Post("/api/proxy/refresh", handlers.ProxyRefresh(d))
	})
}
