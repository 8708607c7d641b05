package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/sleuth/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sleuth/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/sleuth/internal/httpserver/mw"
)

func init() { Register(registerSearch) }

func registerSearch(r chi.Router, d deps.Deps) {
	// One limiter for both endpoints: a stream costs as much as a plain search.
	limit := mw.RateLimit(mw.RateLimitConfig{
		Burst:      d.SearchBurst,
		PerMinute:  d.SearchPerMinute,
		MaxEntries: 10_000,
		TrustProxy: d.TrustProxy,
		Logger:     d.Logger,
	})

	r.Group(func(r chi.Router) {
		r.Use(limit)
		r.Post("/api/search/username", handlers.SearchUsername(d))
		r.Get("/api/search/username/stream", handlers.StreamUsername(d))
	})
}
