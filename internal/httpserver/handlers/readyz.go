package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/sleuth/internal/httpserver/deps"
)

type readyzResponse struct {
	Ready bool `json:"ready"`
	Sites int  `json:"sites"`
}

// Readyz reports ready once the catalog holds at least one site.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sites := d.Catalog.Count()
		status := http.StatusOK
		if sites == 0 {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, readyzResponse{Ready: sites > 0, Sites: sites})
	}
}
