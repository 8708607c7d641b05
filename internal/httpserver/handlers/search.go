package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrSnakeDoc/sleuth/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sleuth/internal/logger"
	"github.com/MrSnakeDoc/sleuth/internal/search"
)

// searchParams reads ?username= and the optional ?limit=.
func searchParams(r *http.Request) (string, int, error) {
	q := r.URL.Query()
	username := strings.TrimSpace(q.Get("username"))
	if username == "" {
		return "", 0, errors.New("username is required")
	}

	limit := 0
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return "", 0, fmt.Errorf("invalid limit %q", raw)
		}
		limit = n
	}
	return username, limit, nil
}

// searchErrorStatus maps a search error to an HTTP status.
func searchErrorStatus(err error) int {
	switch {
	case errors.Is(err, search.ErrEmptyUsername):
		return http.StatusBadRequest
	case errors.Is(err, search.ErrEmptyCatalog):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// SearchUsername runs one search and answers with the full outcome.
func SearchUsername(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, limit, err := searchParams(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		// A search lasts as long as its slowest probe, past the server write timeout.
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

		d.Logger.Info("search request",
			logger.String("username", username),
			logger.Int("limit", limit))

		outcome, err := d.Searcher.Search(r.Context(), username, search.Options{Limit: limit})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				d.Logger.Debug("search abandoned by client", logger.String("username", username))
				return
			}
			d.Logger.Error("username search failed",
				logger.String("username", username),
				logger.Error(err))
			writeError(w, searchErrorStatus(err), err.Error())
			return
		}

		writeJSON(w, http.StatusOK, outcome)
	}
}
