package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/sleuth/internal/domain"
	"github.com/MrSnakeDoc/sleuth/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sleuth/internal/logger"
	"github.com/MrSnakeDoc/sleuth/internal/search"
)

// HeartbeatInterval is how often an idle stream sends a comment line.
const HeartbeatInterval = 15 * time.Second

type resultEvent struct {
	Type   search.EventType `json:"type"`
	Result *domain.Result   `json:"result"`
}

type summary struct {
	TotalFound   int `json:"total_found"`
	TotalChecked int `json:"total_checked"`
}

type completeEvent struct {
	Type          search.EventType `json:"type"`
	SearchID      string           `json:"search_id"`
	Summary       summary          `json:"summary"`
	FoundProfiles []domain.Result  `json:"found_profiles"`
}

type errorEvent struct {
	Type  search.EventType `json:"type"`
	Error string           `json:"error"`
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func writeEvent(w io.Writer, name search.EventType, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

func writeHeartbeat(w io.Writer) error {
	if _, err := fmt.Fprintf(w, ": heartbeat %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("write heartbeat: %w", err)
	}
	return nil
}

// encodeEvent turns a search event into its SSE payload.
func encodeEvent(ev search.Event) any {
	switch ev.Type {
	case search.EventResult:
		return resultEvent{Type: ev.Type, Result: ev.Result}
	case search.EventComplete:
		return completeEvent{
			Type:     ev.Type,
			SearchID: ev.Outcome.SearchID,
			Summary: summary{
				TotalFound:   ev.Outcome.TotalFound,
				TotalChecked: ev.Outcome.TotalChecked,
			},
			FoundProfiles: ev.Outcome.Found,
		}
	default:
		msg := "search failed"
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		return errorEvent{Type: search.EventError, Error: msg}
	}
}

// StreamUsername runs one search and streams each site result as it
// completes, then a search_complete (or error) event.
func StreamUsername(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, limit, err := searchParams(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		ctx := r.Context()
		events, err := d.Searcher.Stream(ctx, username, limit)
		if err != nil {
			writeError(w, searchErrorStatus(err), err.Error())
			return
		}

		rc := http.NewResponseController(w)
		_ = rc.SetWriteDeadline(time.Time{})

		setSSEHeaders(w)
		w.WriteHeader(http.StatusOK)
		_ = rc.Flush()

		log := d.Logger.With(logger.String("username", username))
		log.Debug("search stream opened", logger.Int("limit", limit))

		ticker := time.NewTicker(HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					log.Debug("search stream closed")
					return
				}
				if ev.Type == search.EventError && ctx.Err() != nil {
					return
				}
				eventType := ev.Type
				if eventType != search.EventResult && eventType != search.EventComplete {
					eventType = search.EventError
				}
				if err := writeEvent(w, eventType, encodeEvent(ev)); err != nil {
					log.Debug("SSE write failed (client likely disconnected)", logger.Error(err))
					return
				}
				_ = rc.Flush()
			case <-ticker.C:
				if err := writeHeartbeat(w); err != nil {
					log.Debug("SSE heartbeat failed (client disconnected)")
					return
				}
				_ = rc.Flush()
			case <-ctx.Done():
				log.Debug("search stream canceled by client")
				return
			}
		}
	}
}
