package search

import (
	"context"
	"strings"

	"github.com/MrSnakeDoc/sleuth/internal/domain"
)

// EventType names stream events. The values double as SSE event names.
type EventType string

const (
	EventResult   EventType = "site_result"
	EventComplete EventType = "search_complete"
	EventError    EventType = "error"
)

// Event is one item of a search stream. Result is set for EventResult,
// Outcome for EventComplete, Err for EventError.
type Event struct {
	Type    EventType
	Result  *domain.Result
	Outcome *domain.Outcome
	Err     error
}

// Stream starts a search and returns its events: one EventResult per site in
// completion order, then a single EventComplete or EventError, then the
// channel is closed. The sequence cannot be restarted. Canceling ctx stops the
// probes but still delivers the terminal event with the partial outcome. The
// channel holds every event, so a consumer may stop reading at any time.
func (o *Orchestrator) Stream(ctx context.Context, username string, limit int) (<-chan Event, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrEmptyUsername
	}

	sites := o.catalog.Limit(limit)
	events := make(chan Event, len(sites)+1)

	go func() {
		defer close(events)

		outcome, err := o.run(ctx, sites, username, func(r domain.Result) {
			events <- Event{Type: EventResult, Result: &r}
		})
		if err != nil {
			events <- Event{Type: EventError, Outcome: outcome, Err: err}
			return
		}
		events <- Event{Type: EventComplete, Outcome: outcome}
	}()

	return events, nil
}
