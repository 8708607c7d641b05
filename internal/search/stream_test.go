package search

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/sleuth/internal/probe"
)

func TestStreamDeliversResultsThenComplete(t *testing.T) {
	o := newOrchestrator(t, catalogOf(t, numberedSites(5)...), nil, page(http.StatusOK, "bob"))

	events, err := o.Stream(context.Background(), "bob", 0)
	require.NoError(t, err)

	var results []string
	var terminal []Event
	for ev := range events {
		switch ev.Type {
		case EventResult:
			require.Empty(t, terminal, "no result may follow the terminal event")
			require.NotNil(t, ev.Result)
			results = append(results, ev.Result.Site)
		default:
			terminal = append(terminal, ev)
		}
	}

	require.Len(t, terminal, 1)
	assert.Equal(t, EventComplete, terminal[0].Type)
	require.NotNil(t, terminal[0].Outcome)
	assert.Equal(t, len(results), terminal[0].Outcome.TotalChecked)
	assert.Len(t, results, 5)
}

func TestStreamEmptyUsername(t *testing.T) {
	o := newOrchestrator(t, catalogOf(t, siteA()), nil, page(http.StatusOK, ""))

	_, err := o.Stream(context.Background(), "", 0)
	assert.ErrorIs(t, err, ErrEmptyUsername)
}

func TestStreamStopsWhenConsumerCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	f := fetchFunc(func(ctx context.Context, _ probe.Request) (*probe.Response, error) {
		select {
		case <-time.After(5 * time.Millisecond):
			return &probe.Response{StatusCode: http.StatusOK, Body: "bob"}, nil
		case <-ctx.Done():
			return nil, &probe.FetchError{Kind: probe.KindCanceled, Attempts: 1, Err: ctx.Err()}
		}
	})
	o := newOrchestrator(t, catalogOf(t, numberedSites(50)...), nil, f, WithMaxConcurrency(2))

	events, err := o.Stream(ctx, "bob", 0)
	require.NoError(t, err)

	first := <-events
	assert.Equal(t, EventResult, first.Type)
	cancel()

	closed := make(chan struct{})
	go func() {
		for range events {
		}
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close after cancellation")
	}
}

func TestStreamDeliversTerminalEventAfterCancel(t *testing.T) {
	sites := numberedSites(2)
	f := fetchFunc(func(ctx context.Context, req probe.Request) (*probe.Response, error) {
		if strings.Contains(req.URL, "s00.example") {
			return &probe.Response{StatusCode: http.StatusNotFound, Attempts: 1}, nil
		}
		<-ctx.Done()
		return nil, &probe.FetchError{Kind: probe.KindCanceled, Attempts: 1, Err: ctx.Err()}
	})
	o := newOrchestrator(t, catalogOf(t, sites...), nil, f)

	for i := 0; i < 50; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		events, err := o.Stream(ctx, "bob", 0)
		require.NoError(t, err)

		var all []Event
		for ev := range events {
			all = append(all, ev)
		}
		cancel()

		require.Len(t, all, 2, "run %d", i)
		assert.Equal(t, EventResult, all[0].Type)
		last := all[1]
		require.Equal(t, EventError, last.Type, "run %d", i)
		assert.ErrorIs(t, last.Err, context.DeadlineExceeded)
		require.NotNil(t, last.Outcome)
		assert.Equal(t, 1, last.Outcome.TotalChecked)
		assert.Equal(t, "site-00", last.Outcome.All[0].Site)
	}
}

func TestStreamSurvivesAbandonedConsumer(t *testing.T) {
	o := newOrchestrator(t, catalogOf(t, numberedSites(20)...), nil, page(http.StatusOK, "bob"))

	events, err := o.Stream(context.Background(), "bob", 0)
	require.NoError(t, err)

	// Nobody reads; the producer must still finish and close the channel.
	require.Eventually(t, func() bool { return len(events) == cap(events) }, 2*time.Second, 5*time.Millisecond)

	var terminal Event
	for ev := range events {
		terminal = ev
	}
	assert.Equal(t, EventComplete, terminal.Type)
}
