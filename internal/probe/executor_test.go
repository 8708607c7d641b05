package probe

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/sleuth/internal/proxypool"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type staticClients struct {
	client *http.Client
	err    error
}

func (s staticClients) Client(string, bool) (*http.Client, error) { return s.client, s.err }

func clientsFor(rt roundTripFunc) staticClients {
	return staticClients{client: &http.Client{Transport: rt}}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func okResponse(r *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
		Request:    r,
	}
}

type recordingReporter struct {
	mu        sync.Mutex
	successes []string
	failures  []string
}

func (r *recordingReporter) ReportSuccess(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes = append(r.successes, id)
}

func (r *recordingReporter) ReportFailure(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, id)
}

func (r *recordingReporter) failureCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failures)
}

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
	hook  func()
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	if s.hook != nil {
		s.hook()
	}
	return ctx.Err()
}

func testConfig() Config {
	return Config{
		MaxRetries:    2,
		BackoffBase:   500 * time.Millisecond,
		BackoffJitter: 250 * time.Millisecond,
		MaxBodyBytes:  1 << 20,
	}
}

func fixedJitter(time.Duration) time.Duration { return 10 * time.Millisecond }

func TestFetchSuccessDirect(t *testing.T) {
	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		_, _ = w.Write([]byte("hello bob"))
	}))
	defer srv.Close()

	rep := &recordingReporter{}
	e := NewExecutor(testConfig(), NewTransport(5*time.Second), WithReporter(rep))

	resp, err := e.Fetch(context.Background(), Request{URL: srv.URL + "/bob"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello bob", resp.Body)
	assert.Equal(t, 1, resp.Attempts)
	assert.Equal(t, DefaultUserAgent, gotUA)
	assert.NotEmpty(t, gotAccept)
	assert.Empty(t, rep.successes, "direct fetches report nothing")
	assert.Empty(t, rep.failures)
}

func TestFetchTimeoutExhaustsBudget(t *testing.T) {
	var calls atomic.Int32
	clients := clientsFor(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, timeoutErr{}
	})

	sleeps := &sleepRecorder{}
	e := NewExecutor(testConfig(), clients, WithSleep(sleeps.sleep), WithJitter(fixedJitter))

	_, err := e.Fetch(context.Background(), Request{URL: "https://a.example/bob"})
	require.Error(t, err)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindTimeout, fe.Kind)
	assert.Equal(t, 3, fe.Attempts)
	assert.Equal(t, int32(3), calls.Load(), "max_retries=2 means exactly 3 attempts")
	assert.Equal(t, []time.Duration{510 * time.Millisecond, 1010 * time.Millisecond}, sleeps.waits)
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestFetchZeroRetries(t *testing.T) {
	var calls atomic.Int32
	clients := clientsFor(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, timeoutErr{}
	})

	cfg := testConfig()
	cfg.MaxRetries = 0
	sleeps := &sleepRecorder{}
	_, err := NewExecutor(cfg, clients, WithSleep(sleeps.sleep)).Fetch(context.Background(), Request{URL: "https://a.example/"})

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, sleeps.waits)
}

func TestFetchNetworkErrorKind(t *testing.T) {
	clients := clientsFor(func(*http.Request) (*http.Response, error) {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	})

	e := NewExecutor(testConfig(), clients, WithSleep((&sleepRecorder{}).sleep))
	_, err := e.Fetch(context.Background(), Request{URL: "https://a.example/"})

	assert.Equal(t, KindNetwork, KindOf(err))
}

func TestFetchReportsProxyFailureBeforeBackoff(t *testing.T) {
	var calls atomic.Int32
	clients := clientsFor(func(r *http.Request) (*http.Response, error) {
		if calls.Add(1) == 1 {
			return nil, &net.OpError{Op: "proxyconnect", Net: "tcp", Err: errors.New("refused")}
		}
		return okResponse(r, http.StatusOK, "ok"), nil
	})

	rep := &recordingReporter{}
	sleeps := &sleepRecorder{}
	sleeps.hook = func() {
		assert.Equal(t, 1, rep.failureCount(), "failure must be reported before the backoff sleep")
	}

	e := NewExecutor(testConfig(), clients, WithReporter(rep), WithSleep(sleeps.sleep), WithJitter(fixedJitter))
	proxy := &proxypool.Record{ID: "proxy-1", Endpoint: "http://10.0.0.1:8080"}

	resp, err := e.Fetch(context.Background(), Request{URL: "https://a.example/", Proxy: proxy})
	require.NoError(t, err)

	assert.Equal(t, 2, resp.Attempts)
	assert.Equal(t, []string{"proxy-1"}, rep.failures)
	assert.Equal(t, []string{"proxy-1"}, rep.successes)
}

func TestFetchLatencyIsPerAttempt(t *testing.T) {
	var calls atomic.Int32
	clients := clientsFor(func(r *http.Request) (*http.Response, error) {
		if calls.Add(1) == 1 {
			time.Sleep(150 * time.Millisecond)
			return nil, timeoutErr{}
		}
		return okResponse(r, http.StatusOK, "ok"), nil
	})

	e := NewExecutor(testConfig(), clients, WithSleep((&sleepRecorder{}).sleep))
	resp, err := e.Fetch(context.Background(), Request{URL: "https://a.example/"})
	require.NoError(t, err)

	assert.Less(t, resp.Latency, 150*time.Millisecond)
}

func TestFetchCanceledIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	clients := clientsFor(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, r.Context().Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep := &recordingReporter{}
	e := NewExecutor(testConfig(), clients, WithReporter(rep), WithSleep((&sleepRecorder{}).sleep))
	_, err := e.Fetch(ctx, Request{URL: "https://a.example/", Proxy: &proxypool.Record{ID: "proxy-1"}})

	assert.Equal(t, KindCanceled, KindOf(err))
	assert.LessOrEqual(t, calls.Load(), int32(1))
	assert.Empty(t, rep.failures, "caller cancellation is not the proxy's fault")
}

func TestFetchCanceledDuringBackoff(t *testing.T) {
	clients := clientsFor(func(*http.Request) (*http.Response, error) {
		return nil, timeoutErr{}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig()
	cfg.BackoffBase = time.Hour
	e := NewExecutor(cfg, clients)

	done := make(chan error, 1)
	go func() {
		_, err := e.Fetch(ctx, Request{URL: "https://a.example/"})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.Equal(t, KindCanceled, KindOf(err))
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch did not stop sleeping on cancellation")
	}
}

func TestFetchInvalidURLIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	clients := clientsFor(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, errors.New("unreachable")
	})

	e := NewExecutor(testConfig(), clients)
	for _, u := range []string{"", "not a url", "://missing-scheme"} {
		_, err := e.Fetch(context.Background(), Request{URL: u})

		var fe *FetchError
		require.ErrorAs(t, err, &fe, u)
		assert.Equal(t, KindOther, fe.Kind, u)
		assert.Zero(t, fe.Attempts, u)
	}
	assert.Zero(t, calls.Load())
}

func TestFetchClientErrorReportsProxy(t *testing.T) {
	rep := &recordingReporter{}
	e := NewExecutor(testConfig(), staticClients{err: errors.New("bad proxy")}, WithReporter(rep))

	_, err := e.Fetch(context.Background(), Request{URL: "https://a.example/", Proxy: &proxypool.Record{ID: "proxy-9"}})

	assert.Equal(t, KindOther, KindOf(err))
	assert.Equal(t, []string{"proxy-9"}, rep.failures)
}

func TestFetchBodyIsCapped(t *testing.T) {
	clients := clientsFor(func(r *http.Request) (*http.Response, error) {
		return okResponse(r, http.StatusOK, strings.Repeat("x", 100)), nil
	})

	cfg := testConfig()
	cfg.MaxBodyBytes = 10
	resp, err := NewExecutor(cfg, clients).Fetch(context.Background(), Request{URL: "https://a.example/"})
	require.NoError(t, err)

	assert.Len(t, resp.Body, 10)
}

func TestBackoffSchedule(t *testing.T) {
	e := NewExecutor(testConfig(), staticClients{}, WithJitter(func(max time.Duration) time.Duration {
		assert.Equal(t, 250*time.Millisecond, max)
		return 0
	}))

	assert.Equal(t, 500*time.Millisecond, e.backoff(0))
	assert.Equal(t, time.Second, e.backoff(1))
	assert.Equal(t, 2*time.Second, e.backoff(2))
}

func TestUniformJitterBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		j := uniformJitter(250 * time.Millisecond)
		assert.GreaterOrEqual(t, j, time.Duration(0))
		assert.Less(t, j, 250*time.Millisecond)
	}
}
