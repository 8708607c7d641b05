package proxypool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/sleuth/internal/metrics"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type sourceFunc func(ctx context.Context) ([]string, error)

func (f sourceFunc) Fetch(ctx context.Context) ([]string, error) { return f(ctx) }

func newTestPool(t *testing.T, cfg Config, opts ...Option) (*Pool, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return New(cfg, opts...), clock
}

func TestSeedIDsAndSchemes(t *testing.T) {
	p, _ := newTestPool(t, Config{Endpoints: []string{"10.0.0.1:8080", " ", "socks5://10.0.0.2:1080"}})

	snap := p.Snapshot()
	require.Len(t, snap.Proxies, 2)
	assert.Equal(t, "proxy-1", snap.Proxies[0].ID)
	assert.Equal(t, "http://10.0.0.1:8080", snap.Proxies[0].Endpoint)
	assert.Equal(t, "proxy-2", snap.Proxies[1].ID)
	assert.Equal(t, "socks5://10.0.0.2:1080", snap.Proxies[1].Endpoint)
}

func TestSelectDisabledOrEmpty(t *testing.T) {
	disabled, _ := newTestPool(t, Config{Enabled: false, Endpoints: []string{"http://a:1"}})
	_, ok := disabled.Select()
	assert.False(t, ok, "disabled pool must not return a proxy")

	empty, _ := newTestPool(t, Config{Enabled: true})
	_, ok = empty.Select()
	assert.False(t, ok, "empty pool must not return a proxy")
}

func TestSelectRoundRobin(t *testing.T) {
	p, _ := newTestPool(t, Config{
		Enabled:   true,
		Rotation:  RotationRoundRobin,
		Cooldown:  120 * time.Second,
		Endpoints: []string{"http://p1:1", "http://p2:1", "http://p3:1"},
	})

	var got []string
	for i := 0; i < 4; i++ {
		r, ok := p.Select()
		require.True(t, ok)
		got = append(got, r.Endpoint)
	}
	assert.Equal(t, []string{"http://p1:1", "http://p2:1", "http://p3:1", "http://p1:1"}, got)
}

func TestSelectSkipsCoolingDown(t *testing.T) {
	p, clock := newTestPool(t, Config{
		Enabled:   true,
		Cooldown:  120 * time.Second,
		Endpoints: []string{"http://p1:1", "http://p2:1"},
	})

	p.ReportFailure("proxy-1")
	clock.Advance(time.Second)

	for i := 0; i < 3; i++ {
		r, ok := p.Select()
		require.True(t, ok)
		assert.Equal(t, "proxy-2", r.ID)
	}
}

func TestSelectAllCoolingDownReturnsNone(t *testing.T) {
	p, clock := newTestPool(t, Config{
		Enabled:   true,
		Cooldown:  120 * time.Second,
		Endpoints: []string{"http://p1:1"},
	})

	p.ReportFailure("proxy-1")
	clock.Advance(time.Second)

	_, ok := p.Select()
	assert.False(t, ok)
}

func TestSelectResetsLapsedCooldown(t *testing.T) {
	p, clock := newTestPool(t, Config{
		Enabled:   true,
		Cooldown:  120 * time.Second,
		Endpoints: []string{"http://p1:1"},
	})

	p.ReportFailure("proxy-1")
	clock.Advance(120 * time.Second)

	r, ok := p.Select()
	require.True(t, ok)
	assert.True(t, r.LastFailure.IsZero(), "lapsed cooldown must clear the failure timestamp")
	assert.Equal(t, uint64(1), r.Failures)
	assert.Nil(t, p.Snapshot().Proxies[0].LastFailure)
}

func TestSelectRandomHealthy(t *testing.T) {
	var calls []int
	p, _ := newTestPool(t, Config{
		Enabled:   true,
		Rotation:  RotationRandomHealthy,
		Cooldown:  time.Minute,
		Endpoints: []string{"http://p1:1", "http://p2:1", "http://p3:1"},
	}, WithRand(func(n int) int {
		calls = append(calls, n)
		return n - 1
	}))

	p.ReportFailure("proxy-3")

	r, ok := p.Select()
	require.True(t, ok)
	assert.Equal(t, "proxy-2", r.ID)
	assert.Equal(t, []int{2}, calls, "random pick must be drawn from the healthy subset only")
}

func TestSelectReturnsCopy(t *testing.T) {
	p, _ := newTestPool(t, Config{Enabled: true, Endpoints: []string{"http://p1:1"}})

	r, ok := p.Select()
	require.True(t, ok)
	r.Failures = 99
	r.Endpoint = "mutated"

	snap := p.Snapshot()
	assert.Equal(t, uint64(0), snap.Proxies[0].Failures)
	assert.Equal(t, "http://p1:1", snap.Proxies[0].Endpoint)
}

func TestReportUnknownIDIsNoop(t *testing.T) {
	p, _ := newTestPool(t, Config{Enabled: true, Endpoints: []string{"http://p1:1"}})

	before := p.Snapshot()
	p.ReportFailure("proxy-404")
	p.ReportSuccess("proxy-404")
	assert.Equal(t, before, p.Snapshot())
}

func TestReportCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, clock := newTestPool(t, Config{Enabled: true, Cooldown: time.Minute, Endpoints: []string{"http://p1:1"}},
		WithMetrics(metrics.New(reg)))

	p.ReportSuccess("proxy-1")
	p.ReportSuccess("proxy-1")
	p.ReportFailure("proxy-1")

	snap := p.Snapshot()
	assert.Equal(t, uint64(2), snap.Proxies[0].Successes)
	assert.Equal(t, uint64(1), snap.Proxies[0].Failures)
	require.NotNil(t, snap.Proxies[0].LastFailure)
	assert.Equal(t, clock.Now(), *snap.Proxies[0].LastFailure)
	assert.False(t, snap.Proxies[0].Healthy)
}

func TestSnapshotDoesNotMutate(t *testing.T) {
	p, clock := newTestPool(t, Config{Enabled: true, Cooldown: time.Minute, Endpoints: []string{"http://p1:1"}})

	p.ReportFailure("proxy-1")
	clock.Advance(2 * time.Minute)

	snap := p.Snapshot()
	assert.True(t, snap.Proxies[0].Healthy)
	require.NotNil(t, snap.Proxies[0].LastFailure, "snapshot must not reset the failure timestamp")
	assert.Equal(t, 60.0, snap.CooldownSeconds)
	assert.Equal(t, RotationRoundRobin, snap.Rotation)
}

func TestConcurrentSelectSpreadsEvenly(t *testing.T) {
	p, _ := newTestPool(t, Config{
		Enabled:   true,
		Endpoints: []string{"http://p1:1", "http://p2:1", "http://p3:1", "http://p4:1"},
	})

	var mu sync.Mutex
	counts := map[string]int{}
	var wg sync.WaitGroup
	for i := 0; i < 400; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, ok := p.Select()
			if !ok {
				return
			}
			mu.Lock()
			counts[r.ID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, id := range []string{"proxy-1", "proxy-2", "proxy-3", "proxy-4"} {
		assert.Equal(t, 100, counts[id], "round robin under contention must not reuse cursor slots (%s)", id)
	}
}

func TestSetEnabled(t *testing.T) {
	empty, _ := newTestPool(t, Config{})
	assert.False(t, empty.SetEnabled(true), "enabling an empty pool has no effect")
	assert.False(t, empty.Enabled())

	p, _ := newTestPool(t, Config{Endpoints: []string{"http://p1:1"}})
	assert.True(t, p.SetEnabled(true))
	assert.False(t, p.SetEnabled(false))
}

func TestEnsurePopulated(t *testing.T) {
	var calls atomic.Int32
	src := sourceFunc(func(context.Context) ([]string, error) {
		calls.Add(1)
		return []string{"http://1.2.3.4:80", "http://5.6.7.8:3128"}, nil
	})

	p, _ := newTestPool(t, Config{AutoFetch: true}, WithSource(src))

	n, err := p.EnsurePopulated(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = p.EnsurePopulated(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int32(1), calls.Load(), "a populated pool is never refreshed")

	snap := p.Snapshot()
	assert.Equal(t, "proxy-1", snap.Proxies[0].ID)
	assert.Equal(t, "proxy-2", snap.Proxies[1].ID)
}

func TestEnsurePopulatedAutoFetchOff(t *testing.T) {
	src := sourceFunc(func(context.Context) ([]string, error) {
		t.Fatal("source must not be called when auto-fetch is off")
		return nil, nil
	})

	p, _ := newTestPool(t, Config{AutoFetch: false}, WithSource(src))

	n, err := p.EnsurePopulated(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEnsurePopulatedSourceFailure(t *testing.T) {
	src := sourceFunc(func(context.Context) ([]string, error) {
		return nil, errors.New("connection refused")
	})

	p, _ := newTestPool(t, Config{AutoFetch: true}, WithSource(src))

	_, err := p.EnsurePopulated(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProxySource)
	assert.Zero(t, p.Size())
}

func TestEnsurePopulatedDoesNotBlockSelect(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	src := sourceFunc(func(context.Context) ([]string, error) {
		close(started)
		<-release
		return []string{"http://9.9.9.9:80"}, nil
	})

	p, _ := newTestPool(t, Config{Enabled: true, AutoFetch: true}, WithSource(src))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = p.EnsurePopulated(context.Background())
	}()
	<-started

	selected := make(chan struct{})
	go func() {
		_, _ = p.Select()
		close(selected)
	}()

	select {
	case <-selected:
	case <-time.After(time.Second):
		t.Fatal("Select blocked while the source was fetching")
	}

	close(release)
	<-done
	assert.Equal(t, 1, p.Size())
}

func TestPrune(t *testing.T) {
	p, _ := newTestPool(t, Config{Enabled: true, Endpoints: []string{"http://p1:1", "http://p2:1", "http://p3:1"}})

	for i := 0; i < 3; i++ {
		p.ReportFailure("proxy-1")
		p.ReportFailure("proxy-2")
	}
	p.ReportSuccess("proxy-2")

	removed := p.Prune(3)
	assert.Equal(t, []string{"proxy-1"}, removed)
	assert.Equal(t, 2, p.Size())

	assert.Nil(t, p.Prune(0))
}

func TestLateReportAfterPruneAndRefill(t *testing.T) {
	endpoints := []string{"http://1.1.1.1:80"}
	src := sourceFunc(func(context.Context) ([]string, error) { return endpoints, nil })
	p, _ := newTestPool(t, Config{Enabled: true, AutoFetch: true, Endpoints: endpoints}, WithSource(src))

	old, ok := p.Select()
	require.True(t, ok)
	p.ReportFailure(old.ID)
	require.Equal(t, []string{old.ID}, p.Prune(1))

	endpoints = []string{"http://9.9.9.9:80"}
	n, err := p.EnsurePopulated(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// A fetch still in flight on the removed proxy reports late.
	p.ReportFailure(old.ID)

	snap := p.Snapshot()
	require.Len(t, snap.Proxies, 1)
	fresh := snap.Proxies[0]
	assert.Equal(t, "http://9.9.9.9:80", fresh.Endpoint)
	assert.NotEqual(t, old.ID, fresh.ID)
	assert.True(t, fresh.Healthy)
	assert.Zero(t, fresh.Failures)
}

func TestParseRotation(t *testing.T) {
	r, err := ParseRotation("")
	require.NoError(t, err)
	assert.Equal(t, RotationRoundRobin, r)

	r, err = ParseRotation("Random_Healthy")
	require.NoError(t, err)
	assert.Equal(t, RotationRandomHealthy, r)

	_, err = ParseRotation("sticky")
	assert.Error(t, err)
}
