package proxylist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	store "github.com/MrSnakeDoc/sleuth/internal/store/redis"
)

type countingSource struct {
	calls     int
	endpoints []string
	err       error
}

func (s *countingSource) Fetch(context.Context) ([]string, error) {
	s.calls++
	return s.endpoints, s.err
}

type brokenStore struct{}

func (brokenStore) GetCandidates(context.Context, string) ([]string, error) {
	return nil, errors.New("redis down")
}

func (brokenStore) SaveCandidates(context.Context, string, []string, time.Duration) error {
	return errors.New("redis down")
}

func (brokenStore) DeleteCandidates(context.Context, string) error {
	return errors.New("redis down")
}

func newMiniStore(t *testing.T) (*store.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return store.NewStore(client), mr
}

func TestCachedMissThenHit(t *testing.T) {
	s, _ := newMiniStore(t)
	up := &countingSource{endpoints: []string{"http://1.1.1.1:80"}}
	c := NewCached(up, s, "proxynova", time.Minute, nil)

	first, err := c.Fetch(context.Background())
	require.NoError(t, err)
	second, err := c.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, up.calls, "second fetch must be served from the cache")
}

func TestCachedExpiry(t *testing.T) {
	s, mr := newMiniStore(t)
	up := &countingSource{endpoints: []string{"http://1.1.1.1:80"}}
	c := NewCached(up, s, "proxynova", time.Minute, nil)

	_, err := c.Fetch(context.Background())
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	_, err = c.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, up.calls)
}

func TestCachedDoesNotStoreEmpty(t *testing.T) {
	s, mr := newMiniStore(t)
	up := &countingSource{}
	c := NewCached(up, s, "proxynova", time.Minute, nil)

	got, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.False(t, mr.Exists(store.CandidatesKey("proxynova")))
}

func TestCachedUpstreamError(t *testing.T) {
	s, _ := newMiniStore(t)
	up := &countingSource{err: errors.New("boom")}

	_, err := NewCached(up, s, "proxynova", time.Minute, nil).Fetch(context.Background())
	assert.Error(t, err)
}

func TestCachedDegradesWhenStoreFails(t *testing.T) {
	up := &countingSource{endpoints: []string{"http://1.1.1.1:80"}}

	got, err := NewCached(up, brokenStore{}, "proxynova", time.Minute, nil).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"http://1.1.1.1:80"}, got)
	assert.Equal(t, 1, up.calls)
}

func TestCachedInvalidate(t *testing.T) {
	s, _ := newMiniStore(t)
	up := &countingSource{endpoints: []string{"http://1.1.1.1:80"}}
	c := NewCached(up, s, "proxynova", time.Minute, nil)

	_, err := c.Fetch(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(context.Background()))
	_, err = c.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, up.calls)
}
