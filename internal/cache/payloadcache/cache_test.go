package payloadcache

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/civic-choropleth/internal/cache/redisstore"
	"github.com/mohammed-shakir/civic-choropleth/internal/core/observability"
)

func newRedis(t *testing.T) (*redisstore.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rc, err := redisstore.New(context.Background(), mr.Addr(), "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestCache_LocalOnly(t *testing.T) {
	clk := clockwork.NewFakeClock()
	c, err := New(2, nil, time.Minute, WithClock(clk))
	require.NoError(t, err)
	ctx := context.Background()

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)

	c.Put(ctx, "a", []byte("1"))
	v, ok := c.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, "1", string(v))

	clk.Advance(2 * time.Minute)
	_, ok = c.Get(ctx, "a")
	assert.False(t, ok, "expired entries miss")
	assert.Equal(t, 0, c.Len())
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, err := New(2, nil, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	c.Put(ctx, "a", []byte("1"))
	c.Put(ctx, "b", []byte("2"))
	_, _ = c.Get(ctx, "a")
	c.Put(ctx, "c", []byte("3"))

	_, ok := c.Get(ctx, "b")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "a")
	assert.True(t, ok)
}

func TestCache_SharedTierPromotesToLocal(t *testing.T) {
	rc, mr := newRedis(t)
	ctx := context.Background()

	writer, err := New(4, rc, time.Minute)
	require.NoError(t, err)
	writer.Put(ctx, "metric:x", []byte(`{"06":{}}`))
	assert.True(t, mr.Exists("test:metric:x"))

	// a second process sees the payload through redis
	reader, err := New(4, rc, time.Minute)
	require.NoError(t, err)
	v, ok := reader.Get(ctx, "metric:x")
	require.True(t, ok)
	assert.Equal(t, `{"06":{}}`, string(v))
	assert.Equal(t, 1, reader.Len())

	mr.FastForward(2 * time.Minute)
	_, ok = freshCache(t, rc).Get(ctx, "metric:x")
	assert.False(t, ok, "redis ttl applies")
}

func freshCache(t *testing.T, s Store) *Cache {
	t.Helper()
	c, err := New(4, s, time.Minute)
	require.NoError(t, err)
	return c
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("down")
}

func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("down")
}

func (failingStore) Del(context.Context, ...string) error {
	return errors.New("down")
}

func TestCache_SharedTierErrorsDegradeToMiss(t *testing.T) {
	c, err := New(4, failingStore{}, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	c.Put(ctx, "k", []byte("v"))
	v, ok := c.Get(ctx, "k")
	require.True(t, ok, "local tier still serves")
	assert.Equal(t, "v", string(v))
}

func TestCache_InvalidateDropsBothTiers(t *testing.T) {
	rc, mr := newRedis(t)
	ctx := context.Background()

	c, err := New(4, rc, time.Minute)
	require.NoError(t, err)
	c.Put(ctx, "metric:bad", []byte("not json"))
	require.True(t, mr.Exists("test:metric:bad"))

	c.Invalidate(ctx, "metric:bad")
	assert.Equal(t, 0, c.Len())
	assert.False(t, mr.Exists("test:metric:bad"))
	_, ok := c.Get(ctx, "metric:bad")
	assert.False(t, ok)

	// a failing shared tier still clears the local entry
	f, err := New(4, failingStore{}, time.Minute)
	require.NoError(t, err)
	f.Put(ctx, "k", []byte("v"))
	f.Invalidate(ctx, "k")
	assert.Equal(t, 0, f.Len())
}

func cacheResult(t *testing.T, reg *prometheus.Registry, tier, outcome string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "cache_results_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["tier"] == tier && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestCache_CountsSharedTierResults(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, observability.Init(reg))
	rc, _ := newRedis(t)
	ctx := context.Background()

	hits := cacheResult(t, reg, "remote", "hit")
	misses := cacheResult(t, reg, "remote", "miss")

	writer, err := New(4, rc, time.Minute)
	require.NoError(t, err)
	writer.Put(ctx, "metric:y", []byte("{}"))

	reader, err := New(4, rc, time.Minute)
	require.NoError(t, err)
	_, ok := reader.Get(ctx, "metric:y")
	require.True(t, ok)
	_, ok = reader.Get(ctx, "metric:y")
	require.True(t, ok, "second read is served locally")
	_, ok = reader.Get(ctx, "metric:absent")
	require.False(t, ok)

	broken, err := New(4, failingStore{}, time.Minute)
	require.NoError(t, err)
	_, _ = broken.Get(ctx, "k")

	assert.Equal(t, 1.0, cacheResult(t, reg, "remote", "hit")-hits)
	assert.Equal(t, 2.0, cacheResult(t, reg, "remote", "miss")-misses, "absent key and store error both miss")
}
