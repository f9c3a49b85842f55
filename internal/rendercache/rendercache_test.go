package rendercache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/alphabot-ai/threadcache/internal/placeholder"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRender() *CachedRender {
	return &CachedRender{
		Output: `<div class="{{ph:voteState:a}}"></div>`,
		Declarations: []placeholder.Declaration{
			{Name: placeholder.VoteState, ItemID: "a", Fallback: "unvoted"},
		},
	}
}

func TestMemoryCacheHitAndMiss(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Put(ctx, "k", sampleRender(), time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, sampleRender().Output, got.Output)
	assert.Equal(t, "k", got.Key)
	assert.Equal(t, time.Minute, got.TTL)
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Put(ctx, "k", sampleRender(), 30*time.Second))

	now = now.Add(30 * time.Second)
	_, err := c.Get(ctx, "k")
	assert.NoError(t, err, "entry is live up to its TTL")

	now = now.Add(time.Nanosecond)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	c.Cleanup()
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCachePutDoesNotAliasCaller(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	r := sampleRender()

	require.NoError(t, c.Put(ctx, "k", r, time.Minute))
	r.Output = "changed"

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.NotEqual(t, "changed", got.Output)
}

func TestMemoryCacheConcurrentPutsLastWriterWins(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Put(ctx, "k", sampleRender(), time.Minute))
			_, err := c.Get(ctx, "k")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCacheStartCleanupStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := NewMemoryCache()
	c.Put(ctx, "k", sampleRender(), time.Millisecond)

	c.StartCleanup(ctx, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
}

func setupRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := NewRedisClient(mr.Addr(), "")
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, time.Second), mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedis(t)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Put(ctx, "k", sampleRender(), 30*time.Second))
	assert.True(t, mr.Exists("render:k"))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, sampleRender().Output, got.Output)
	assert.Equal(t, sampleRender().Declarations, got.Declarations)
	assert.Equal(t, 30*time.Second, got.TTL)
}

func TestRedisCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedis(t)

	require.NoError(t, c.Put(ctx, "k", sampleRender(), 30*time.Second))
	mr.FastForward(31 * time.Second)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCacheUnavailableBackend(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedis(t)
	mr.Close()

	_, err := c.Get(ctx, "k")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCacheMiss))
}

func TestRedisCacheTimeoutMapsToBackendTimeout(t *testing.T) {
	c, _ := setupRedis(t)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrBackendTimeout)
}

func TestInstrumentedCountsResults(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	c, err := NewInstrumented(NewMemoryCache(), reg)
	require.NoError(t, err)

	c.Get(ctx, "k")
	c.Put(ctx, "k", sampleRender(), time.Minute)
	c.Get(ctx, "k")
	c.Get(ctx, "k")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("miss")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.requests.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("put")))

	_, err = NewInstrumented(NewMemoryCache(), reg)
	assert.Error(t, err, "registering twice must fail")
}
