package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Symbol string    `json:"symbol"`
	Closes []float64 `json:"closes"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	in := payload{Symbol: "AAPL", Closes: []float64{1.5, 2.25}}
	require.NoError(t, mc.Set(ctx, "k", in, time.Minute))

	var out payload
	require.NoError(t, mc.Get(ctx, "k", &out))
	assert.Equal(t, in, out)

	var s string
	require.NoError(t, mc.Set(ctx, "s", "plain", 0))
	require.NoError(t, mc.Get(ctx, "s", &s))
	assert.Equal(t, "plain", s)
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }

	require.NoError(t, mc.Set(ctx, "k", 1, time.Second))
	ok, _ := mc.Exists(ctx, "k")
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	var v int
	assert.ErrorIs(t, mc.Get(ctx, "k", &v), ErrCacheMiss)
	assert.Equal(t, 0, mc.Len())
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { now = now.Add(time.Millisecond); return now }

	require.NoError(t, mc.Set(ctx, "a", 1, 0))
	require.NoError(t, mc.Set(ctx, "b", 2, 0))
	var v int
	require.NoError(t, mc.Get(ctx, "a", &v))
	require.NoError(t, mc.Set(ctx, "c", 3, 0))

	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "a", &v))
	assert.NoError(t, mc.Get(ctx, "c", &v))
}

func TestMemoryCacheDeleteByPattern(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	for _, k := range []string{"history:AAPL:1mo", "history:AAPL:1y", "profile:AAPL"} {
		require.NoError(t, mc.Set(ctx, k, 1, 0))
	}
	require.NoError(t, mc.DeleteByPattern(ctx, BuildPattern("history:AAPL")))
	assert.Equal(t, 1, mc.Len())
	ok, _ := mc.Exists(ctx, "profile:AAPL")
	assert.True(t, ok)
}

func TestLayeredCachePromotesFromL2(t *testing.T) {
	l2 := NewMemoryCache()
	lc := NewLayeredCache(l2, WithLayeredMemoryTTL(time.Minute))
	defer lc.Close()
	ctx := context.Background()

	in := payload{Symbol: "MSFT", Closes: []float64{3}}
	require.NoError(t, l2.Set(ctx, "k", in, time.Hour))

	var out payload
	require.NoError(t, lc.Get(ctx, "k", &out))
	assert.Equal(t, in, out)

	// served from L1 after the L2 copy is gone
	require.NoError(t, l2.Delete(ctx, "k"))
	out = payload{}
	require.NoError(t, lc.Get(ctx, "k", &out))
	assert.Equal(t, in, out)

	require.NoError(t, lc.Delete(ctx, "k"))
	assert.ErrorIs(t, lc.Get(ctx, "k", &out), ErrCacheMiss)
}

func TestLayeredCacheWriteThrough(t *testing.T) {
	l2 := NewMemoryCache()
	lc := NewLayeredCache(l2)
	defer lc.Close()
	ctx := context.Background()

	require.NoError(t, lc.Set(ctx, "k", payload{Symbol: "X"}, time.Hour))
	var out payload
	require.NoError(t, l2.Get(ctx, "k", &out))
	assert.Equal(t, "X", out.Symbol)
}

func TestGenerateKeyWithParams(t *testing.T) {
	assert.Equal(t, "history:AAPL:1mo", GenerateKeyWithParams("history", "AAPL", "1mo"))
}

func TestMemoryCacheSweepDropsExpired(t *testing.T) {
	mc := NewMemoryCache(WithMemoryCleanup(time.Hour))
	defer mc.Close()
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }

	require.NoError(t, mc.Set(ctx, "short", 1, time.Second))
	require.NoError(t, mc.Set(ctx, "long", 2, time.Hour))
	now = now.Add(time.Minute)
	mc.dropExpired()

	assert.Equal(t, 1, mc.Len())
	ok, _ := mc.Exists(ctx, "long")
	assert.True(t, ok)
}

func TestMemoryCacheOverwriteKeepsSize(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", 1, 0))
	require.NoError(t, mc.Set(ctx, "b", 2, 0))
	require.NoError(t, mc.Set(ctx, "a", 3, 0))
	assert.Equal(t, 2, mc.Len())

	var v int
	require.NoError(t, mc.Get(ctx, "a", &v))
	assert.Equal(t, 3, v)
	require.NoError(t, mc.Get(ctx, "b", &v))
}
