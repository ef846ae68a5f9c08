package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/pkg/cache"
	applogger "FinCast/pkg/logger"
)

type countingMarket struct {
	history  atomic.Int32
	profiles atomic.Int32
	release  chan struct{}
	err      error
}

func (m *countingMarket) History(ctx context.Context, symbol string, _ domrepo.Period) (models.PriceSeries, error) {
	m.history.Add(1)
	if m.release != nil {
		<-m.release
	}
	if err := ctx.Err(); err != nil {
		return models.PriceSeries{}, err
	}
	if m.err != nil {
		return models.PriceSeries{}, m.err
	}
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return models.NewPriceSeries(symbol, []models.Bar{
		{Date: day, Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1000},
		{Date: day.AddDate(0, 0, 1), Open: 10.5, High: 12, Low: 10, Close: 11.75, Volume: 1200},
	})
}

func (m *countingMarket) Profile(_ context.Context, symbol string) (models.CompanyProfile, error) {
	m.profiles.Add(1)
	return models.CompanyProfile{Symbol: symbol, Name: null.StringFrom("Acme"), MarketCap: null.FloatFrom(2e9)}, nil
}

type cacheHits struct {
	mu   sync.Mutex
	hits map[string]int
	miss map[string]int
}

func (c *cacheHits) RecordForecast(string, string)      {}
func (c *cacheHits) RecordStageLatency(string, float64) {}
func (c *cacheHits) RecordTrainingLoss(string, float64) {}
func (c *cacheHits) RecordFetch(string, float64, error) {}
func (c *cacheHits) RecordError(string)                 {}
func (c *cacheHits) RecordCache(kind string, hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.hits[kind]++
	} else {
		c.miss[kind]++
	}
}

func newCachedMarket(t *testing.T, next domrepo.MarketData) (*CachedMarketData, *cache.MemoryCache, *cacheHits) {
	t.Helper()
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	m := &cacheHits{hits: map[string]int{}, miss: map[string]int{}}
	return NewCachedMarketData(next, mc, time.Hour, time.Hour, applogger.NewNop(), m), mc, m
}

func TestCachedMarketDataHistoryReadThrough(t *testing.T) {
	up := &countingMarket{}
	c, _, m := newCachedMarket(t, up)
	ctx := t.Context()

	first, err := c.History(ctx, "aapl", domrepo.Period1mo)
	require.NoError(t, err)
	second, err := c.History(ctx, "AAPL", domrepo.Period1mo)
	require.NoError(t, err)

	assert.Equal(t, int32(1), up.history.Load())
	assert.Equal(t, first.Bars(), second.Bars())
	assert.Equal(t, 1, m.hits["history"])
	assert.Equal(t, 1, m.miss["history"])

	_, err = c.History(ctx, "AAPL", domrepo.Period1y)
	require.NoError(t, err)
	assert.Equal(t, int32(2), up.history.Load(), "periods are cached separately")
}

func TestCachedMarketDataProfile(t *testing.T) {
	up := &countingMarket{}
	c, _, _ := newCachedMarket(t, up)

	for range 3 {
		p, err := c.Profile(t.Context(), "MSFT")
		require.NoError(t, err)
		assert.Equal(t, "Acme", p.Name.String)
		assert.False(t, p.PERatio.Valid)
	}
	assert.Equal(t, int32(1), up.profiles.Load())
}

func TestCachedMarketDataErrorsAreNotCached(t *testing.T) {
	up := &countingMarket{err: errors.New("upstream down")}
	c, mc, _ := newCachedMarket(t, up)

	_, err := c.History(t.Context(), "AAPL", domrepo.Period1mo)
	require.Error(t, err)
	assert.Equal(t, 0, mc.Len())

	up.err = nil
	_, err = c.History(t.Context(), "AAPL", domrepo.Period1mo)
	require.NoError(t, err)
	assert.Equal(t, int32(2), up.history.Load())
}

func TestCachedMarketDataSharesConcurrentMisses(t *testing.T) {
	up := &countingMarket{release: make(chan struct{})}
	c, _, _ := newCachedMarket(t, up)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.History(context.Background(), "AAPL", domrepo.Period1mo)
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(up.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), up.history.Load())
}

func TestCachedMarketDataSharedFetchOutlivesCancelledCaller(t *testing.T) {
	up := &countingMarket{release: make(chan struct{})}
	c, _, _ := newCachedMarket(t, up)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.History(firstCtx, "AAPL", domrepo.Period1mo)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return up.history.Load() == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		s   models.PriceSeries
		err error
	}
	second := make(chan result, 1)
	go func() {
		s, err := c.History(context.Background(), "AAPL", domrepo.Period1mo)
		second <- result{s, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(up.release)
	r := <-second
	require.NoError(t, r.err)
	assert.Equal(t, 2, r.s.Len())
	assert.Equal(t, int32(1), up.history.Load())
}

func TestCachedMarketDataInvalidate(t *testing.T) {
	up := &countingMarket{}
	c, mc, _ := newCachedMarket(t, up)
	ctx := t.Context()

	_, err := c.History(ctx, "AAPL", domrepo.Period1mo)
	require.NoError(t, err)
	_, err = c.Profile(ctx, "AAPL")
	require.NoError(t, err)
	_, err = c.History(ctx, "AAPLX", domrepo.Period1mo)
	require.NoError(t, err)
	require.Equal(t, 3, mc.Len())

	require.NoError(t, c.Invalidate(ctx, "aapl"))
	assert.Equal(t, 1, mc.Len(), "other symbols sharing the prefix survive")

	_, err = c.History(ctx, "AAPL", domrepo.Period1mo)
	require.NoError(t, err)
	assert.Equal(t, int32(3), up.history.Load())
}
