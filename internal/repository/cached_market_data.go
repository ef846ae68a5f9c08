package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/guregu/null/v6"
	"golang.org/x/sync/singleflight"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/pkg/cache"
	applogger "FinCast/pkg/logger"
	"FinCast/pkg/util"
)

// sharedFetchTimeout bounds an upstream call that no caller can cancel.
const sharedFetchTimeout = 60 * time.Second

// CachedMarketData decorates a MarketData provider with a read-through cache.
// Concurrent misses for the same key share one upstream call.
type CachedMarketData struct {
	next       domrepo.MarketData
	cache      cache.Service
	historyTTL time.Duration
	profileTTL time.Duration
	l          *applogger.Logger
	metrics    domrepo.Metrics
	group      singleflight.Group
}

var _ domrepo.MarketData = (*CachedMarketData)(nil)

func NewCachedMarketData(next domrepo.MarketData, c cache.Service, historyTTL, profileTTL time.Duration, l *applogger.Logger, m domrepo.Metrics) *CachedMarketData {
	return &CachedMarketData{
		next:       next,
		cache:      c,
		historyTTL: historyTTL,
		profileTTL: profileTTL,
		l:          l,
		metrics:    m,
	}
}

type barDTO struct {
	Date   string  `json:"d"`
	Open   float64 `json:"o"`
	High   float64 `json:"h"`
	Low    float64 `json:"l"`
	Close  float64 `json:"c"`
	Volume float64 `json:"v"`
}

type historyDTO struct {
	Symbol string   `json:"symbol"`
	Bars   []barDTO `json:"bars"`
}

// profileDTO mirrors models.CompanyProfile field for field so the two convert
// directly.
type profileDTO struct {
	Symbol       string      `json:"symbol"`
	Name         null.String `json:"name"`
	Currency     null.String `json:"currency"`
	CurrentPrice null.Float  `json:"current_price"`
	MarketCap    null.Float  `json:"market_cap"`
	PERatio      null.Float  `json:"pe_ratio"`
	WeekHigh52   null.Float  `json:"week_high_52"`
	WeekLow52    null.Float  `json:"week_low_52"`
}

func historyKey(symbol string, period domrepo.Period) string {
	return cache.GenerateKeyWithParams("history", strings.ToUpper(symbol), period)
}

func profileKey(symbol string) string {
	return cache.GenerateKeyWithParams("profile", strings.ToUpper(symbol))
}

func (c *CachedMarketData) History(ctx context.Context, symbol string, period domrepo.Period) (models.PriceSeries, error) {
	key := historyKey(symbol, period)

	var dto historyDTO
	if c.lookup(ctx, "history", key, &dto) {
		s, err := dto.series()
		if err == nil {
			return s, nil
		}
		c.l.Warn("cached history unusable", applogger.String("key", key), applogger.Error(err))
	}

	v, err := c.shared(ctx, key, func(fctx context.Context) (interface{}, error) {
		s, err := c.next.History(fctx, symbol, period)
		if err != nil {
			return models.PriceSeries{}, err
		}
		c.store(fctx, key, toHistoryDTO(s), c.historyTTL)
		return s, nil
	})
	if err != nil {
		return models.PriceSeries{}, err
	}
	return v.(models.PriceSeries), nil
}

func (c *CachedMarketData) Profile(ctx context.Context, symbol string) (models.CompanyProfile, error) {
	key := profileKey(symbol)

	var dto profileDTO
	if c.lookup(ctx, "profile", key, &dto) {
		return models.CompanyProfile(dto), nil
	}

	v, err := c.shared(ctx, key, func(fctx context.Context) (interface{}, error) {
		p, err := c.next.Profile(fctx, symbol)
		if err != nil {
			return models.CompanyProfile{}, err
		}
		c.store(fctx, key, profileDTO(p), c.profileTTL)
		return p, nil
	})
	if err != nil {
		return models.CompanyProfile{}, err
	}
	return v.(models.CompanyProfile), nil
}

// shared runs fetch once per key for all concurrent callers. The fetch is
// detached from any single caller's cancellation; each caller still stops
// waiting when its own ctx is done.
func (c *CachedMarketData) shared(ctx context.Context, key string, fetch func(context.Context) (interface{}, error)) (interface{}, error) {
	ch := c.group.DoChan(key, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()
		return fetch(fctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.Val, r.Err
	}
}

// Invalidate drops every cached entry for symbol.
func (c *CachedMarketData) Invalidate(ctx context.Context, symbol string) error {
	if err := c.cache.DeleteByPattern(ctx, cache.BuildPattern(cache.GenerateKeyWithParams("history", strings.ToUpper(symbol))+":")); err != nil {
		return fmt.Errorf("invalidate history: %w", err)
	}
	if err := c.cache.Delete(ctx, profileKey(symbol)); err != nil {
		return fmt.Errorf("invalidate profile: %w", err)
	}
	return nil
}

func (c *CachedMarketData) lookup(ctx context.Context, kind, key string, dest interface{}) bool {
	err := c.cache.Get(ctx, key, dest)
	hit := err == nil
	if c.metrics != nil {
		c.metrics.RecordCache(kind, hit)
	}
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		c.l.Warn("market data cache read failed", applogger.String("key", key), applogger.Error(err))
	}
	return hit
}

func (c *CachedMarketData) store(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	if err := c.cache.Set(ctx, key, v, ttl); err != nil {
		c.l.Warn("market data cache write failed", applogger.String("key", key), applogger.Error(err))
	}
}

func toHistoryDTO(s models.PriceSeries) historyDTO {
	bars := s.Bars()
	dto := historyDTO{Symbol: s.Symbol(), Bars: make([]barDTO, len(bars))}
	for i, b := range bars {
		dto.Bars[i] = barDTO{
			Date:   b.Date.Format(models.DateLayout),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
	}
	return dto
}

func (d historyDTO) series() (models.PriceSeries, error) {
	bars := make([]models.Bar, len(d.Bars))
	for i, b := range d.Bars {
		date, err := util.ParseDay(b.Date)
		if err != nil {
			return models.PriceSeries{}, fmt.Errorf("bar %d date: %w", i, err)
		}
		bars[i] = models.Bar{Date: date, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
	}
	return models.NewPriceSeries(d.Symbol, bars)
}
