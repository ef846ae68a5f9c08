package yahoo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/guregu/null/v6"

	"FinCast/internal/domain/models"
	"FinCast/internal/domain/repository"
	xhttp "FinCast/pkg/http"
	applogger "FinCast/pkg/logger"
	"FinCast/pkg/util"
)

const maxRetryBackoff = 5 * time.Second

type Config struct {
	BaseURL       string
	Timeout       time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
	UserAgent     string
	// QuoteEnabled fetches market cap and P/E from the quote endpoint.
	QuoteEnabled bool
}

// Client reads daily history and company metadata from the Yahoo Finance
// chart API.
type Client struct {
	cfg     Config
	http    *xhttp.Client
	log     *applogger.Logger
	metrics repository.Metrics
}

var _ repository.MarketData = (*Client)(nil)

func NewClient(cfg Config, log *applogger.Logger, m repository.Metrics) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	return &Client{
		cfg:     cfg,
		http:    xhttp.NewClient(xhttp.WithTimeout(cfg.Timeout), xhttp.WithUserAgent(cfg.UserAgent)),
		log:     log,
		metrics: m,
	}
}

// History returns the daily bars of symbol over period. Rows with a null
// price are skipped; when the provider repeats a date the later bar wins.
func (c *Client) History(ctx context.Context, symbol string, period repository.Period) (models.PriceSeries, error) {
	if !repository.IsValidPeriod(period) {
		return models.PriceSeries{}, &models.InvalidInputError{Field: "period", Reason: fmt.Sprintf("unsupported period %q", period)}
	}
	res, err := c.chart(ctx, symbol, string(period))
	if err != nil {
		return models.PriceSeries{}, err
	}
	bars := barsFromChart(res)
	if len(bars) == 0 {
		return models.PriceSeries{}, &models.UnknownSymbolError{Symbol: symbol}
	}
	series, err := models.NewPriceSeries(symbol, bars)
	if err != nil {
		return models.PriceSeries{}, fmt.Errorf("yahoo history %s: %w", symbol, err)
	}
	return series, nil
}

// Profile returns descriptive metadata. Fields the provider omits stay null.
func (c *Client) Profile(ctx context.Context, symbol string) (models.CompanyProfile, error) {
	res, err := c.chart(ctx, symbol, string(repository.Period5d))
	if err != nil {
		return models.CompanyProfile{}, err
	}
	m := res.Meta
	p := models.CompanyProfile{
		Symbol:       symbol,
		Name:         null.NewString(firstNonEmpty(m.LongName, m.ShortName), firstNonEmpty(m.LongName, m.ShortName) != ""),
		Currency:     null.NewString(m.Currency, m.Currency != ""),
		CurrentPrice: null.FloatFromPtr(m.RegularMarketPrice),
		WeekHigh52:   null.FloatFromPtr(m.FiftyTwoWeekHigh),
		WeekLow52:    null.FloatFromPtr(m.FiftyTwoWeekLow),
	}
	if c.cfg.QuoteEnabled {
		q, err := c.quote(ctx, symbol)
		if err != nil {
			c.log.Warn("yahoo quote lookup failed",
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
		} else {
			p.MarketCap = null.FloatFromPtr(q.MarketCap)
			p.PERatio = null.FloatFromPtr(q.TrailingPE)
			if !p.Name.Valid && q.LongName != "" {
				p.Name = null.StringFrom(q.LongName)
			}
		}
	}
	return p, nil
}

func (c *Client) chart(ctx context.Context, symbol, rng string) (*chartResult, error) {
	start := time.Now()
	var body chartResponse
	err := c.http.FetchJSONWithRetry(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.cfg.BaseURL + "/v8/finance/chart/" + url.PathEscape(symbol),
		QueryParams: url.Values{
			"range":    {rng},
			"interval": {"1d"},
		},
	}, &body, xhttp.RetryPolicy{
		Attempts:   c.cfg.RetryAttempts,
		Backoff:    c.cfg.RetryBackoff,
		MaxBackoff: maxRetryBackoff,
	})
	if c.metrics != nil {
		c.metrics.RecordFetch("yahoo_chart", time.Since(start).Seconds(), err)
	}
	if err != nil {
		var se *xhttp.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return nil, &models.UnknownSymbolError{Symbol: symbol}
		}
		return nil, fmt.Errorf("yahoo chart %s: %w", symbol, err)
	}
	if len(body.Chart.Result) == 0 {
		if body.Chart.Error != nil && body.Chart.Error.Code != "Not Found" {
			return nil, fmt.Errorf("yahoo chart %s: %s: %s", symbol, body.Chart.Error.Code, body.Chart.Error.Description)
		}
		return nil, &models.UnknownSymbolError{Symbol: symbol}
	}
	return &body.Chart.Result[0], nil
}

func (c *Client) quote(ctx context.Context, symbol string) (*quoteResult, error) {
	start := time.Now()
	var body quoteResponse
	err := c.http.FetchJSON(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.cfg.BaseURL + "/v7/finance/quote",
		QueryParams: url.Values{"symbols": {symbol}},
	}, &body)
	if c.metrics != nil {
		c.metrics.RecordFetch("yahoo_quote", time.Since(start).Seconds(), err)
	}
	if err != nil {
		return nil, fmt.Errorf("yahoo quote %s: %w", symbol, err)
	}
	if len(body.QuoteResponse.Result) == 0 {
		return nil, fmt.Errorf("yahoo quote %s: empty result", symbol)
	}
	return &body.QuoteResponse.Result[0], nil
}

// barsFromChart converts the columnar payload to date-ordered bars. Dates are
// the exchange-local calendar day of each timestamp.
func barsFromChart(res *chartResult) []models.Bar {
	if len(res.Indicators.Quote) == 0 {
		return nil
	}
	q := res.Indicators.Quote[0]
	bars := make([]models.Bar, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		o, okO := at(q.Open, i)
		h, okH := at(q.High, i)
		l, okL := at(q.Low, i)
		cl, okC := at(q.Close, i)
		if !okO || !okH || !okL || !okC {
			continue
		}
		v, _ := at(q.Volume, i)
		bars = append(bars, models.Bar{
			Date:   util.MarketDay(ts, res.Meta.GMTOffset),
			Open:   o,
			High:   h,
			Low:    l,
			Close:  cl,
			Volume: v,
		})
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	out := bars[:0]
	for _, b := range bars {
		if n := len(out); n > 0 && out[n-1].Date.Equal(b.Date) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

func at(xs []*float64, i int) (float64, bool) {
	if i >= len(xs) || xs[i] == nil {
		return 0, false
	}
	return *xs[i], true
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}
