package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func seriesOf(t *testing.T, symbol string, closes ...float64) models.PriceSeries {
	t.Helper()
	bars := make([]models.Bar, len(closes))
	for i, c := range closes {
		bars[i] = models.Bar{Date: day0.AddDate(0, 0, i), Open: c - 1, High: c + 1, Low: c - 2, Close: c, Volume: 1000}
	}
	s, err := models.NewPriceSeries(symbol, bars)
	require.NoError(t, err)
	return s
}

type fakeMarket struct {
	series     models.PriceSeries
	historyErr error
	profile    models.CompanyProfile
	profileErr error

	mu      sync.Mutex
	symbols []string
}

func (m *fakeMarket) History(_ context.Context, symbol string, _ domrepo.Period) (models.PriceSeries, error) {
	m.mu.Lock()
	m.symbols = append(m.symbols, symbol)
	m.mu.Unlock()
	if m.historyErr != nil {
		return models.PriceSeries{}, m.historyErr
	}
	return m.series, nil
}

func (m *fakeMarket) Profile(context.Context, string) (models.CompanyProfile, error) {
	return m.profile, m.profileErr
}

type fakeJournal struct {
	runs []models.ForecastRun
	err  error
}

func (j *fakeJournal) Init(context.Context) error { return nil }
func (j *fakeJournal) Record(_ context.Context, r models.ForecastRun) error {
	if j.err != nil {
		return j.err
	}
	j.runs = append(j.runs, r)
	return nil
}
func (j *fakeJournal) Recent(_ context.Context, symbol string, limit int) ([]models.ForecastRun, error) {
	var out []models.ForecastRun
	for i := len(j.runs) - 1; i >= 0 && len(out) < limit; i-- {
		if j.runs[i].Symbol == symbol {
			out = append(out, j.runs[i])
		}
	}
	return out, nil
}
func (j *fakeJournal) Health(context.Context) error { return nil }
func (j *fakeJournal) Close() error                 { return nil }

type fakePublisher struct {
	events []models.ForecastEvent
	err    error
}

func (p *fakePublisher) PublishForecast(_ context.Context, ev models.ForecastEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}
func (p *fakePublisher) Close() error { return nil }

type fakeMetrics struct {
	mu        sync.Mutex
	forecasts map[string]int
	errors    map[string]int
	losses    map[string]float64
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{forecasts: map[string]int{}, errors: map[string]int{}, losses: map[string]float64{}}
}

func (m *fakeMetrics) RecordForecast(strategy, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forecasts[strategy+"/"+result]++
}
func (m *fakeMetrics) RecordStageLatency(string, float64) {}
func (m *fakeMetrics) RecordTrainingLoss(symbol string, loss float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.losses[symbol] = loss
}
func (m *fakeMetrics) RecordFetch(string, float64, error) {}
func (m *fakeMetrics) RecordCache(string, bool)           {}
func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

var errBoom = errors.New("boom")

func fullProfile(symbol string) models.CompanyProfile {
	return models.CompanyProfile{
		Symbol:       symbol,
		Name:         null.StringFrom("Apple Inc."),
		CurrentPrice: null.FloatFrom(200.5),
		MarketCap:    null.FloatFrom(3e12),
		PERatio:      null.FloatFrom(30.1),
		WeekHigh52:   null.FloatFrom(210),
		WeekLow52:    null.FloatFrom(150),
	}
}

func datesFrom(start time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.AddDate(0, 0, i)
	}
	return out
}
