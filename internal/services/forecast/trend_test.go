package forecast

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
	"FinCast/internal/domain/service"
)

func TestTrendForecastLinearSeries(t *testing.T) {
	series := linearSeries(t, 30, 100, 1)
	f := NewTrendForecaster(0)

	got, err := f.Forecast(context.Background(), series, service.ForecastOptions{})
	require.NoError(t, err)
	require.Equal(t, models.StrategyTrend, got.Strategy)
	require.NotNil(t, got.Trend)
	assert.Nil(t, got.Backtest)

	fc := got.Trend.Forecast
	assert.InDeltaSlice(t, []float64{130, 131, 132, 133, 134}, fc.Predicted, 1e-9)
	assert.False(t, fc.HasActual())
	require.Len(t, fc.Dates, 5)
	last := series.Last().Date
	for i, d := range fc.Dates {
		assert.Equal(t, last.AddDate(0, 0, i+1), d)
	}
	assert.InDelta(t, 1.0, got.Trend.Slope, 1e-12)
	assert.InDelta(t, 100.0, got.Trend.Intercept, 1e-9)

	ind := got.Trend.Indicators
	assert.Equal(t, 129.0, ind.CurrentPrice)
	assert.InDelta(t, 127.0, ind.SMAShort.Float64, 1e-9)
	assert.InDelta(t, 119.5, ind.SMALong.Float64, 1e-9)
	assert.InDelta(t, 129.0/128-1, ind.Return1D.Float64, 1e-12)
	assert.InDelta(t, 129.0/124-1, ind.Return5D.Float64, 1e-12)

	require.Len(t, got.Trend.RecentCloses, 10)
	assert.Equal(t, 120.0, got.Trend.RecentCloses[0])
	assert.Equal(t, last, got.Trend.RecentDates[9])
}

func TestTrendForecastConstantSeries(t *testing.T) {
	series := linearSeries(t, 8, 50, 0)
	got, err := NewTrendForecaster(3).Forecast(context.Background(), series, service.ForecastOptions{})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{50, 50, 50}, got.Trend.Forecast.Predicted, 1e-9)
	assert.False(t, got.Trend.Indicators.SMALong.Valid)
}

func TestTrendForecastHorizonOverride(t *testing.T) {
	series := linearSeries(t, 10, 10, -1)
	f := NewTrendForecaster(5)

	got, err := f.Forecast(context.Background(), series, service.ForecastOptions{Horizon: 2})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, -1}, got.Trend.Forecast.Predicted, 1e-9)

	_, err = f.Forecast(context.Background(), series, service.ForecastOptions{Horizon: -1})
	var invalid *models.InvalidInputError
	assert.True(t, errors.As(err, &invalid))
}

func TestTrendForecastTooShort(t *testing.T) {
	series := linearSeries(t, 1, 10, 0)
	_, err := NewTrendForecaster(5).Forecast(context.Background(), series, service.ForecastOptions{})
	var insufficient *models.InsufficientDataError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 2, insufficient.Need)
	assert.Equal(t, 1, insufficient.Have)
}

func TestTrendForecastIdempotent(t *testing.T) {
	series := linearSeries(t, 15, 3, 0.7)
	f := NewTrendForecaster(5)
	a, err := f.Forecast(context.Background(), series, service.ForecastOptions{})
	require.NoError(t, err)
	b, err := f.Forecast(context.Background(), series, service.ForecastOptions{})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFitLineNoisy(t *testing.T) {
	slope, intercept, err := FitLine([]float64{1, 3, 2, 4})
	require.NoError(t, err)
	// x mean 1.5, y mean 2.5, Sxy 4 / Sxx 5
	assert.InDelta(t, 0.8, slope, 1e-12)
	assert.InDelta(t, 1.3, intercept, 1e-12)
}
