package forecast

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"FinCast/internal/domain/models"
	"FinCast/internal/domain/service"
	"FinCast/internal/services/features"
)

const (
	DefaultHorizon = 5
	recentContext  = 10
)

// TrendForecaster extrapolates a degree-1 least-squares fit of close against
// bar index.
type TrendForecaster struct {
	horizon int
}

var _ service.Forecaster = (*TrendForecaster)(nil)

// NewTrendForecaster returns a forecaster with the given default horizon
// (DefaultHorizon when <= 0).
func NewTrendForecaster(horizon int) *TrendForecaster {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return &TrendForecaster{horizon: horizon}
}

func (f *TrendForecaster) Strategy() models.Strategy { return models.StrategyTrend }

// Forecast fits the series and projects opts.Horizon (or the default) points,
// one calendar day apart starting the day after the last bar.
func (f *TrendForecaster) Forecast(ctx context.Context, series models.PriceSeries, opts service.ForecastOptions) (models.Analysis, error) {
	if err := ctx.Err(); err != nil {
		return models.Analysis{}, err
	}
	h := f.horizon
	if opts.Horizon != 0 {
		h = opts.Horizon
	}
	if h < 1 {
		return models.Analysis{}, &models.InvalidInputError{Field: "horizon", Reason: fmt.Sprintf("must be >= 1, got %d", h)}
	}
	closes := series.Closes()
	slope, intercept, err := FitLine(closes)
	if err != nil {
		return models.Analysis{}, err
	}

	last := series.Last().Date
	n := len(closes)
	res := models.ForecastResult{
		Dates:     FutureDates(last, h),
		Predicted: make([]float64, h),
	}
	for k := 0; k < h; k++ {
		res.Predicted[k] = intercept + slope*float64(n+k)
	}

	recent := series.Tail(recentContext)
	tf := &models.TrendForecast{
		Forecast:     res,
		Slope:        slope,
		Intercept:    intercept,
		Indicators:   features.Latest(features.ComputeIndicators(series)),
		RecentDates:  make([]time.Time, len(recent)),
		RecentCloses: make([]float64, len(recent)),
	}
	for i, b := range recent {
		tf.RecentDates[i] = b.Date
		tf.RecentCloses[i] = b.Close
	}
	return models.Analysis{Strategy: models.StrategyTrend, Trend: tf}, nil
}

// FitLine returns the least-squares slope and intercept of ys against
// 0..len(ys)-1.
func FitLine(ys []float64) (slope, intercept float64, err error) {
	if len(ys) < 2 {
		return 0, 0, &models.InsufficientDataError{Op: "trend fit", Need: 2, Have: len(ys)}
	}
	xs := make([]float64, len(ys))
	for i := range xs {
		xs[i] = float64(i)
	}
	intercept, slope = stat.LinearRegression(xs, ys, nil, false)
	return slope, intercept, nil
}

// FutureDates returns n consecutive calendar days after last.
func FutureDates(last time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = last.AddDate(0, 0, i+1)
	}
	return out
}
