package service

import (
	"context"

	"FinCast/internal/domain/models"
)

// ProgressFunc receives the mean training loss after each epoch.
type ProgressFunc func(epoch int, loss float64)

// Forecaster turns a price series into an Analysis. Implementations are
// immutable config holders; every call builds its own working state.
type Forecaster interface {
	Strategy() models.Strategy
	Forecast(ctx context.Context, series models.PriceSeries, opts ForecastOptions) (models.Analysis, error)
}

// ForecastOptions are per-invocation knobs.
type ForecastOptions struct {
	// Horizon overrides the trend horizon when > 0.
	Horizon  int
	Progress ProgressFunc
}
