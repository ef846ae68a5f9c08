package repository

import (
	"context"

	"FinCast/internal/domain/models"
)

// MarketData is the external market-data collaborator.
type MarketData interface {
	History(ctx context.Context, symbol string, period Period) (models.PriceSeries, error)
	Profile(ctx context.Context, symbol string) (models.CompanyProfile, error)
}

// ForecastJournal records completed forecast runs.
type ForecastJournal interface {
	Init(ctx context.Context) error // ensure tables
	Record(ctx context.Context, run models.ForecastRun) error
	Recent(ctx context.Context, symbol string, limit int) ([]models.ForecastRun, error)
	Health(ctx context.Context) error
	Close() error
}

// EventPublisher emits forecast events to downstream consumers.
type EventPublisher interface {
	PublishForecast(ctx context.Context, ev models.ForecastEvent) error
	Close() error
}

type Metrics interface {
	RecordForecast(strategy, result string)
	RecordStageLatency(stage string, seconds float64)
	RecordTrainingLoss(symbol string, loss float64)
	RecordFetch(source string, seconds float64, err error)
	RecordCache(kind string, hit bool)
	RecordError(kind string)
}
