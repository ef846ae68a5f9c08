//go:build wireinject
// +build wireinject

package di

import (
	"FinCast/pkg/config"
	"FinCast/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Metrics and logging
		ProvideMetrics,
		ProvideKafkaProducer,
		ProvideLogger,

		// Infrastructure
		ProvideCache,
		ProvideYahooClient,
		ProvideJournal,
		ProvideEventPublisher,

		// Repositories and domain services
		ProvideMarketData,
		ProvideForecaster,

		// Use cases
		ProvideReportAssembler,
		ProvideAnalysisUseCase,
		ProvideForecastJobsHandler,

		// Transports
		ProvideKafkaConsumer,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
