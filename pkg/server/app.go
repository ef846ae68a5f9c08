package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "FinCast/internal/domain/repository"
	"FinCast/pkg/cache"
	"FinCast/pkg/config"
	xhttp "FinCast/pkg/http"
	pkgkafka "FinCast/pkg/kafka"
	applogger "FinCast/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer // nil when jobs are disabled
	jobs       pkgkafka.MessageHandler
	journal    domrepo.ForecastJournal
	events     domrepo.EventPublisher
	cache      cache.Service // nil when caching is disabled
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	jobs pkgkafka.MessageHandler,
	journal domrepo.ForecastJournal,
	events domrepo.EventPublisher,
	c cache.Service,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		httpServer: httpServer,
		consumer:   consumer,
		jobs:       jobs,
		journal:    journal,
		events:     events,
		cache:      c,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.run(ctx)
}

func (a *App) run(ctx context.Context) error {
	initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err := a.journal.Init(initCtx)
	cancel()
	if err != nil {
		a.close()
		return fmt.Errorf("journal init: %w", err)
	}
	a.log.Info("journal ready", applogger.String("backend", a.cfg.Journal.Backend))

	// Consumer handlers get contexts cancelled by Stop, not by the signal,
	// so in-flight jobs finish during shutdown.
	if a.consumer != nil && a.jobs != nil {
		a.consumer.RegisterHandler(a.jobs)
		if err := a.consumer.Start(context.Background()); err != nil {
			a.close()
			return fmt.Errorf("kafka consumer: %w", err)
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.jobs.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		a.close()
		return err
	}
	a.log.Info("fincast started",
		applogger.String("strategy", a.cfg.Forecast.Strategy),
		applogger.Int("port", a.cfg.Server.Port),
		applogger.Bool("kafka", a.cfg.Kafka.Enabled),
	)

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	a.log.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	a.close()
	a.log.Info("shutdown complete")
	return nil
}

// close releases clients. The event publisher owns the Kafka producer, which
// the log collector also writes through, so it goes last.
func (a *App) close() {
	if err := a.journal.Close(); err != nil {
		a.log.Warn("journal close error", applogger.Error(err))
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("cache close error", applogger.Error(err))
		}
	}
	a.log.RemoveCollector()
	if err := a.events.Close(); err != nil {
		a.log.Warn("event publisher close error", applogger.Error(err))
	}
}
