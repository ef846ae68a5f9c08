package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/domain/service"
	"FinCast/internal/handler/api"
	internalrepo "FinCast/internal/repository"
	"FinCast/internal/service/ratelimit"
	"FinCast/internal/service/yahoo"
	"FinCast/internal/services/forecast"
	"FinCast/internal/usecase"
	"FinCast/pkg/cache"
	pkgch "FinCast/pkg/clickhouse"
	"FinCast/pkg/config"
	xhttp "FinCast/pkg/http"
	pkgkafka "FinCast/pkg/kafka"
	applogger "FinCast/pkg/logger"
	"FinCast/pkg/metrics"
	"FinCast/pkg/server"
	pkgsqlite "FinCast/pkg/sqlite"
)

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is off.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithDelivery(cfg.Kafka.RequiredAcks, cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithAutoCreateTopics(cfg.Kafka.Producer.AutoCreate),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the application logger. When the collector is on,
// aggregated errors are shipped to the logs topic through producer.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		Service: "fincast",
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.Collector.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.Collector.Interval,
			CountThreshold: cfg.Log.Collector.Threshold,
			Topic:          cfg.Log.Collector.Topic,
			Publisher:      producer,
			Levels:         cfg.Log.Collector.Levels,
			Source:         "fincast",
		})
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideCache selects the market-data cache backend. It returns nil for
// backend "none".
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	c := cfg.Cache
	memory := func() *cache.MemoryCache {
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(c.MemoryMaxSize))
	}
	redis := func() (*cache.RedisCache, error) {
		rc, err := cache.NewRedisCache(
			cache.WithRedisAddr(net.JoinHostPort(c.Redis.Host, strconv.Itoa(c.Redis.Port))),
			cache.WithRedisAuth(c.Redis.Password, c.Redis.DB),
			cache.WithRedisPool(c.Redis.PoolSize, c.Redis.PoolSize/2, 30*time.Second),
			cache.WithRedisPrefix("fincast"),
		)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		return rc, nil
	}

	switch c.Backend {
	case "none":
		return nil, nil
	case "memory":
		return memory(), nil
	case "redis":
		return redis()
	case "layered":
		rc, err := redis()
		if err != nil {
			return nil, err
		}
		return cache.NewLayeredCache(rc,
			cache.WithLayeredMemorySize(c.MemoryMaxSize),
			cache.WithLayeredMemoryTTL(c.MemoryTTL),
		), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", c.Backend)
	}
}

// ProvideYahooClient creates the market data provider client.
func ProvideYahooClient(cfg *config.Config, l *applogger.Logger, m domrepo.Metrics) *yahoo.Client {
	md := cfg.MarketData
	return yahoo.NewClient(yahoo.Config{
		BaseURL:       md.BaseURL,
		Timeout:       md.Timeout,
		RetryAttempts: md.RetryAttempts,
		RetryBackoff:  md.RetryBackoff,
		UserAgent:     md.UserAgent,
		QuoteEnabled:  md.QuoteEnabled,
	}, l, m)
}

// ProvideMarketData puts the cache in front of the provider when one is
// configured.
func ProvideMarketData(cfg *config.Config, client *yahoo.Client, c cache.Service, l *applogger.Logger, m domrepo.Metrics) domrepo.MarketData {
	if c == nil {
		return client
	}
	return internalrepo.NewCachedMarketData(client, c, cfg.Cache.HistoryTTL, cfg.Cache.ProfileTTL, l, m)
}

// ProvideForecaster builds the configured forecasting strategy.
func ProvideForecaster(cfg *config.Config) (service.Forecaster, error) {
	switch cfg.Forecast.Strategy {
	case "trend":
		return forecast.NewTrendForecaster(cfg.Forecast.Trend.Horizon), nil
	case "sequence":
		s := cfg.Forecast.Sequence
		return forecast.NewSequenceForecaster(forecast.SequenceConfig{
			Features:      s.Features,
			Target:        s.Target,
			NSteps:        s.NSteps,
			TrainFraction: s.TrainFraction,
			HiddenUnits:   s.HiddenUnits,
			Epochs:        s.Epochs,
			BatchSize:     s.BatchSize,
			LearningRate:  s.LearningRate,
			FeatureScaler: forecast.ScalerKind(s.FeatureScaler),
			TargetScaler:  forecast.ScalerKind(s.TargetScaler),
			Seed:          s.Seed,
		})
	default:
		return nil, fmt.Errorf("unknown forecast strategy %q", cfg.Forecast.Strategy)
	}
}

// ProvideJournal opens the configured forecast journal backend. Tables are
// created by App.Run.
func ProvideJournal(cfg *config.Config, l *applogger.Logger) (domrepo.ForecastJournal, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cfg.Journal.Backend {
	case "none":
		return internalrepo.NoopJournal{}, nil
	case "sqlite":
		client, err := pkgsqlite.Open(ctx,
			pkgsqlite.WithPath(cfg.SQLite.Path),
			pkgsqlite.WithBusyTimeout(cfg.SQLite.BusyTimeout),
			pkgsqlite.WithSynchronous(cfg.SQLite.Synchronous),
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite journal: %w", err)
		}
		return internalrepo.NewSQLiteJournal(client, l), nil
	case "clickhouse":
		ch := cfg.ClickHouse
		client, err := pkgch.NewClient(ctx,
			pkgch.WithAddr(ch.Host, ch.Port),
			pkgch.WithAuth(ch.Database, ch.User, ch.Password),
			pkgch.WithPool(10, 5),
			pkgch.WithHTTP(ch.UseHTTP),
			pkgch.WithAsyncInsert(ch.AsyncInsert, ch.WaitForAsync),
			pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout),
			pkgch.WithMaxExecutionTime(ch.MaxExecutionTime),
		)
		if err != nil {
			return nil, fmt.Errorf("clickhouse journal: %w", err)
		}
		return internalrepo.NewCHJournal(client, l), nil
	default:
		return nil, fmt.Errorf("unknown journal backend %q", cfg.Journal.Backend)
	}
}

// ProvideEventPublisher publishes forecast events to Kafka, or drops them
// when Kafka is off.
func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer) domrepo.EventPublisher {
	if producer == nil {
		return internalrepo.NoopEventPublisher{}
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.EventsTopic)
}

// ProvideReportAssembler creates the report assembler.
func ProvideReportAssembler(cfg *config.Config) *usecase.ReportAssembler {
	return usecase.NewReportAssembler(cfg.Report.RecentHistory)
}

// ProvideAnalysisUseCase creates the analysis use case.
func ProvideAnalysisUseCase(
	cfg *config.Config,
	market domrepo.MarketData,
	forecaster service.Forecaster,
	journal domrepo.ForecastJournal,
	events domrepo.EventPublisher,
	m domrepo.Metrics,
	assembler *usecase.ReportAssembler,
	l *applogger.Logger,
) *usecase.AnalysisUseCase {
	return usecase.NewAnalysisUseCase(market, forecaster, journal, events, m, assembler, l, cfg.Forecast.Timeout)
}

// ProvideKafkaConsumer creates the forecast jobs consumer, or nil when it is
// disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	kc := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithGroup(kc.GroupID),
		pkgkafka.WithWorkers(kc.Workers, kc.BufferSize),
		pkgkafka.WithRetry(kc.RetryMax, kc.BackoffMin, kc.BackoffMax),
		pkgkafka.WithHandleTimeout(kc.HandleTimeout),
		pkgkafka.WithDeadLetter(kc.DLQTopic),
		pkgkafka.WithFetchBytes(kc.MinBytes, kc.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
		pkgkafka.WithHooks(pkgkafka.TraceHook(), pkgkafka.LoggingHook(l)),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideForecastJobsHandler handles queued analysis requests.
func ProvideForecastJobsHandler(cfg *config.Config, uc *usecase.AnalysisUseCase, m domrepo.Metrics, l *applogger.Logger) *usecase.ForecastJobsHandler {
	return usecase.NewForecastJobsHandler(cfg.Kafka.JobsTopic, uc, m, l)
}

// ProvideHTTPServer builds the Echo server with the stock and stream routes.
func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, uc *usecase.AnalysisUseCase) *xhttp.Server {
	var origins []string
	if cfg.CORS.Enabled {
		origins = cfg.CORS.AllowOrigins
	}
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}

	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(origins),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithSlowThreshold(cfg.Metrics.SlowThreshold),
	}
	if cfg.RateLimit.Enabled {
		opts = append(opts, xhttp.WithRateLimiter(ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.IdleTTL)))
	}

	handlers := []xhttp.Handler{
		api.NewStocksHandler(l, uc),
		api.NewStreamHandler(l, uc, origins),
	}
	return xhttp.NewServer(l, handlers, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	jobs *usecase.ForecastJobsHandler,
	journal domrepo.ForecastJournal,
	events domrepo.EventPublisher,
	c cache.Service,
) *server.App {
	return server.New(cfg, l, httpServer, consumer, jobs, journal, events, c)
}
