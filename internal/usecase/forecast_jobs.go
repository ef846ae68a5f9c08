package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	pkgkafka "FinCast/pkg/kafka"
	applogger "FinCast/pkg/logger"
)

// Analyzer runs one analysis invocation.
type Analyzer interface {
	Analyze(ctx context.Context, p AnalysisParams) (*models.AnalysisReport, error)
}

// ForecastJobsHandler consumes queued analysis requests. Results reach the
// journal and the events topic through the analyzer.
type ForecastJobsHandler struct {
	topic    string
	analyzer Analyzer
	metrics  domrepo.Metrics
	l        *applogger.Logger
}

var _ pkgkafka.MessageHandler = (*ForecastJobsHandler)(nil)

func NewForecastJobsHandler(topic string, analyzer Analyzer, metrics domrepo.Metrics, l *applogger.Logger) *ForecastJobsHandler {
	return &ForecastJobsHandler{topic: topic, analyzer: analyzer, metrics: metrics, l: l}
}

func (h *ForecastJobsHandler) Topic() string { return h.topic }

// incoming message schema: {ticker, period, horizon?}
func (h *ForecastJobsHandler) Handle(ctx context.Context, b []byte) error {
	var job models.ForecastJob
	if err := json.Unmarshal(b, &job); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode job: %w", err))
	}
	period := domrepo.Period(job.Period)
	if job.Period == "" {
		period = domrepo.DefaultPeriod()
	}

	rep, err := h.analyzer.Analyze(ctx, AnalysisParams{
		Symbol:  job.Ticker,
		Period:  period,
		Horizon: job.Horizon,
	})
	if err != nil {
		h.metrics.RecordError("consumer_analysis")
		if isPermanent(err) {
			return pkgkafka.Permanent(err)
		}
		return err
	}
	h.l.Info("forecast job done",
		applogger.String("symbol", rep.Ticker),
		applogger.String("period", string(period)),
		applogger.String("trace_id", pkgkafka.TraceIDFrom(ctx)),
	)
	return nil
}

// isPermanent reports errors a retry cannot fix.
func isPermanent(err error) bool {
	var (
		invalid *models.InvalidInputError
		unknown *models.UnknownSymbolError
		short   *models.InsufficientDataError
	)
	return errors.As(err, &invalid) || errors.As(err, &unknown) || errors.As(err, &short)
}
