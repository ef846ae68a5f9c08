package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/domain/service"
	"FinCast/internal/services/features"
	applogger "FinCast/pkg/logger"
)

// AnalysisUseCase runs one independent forecast invocation per call:
// fetch, forecast, assemble, then journal and publish.
type AnalysisUseCase struct {
	market     domrepo.MarketData
	forecaster service.Forecaster
	journal    domrepo.ForecastJournal
	events     domrepo.EventPublisher
	metrics    domrepo.Metrics
	assembler  *ReportAssembler
	l          *applogger.Logger
	timeout    time.Duration

	now   func() time.Time
	newID func() string
}

func NewAnalysisUseCase(
	market domrepo.MarketData,
	forecaster service.Forecaster,
	journal domrepo.ForecastJournal,
	events domrepo.EventPublisher,
	metrics domrepo.Metrics,
	assembler *ReportAssembler,
	l *applogger.Logger,
	timeout time.Duration,
) *AnalysisUseCase {
	return &AnalysisUseCase{
		market:     market,
		forecaster: forecaster,
		journal:    journal,
		events:     events,
		metrics:    metrics,
		assembler:  assembler,
		l:          l,
		timeout:    timeout,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Strategy reports the configured forecasting strategy.
func (uc *AnalysisUseCase) Strategy() models.Strategy { return uc.forecaster.Strategy() }

type AnalysisParams struct {
	Symbol   string
	Period   domrepo.Period
	Horizon  int
	Progress service.ProgressFunc
}

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func validateParams(symbol string, period domrepo.Period) error {
	if symbol == "" {
		return &models.InvalidInputError{Field: "ticker", Reason: "required"}
	}
	if !domrepo.IsValidPeriod(period) {
		return &models.InvalidInputError{Field: "period", Reason: fmt.Sprintf("unsupported period %q", period)}
	}
	return nil
}

// GetData returns the report without a forecast.
func (uc *AnalysisUseCase) GetData(ctx context.Context, symbol string, period domrepo.Period) (*models.AnalysisReport, error) {
	symbol = NormalizeSymbol(symbol)
	if err := validateParams(symbol, period); err != nil {
		return nil, err
	}
	ctx, cancel := uc.withTimeout(ctx)
	defer cancel()

	series, profile, err := uc.load(ctx, symbol, period)
	if err != nil {
		return nil, err
	}
	snap := features.Latest(features.ComputeIndicators(series))
	rep := uc.assembler.Assemble(series, profile, &snap, nil)
	return &rep, nil
}

// Analyze fetches the series, runs the configured forecaster and returns the
// assembled report. Journal and event failures are logged only.
func (uc *AnalysisUseCase) Analyze(ctx context.Context, p AnalysisParams) (*models.AnalysisReport, error) {
	symbol := NormalizeSymbol(p.Symbol)
	if err := validateParams(symbol, p.Period); err != nil {
		return nil, err
	}
	if p.Horizon < 0 {
		return nil, &models.InvalidInputError{Field: "horizon", Reason: "must be >= 1"}
	}
	ctx, cancel := uc.withTimeout(ctx)
	defer cancel()

	series, profile, err := uc.load(ctx, symbol, p.Period)
	if err != nil {
		return nil, err
	}

	strategy := string(uc.forecaster.Strategy())
	start := time.Now()
	analysis, err := uc.forecaster.Forecast(ctx, series, service.ForecastOptions{
		Horizon:  p.Horizon,
		Progress: p.Progress,
	})
	uc.metrics.RecordStageLatency("forecast", time.Since(start).Seconds())
	if err != nil {
		uc.metrics.RecordForecast(strategy, "error")
		uc.metrics.RecordError(errorKind(err))
		uc.l.Warn("forecast failed",
			applogger.String("symbol", symbol),
			applogger.String("period", string(p.Period)),
			applogger.String("strategy", strategy),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("forecast %s: %w", symbol, err)
	}
	uc.metrics.RecordForecast(strategy, "ok")
	if bt := analysis.Backtest; bt != nil && len(bt.EpochLoss) > 0 {
		uc.metrics.RecordTrainingLoss(symbol, bt.EpochLoss[len(bt.EpochLoss)-1])
	}

	rep := uc.assembler.Assemble(series, profile, nil, &analysis)
	uc.record(ctx, symbol, p.Period, series, analysis)
	return &rep, nil
}

// RecentForecasts lists journaled runs for a symbol, newest first.
func (uc *AnalysisUseCase) RecentForecasts(ctx context.Context, symbol string, limit int) ([]models.ForecastRunView, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, &models.InvalidInputError{Field: "ticker", Reason: "required"}
	}
	if limit <= 0 {
		limit = 20
	}
	runs, err := uc.journal.Recent(ctx, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("recent forecasts: %w", err)
	}
	out := make([]models.ForecastRunView, len(runs))
	for i, r := range runs {
		out[i] = r.View()
	}
	return out, nil
}

func (uc *AnalysisUseCase) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if uc.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, uc.timeout)
}

// load fetches history and profile concurrently. A profile failure is not
// fatal; the report falls back to "N/A" fields.
func (uc *AnalysisUseCase) load(ctx context.Context, symbol string, period domrepo.Period) (models.PriceSeries, models.CompanyProfile, error) {
	start := time.Now()
	var (
		series  models.PriceSeries
		profile = models.CompanyProfile{Symbol: symbol}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := uc.market.History(gctx, symbol, period)
		if err != nil {
			return err
		}
		series = s
		return nil
	})
	g.Go(func() error {
		p, err := uc.market.Profile(gctx, symbol)
		if err != nil {
			if gctx.Err() == nil {
				uc.l.Warn("profile lookup failed",
					applogger.String("symbol", symbol),
					applogger.Error(err),
				)
			}
			return nil
		}
		profile = p
		return nil
	})
	err := g.Wait()
	uc.metrics.RecordStageLatency("fetch", time.Since(start).Seconds())
	if err != nil {
		uc.metrics.RecordError(errorKind(err))
		return models.PriceSeries{}, models.CompanyProfile{}, fmt.Errorf("load %s: %w", symbol, err)
	}
	return series, profile, nil
}

func (uc *AnalysisUseCase) record(ctx context.Context, symbol string, period domrepo.Period, series models.PriceSeries, analysis models.Analysis) {
	fc := analysis.Forecast()
	run := models.ForecastRun{
		ID:        uc.newID(),
		Symbol:    symbol,
		Period:    string(period),
		Strategy:  analysis.Strategy,
		CreatedAt: uc.now().UTC(),
		Dates:     fc.Dates,
		Predicted: fc.Predicted,
		Actual:    fc.Actual,
	}
	if bt := analysis.Backtest; bt != nil {
		run.RMSE, run.MAE = bt.RMSE, bt.MAE
	}

	if err := uc.journal.Record(ctx, run); err != nil {
		uc.metrics.RecordError("journal")
		uc.l.Error("journal record failed",
			applogger.String("symbol", symbol),
			applogger.String("run_id", run.ID),
			applogger.Error(err),
		)
	}

	ev := models.ForecastEvent{
		RunID:     run.ID,
		Symbol:    symbol,
		Period:    run.Period,
		Strategy:  run.Strategy,
		Points:    fc.Len(),
		LastClose: series.Last().Close,
		CreatedAt: run.CreatedAt,
	}
	if fc.Len() > 0 {
		ev.FirstPred = fc.Predicted[0]
	}
	if err := uc.events.PublishForecast(ctx, ev); err != nil {
		uc.metrics.RecordError("publish")
		uc.l.Error("forecast event publish failed",
			applogger.String("symbol", symbol),
			applogger.String("run_id", run.ID),
			applogger.Error(err),
		)
	}
}

// errorKind labels an error for metrics.
func errorKind(err error) string {
	var (
		invalid  *models.InvalidInputError
		unknown  *models.UnknownSymbolError
		short    *models.InsufficientDataError
		training *models.TrainingFailure
		notFit   *models.NotFittedError
	)
	switch {
	case errors.As(err, &invalid):
		return "invalid_input"
	case errors.As(err, &unknown):
		return "unknown_symbol"
	case errors.As(err, &short):
		return "insufficient_data"
	case errors.As(err, &training):
		return "training"
	case errors.As(err, &notFit):
		return "not_fitted"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal"
	}
}
