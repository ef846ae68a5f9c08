package usecase

import (
	"FinCast/internal/domain/models"
)

// ReportAssembler shapes a series, profile and optional analysis into the
// response payload. It does no computation beyond shape assembly.
type ReportAssembler struct {
	recentHistory int
}

// NewReportAssembler keeps the last recentHistory bars in reports; 0 keeps all.
func NewReportAssembler(recentHistory int) *ReportAssembler {
	return &ReportAssembler{recentHistory: recentHistory}
}

// Assemble builds the report. snapshot may be nil; analysis may be nil for
// data-only reports.
func (a *ReportAssembler) Assemble(series models.PriceSeries, profile models.CompanyProfile, snapshot *models.IndicatorSnapshot, analysis *models.Analysis) models.AnalysisReport {
	rep := models.AnalysisReport{
		Ticker:       series.Symbol(),
		Name:         models.TextFrom(profile.Name),
		CurrentPrice: currentPrice(series, profile),
		MarketCap:    models.MetricFrom(profile.MarketCap),
		PERatio:      models.MetricFrom(profile.PERatio),
		WeekHigh52:   models.MetricFrom(profile.WeekHigh52),
		WeekLow52:    models.MetricFrom(profile.WeekLow52),
		History:      a.history(series),
		Indicators:   snapshot,
	}
	if analysis == nil {
		return rep
	}

	fc := analysis.Forecast()
	rep.Forecast = &models.ForecastBlock{
		Strategy:  analysis.Strategy,
		Dates:     models.FormatDates(fc.Dates),
		Predicted: fc.Predicted,
		Actual:    fc.Actual,
	}
	switch {
	case analysis.Trend != nil:
		tr := analysis.Trend
		ind := tr.Indicators
		rep.Indicators = &ind
		rep.Recent = &models.RecentContext{
			Dates:  models.FormatDates(tr.RecentDates),
			Prices: tr.RecentCloses,
		}
	case analysis.Backtest != nil:
		bt := analysis.Backtest
		rep.Backtest = &models.BacktestSummary{
			TrainSize: bt.TrainSize,
			TestSize:  bt.TestSize,
			Epochs:    len(bt.EpochLoss),
			FinalLoss: lastOr(bt.EpochLoss, 0),
			RMSE:      bt.RMSE,
			MAE:       bt.MAE,
			Seed:      bt.Seed,
			EpochLoss: bt.EpochLoss,
		}
	}
	return rep
}

func (a *ReportAssembler) history(series models.PriceSeries) []models.HistoryRow {
	bars := series.Tail(a.recentHistory)
	out := make([]models.HistoryRow, len(bars))
	for i, b := range bars {
		out[i] = models.HistoryRow{
			Date:   b.Date.Format(models.DateLayout),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
	}
	return out
}

// currentPrice prefers the provider's live price and falls back to the last
// close.
func currentPrice(series models.PriceSeries, profile models.CompanyProfile) float64 {
	if profile.CurrentPrice.Valid {
		return profile.CurrentPrice.Float64
	}
	return series.Last().Close
}

func lastOr(xs []float64, def float64) float64 {
	if len(xs) == 0 {
		return def
	}
	return xs[len(xs)-1]
}
