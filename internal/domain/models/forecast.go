package models

import "time"

// Strategy names a forecasting pipeline variant.
type Strategy string

const (
	StrategyTrend    Strategy = "trend"
	StrategySequence Strategy = "sequence"
)

// IsValid reports whether s is a known strategy.
func (s Strategy) IsValid() bool {
	return s == StrategyTrend || s == StrategySequence
}

// Window is one supervised sample: NSteps contiguous feature rows and the
// target value on the last of them.
type Window struct {
	Features  [][]float64
	Label     float64
	LabelDate time.Time
}

// SplitResult is a chronological train/test partition of windows.
type SplitResult struct {
	Train     []Window
	Test      []Window
	TestDates []time.Time
}

// ForecastResult holds predictions aligned to dates. Actual is only set by
// backtesting strategies.
type ForecastResult struct {
	Dates     []time.Time
	Predicted []float64
	Actual    []float64
}

// Len returns the number of forecast points.
func (f ForecastResult) Len() int { return len(f.Predicted) }

// HasActual reports whether true values are attached.
func (f ForecastResult) HasActual() bool { return f.Actual != nil }

// TrendForecast is the output of the linear-trend extrapolator.
type TrendForecast struct {
	Forecast     ForecastResult
	Slope        float64
	Intercept    float64
	Indicators   IndicatorSnapshot
	RecentDates  []time.Time
	RecentCloses []float64
}

// Backtest is the output of the sequence-model strategy: predictions for
// held-out historical dates plus fit diagnostics.
type Backtest struct {
	Forecast  ForecastResult
	EpochLoss []float64
	TrainSize int
	TestSize  int
	RMSE      float64
	MAE       float64
	Seed      int64
}

// Analysis is what a forecaster hands to the assembler. Exactly one of Trend
// or Backtest is set.
type Analysis struct {
	Strategy Strategy
	Trend    *TrendForecast
	Backtest *Backtest
}

// Forecast returns the forecast carried by whichever variant is set.
func (a Analysis) Forecast() ForecastResult {
	switch {
	case a.Trend != nil:
		return a.Trend.Forecast
	case a.Backtest != nil:
		return a.Backtest.Forecast
	default:
		return ForecastResult{}
	}
}

// ForecastRun is a journal entry for one completed forecast.
type ForecastRun struct {
	ID        string
	Symbol    string
	Period    string
	Strategy  Strategy
	CreatedAt time.Time
	Dates     []time.Time
	Predicted []float64
	Actual    []float64
	RMSE      float64
	MAE       float64
}

// ForecastEvent is published after each completed analysis.
type ForecastEvent struct {
	RunID     string    `json:"run_id"`
	Symbol    string    `json:"symbol"`
	Period    string    `json:"period"`
	Strategy  Strategy  `json:"strategy"`
	Points    int       `json:"points"`
	LastClose float64   `json:"last_close"`
	FirstPred float64   `json:"first_predicted"`
	CreatedAt time.Time `json:"created_at"`
}
