package models

import (
	"encoding/json"
	"time"

	"github.com/guregu/null/v6"
)

const unknownMarker = `"N/A"`

// Metric is a provider-sourced number that serializes as "N/A" when unknown.
type Metric struct {
	null.Float
}

// MetricFrom wraps a nullable float.
func MetricFrom(f null.Float) Metric { return Metric{Float: f} }

func (m Metric) MarshalJSON() ([]byte, error) {
	if !m.Valid {
		return []byte(unknownMarker), nil
	}
	return json.Marshal(m.Float64)
}

// Text is a provider-sourced string that serializes as "N/A" when unknown.
type Text struct {
	null.String
}

// TextFrom wraps a nullable string.
func TextFrom(s null.String) Text { return Text{String: s} }

func (t Text) MarshalJSON() ([]byte, error) {
	if t.ValueOrZero() == "" {
		return []byte(unknownMarker), nil
	}
	return json.Marshal(t.ValueOrZero())
}

// HistoryRow is the wire shape of one bar.
type HistoryRow struct {
	Date   string  `json:"Date"`
	Open   float64 `json:"Open"`
	High   float64 `json:"High"`
	Low    float64 `json:"Low"`
	Close  float64 `json:"Close"`
	Volume float64 `json:"Volume"`
}

// ForecastBlock is the wire shape of a ForecastResult.
type ForecastBlock struct {
	Strategy  Strategy  `json:"Strategy"`
	Dates     []string  `json:"Dates"`
	Predicted []float64 `json:"Predicted Values"`
	Actual    []float64 `json:"True Values,omitempty"`
}

// RecentContext is the tail of closes a trend forecast was read against.
type RecentContext struct {
	Dates  []string  `json:"Dates"`
	Prices []float64 `json:"Prices"`
}

// BacktestSummary carries sequence-model fit diagnostics.
type BacktestSummary struct {
	TrainSize int       `json:"Train Size"`
	TestSize  int       `json:"Test Size"`
	Epochs    int       `json:"Epochs"`
	FinalLoss float64   `json:"Final Loss"`
	RMSE      float64   `json:"RMSE"`
	MAE       float64   `json:"MAE"`
	Seed      int64     `json:"Seed"`
	EpochLoss []float64 `json:"Epoch Loss,omitempty"`
}

// AnalysisReport is the response object for one symbol.
type AnalysisReport struct {
	Ticker       string             `json:"Ticker"`
	Name         Text               `json:"Name"`
	CurrentPrice float64            `json:"Current Price"`
	MarketCap    Metric             `json:"Market Cap"`
	PERatio      Metric             `json:"PE Ratio"`
	WeekHigh52   Metric             `json:"52 Week High"`
	WeekLow52    Metric             `json:"52 Week Low"`
	History      []HistoryRow       `json:"Recent History"`
	Indicators   *IndicatorSnapshot `json:"Indicators,omitempty"`
	Recent       *RecentContext     `json:"Recent Context,omitempty"`
	Forecast     *ForecastBlock     `json:"Forecast,omitempty"`
	Backtest     *BacktestSummary   `json:"Backtest,omitempty"`
}

// ForecastRunView is the wire shape of a journal entry.
type ForecastRunView struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Period    string    `json:"period"`
	Strategy  Strategy  `json:"strategy"`
	CreatedAt time.Time `json:"created_at"`
	Dates     []string  `json:"dates"`
	Predicted []float64 `json:"predicted"`
	Actual    []float64 `json:"actual,omitempty"`
	RMSE      float64   `json:"rmse"`
	MAE       float64   `json:"mae"`
}

// FormatDates renders dates in DateLayout.
func FormatDates(ds []time.Time) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Format(DateLayout)
	}
	return out
}

// View converts a run to its wire shape.
func (r ForecastRun) View() ForecastRunView {
	return ForecastRunView{
		ID:        r.ID,
		Symbol:    r.Symbol,
		Period:    r.Period,
		Strategy:  r.Strategy,
		CreatedAt: r.CreatedAt,
		Dates:     FormatDates(r.Dates),
		Predicted: r.Predicted,
		Actual:    r.Actual,
		RMSE:      r.RMSE,
		MAE:       r.MAE,
	}
}
