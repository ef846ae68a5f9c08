package models

import (
	"fmt"
	"time"

	"github.com/guregu/null/v6"
)

// DateLayout is the wire format for every calendar date the service emits.
const DateLayout = "2006-01-02"

// Bar is one daily OHLCV record.
type Bar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// PriceSeries is an immutable, date-ordered OHLCV table for one symbol.
// Build it with NewPriceSeries so the ordering invariant holds.
type PriceSeries struct {
	symbol string
	bars   []Bar
}

// NewPriceSeries validates bars (dates strictly increasing) and returns a
// series that owns a private copy of them. A symbol without any history is
// reported as UnknownSymbolError.
func NewPriceSeries(symbol string, bars []Bar) (PriceSeries, error) {
	if len(bars) == 0 {
		return PriceSeries{}, &UnknownSymbolError{Symbol: symbol}
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Date.After(bars[i-1].Date) {
			return PriceSeries{}, &InvalidInputError{
				Field:  "series",
				Reason: fmt.Sprintf("dates not strictly increasing at index %d (%s after %s)", i, bars[i].Date.Format(DateLayout), bars[i-1].Date.Format(DateLayout)),
			}
		}
	}
	cp := make([]Bar, len(bars))
	copy(cp, bars)
	return PriceSeries{symbol: symbol, bars: cp}, nil
}

func (s PriceSeries) Symbol() string { return s.symbol }

func (s PriceSeries) Len() int { return len(s.bars) }

// Bar returns the i-th record.
func (s PriceSeries) Bar(i int) Bar { return s.bars[i] }

// Bars returns a copy of the records.
func (s PriceSeries) Bars() []Bar {
	cp := make([]Bar, len(s.bars))
	copy(cp, s.bars)
	return cp
}

// Last returns the most recent record. The series is never empty.
func (s PriceSeries) Last() Bar { return s.bars[len(s.bars)-1] }

// Closes returns the closing prices in date order.
func (s PriceSeries) Closes() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Close
	}
	return out
}

// Dates returns the record dates in order.
func (s PriceSeries) Dates() []time.Time {
	out := make([]time.Time, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Date
	}
	return out
}

// Tail returns the last n records (all of them when n <= 0 or n >= Len).
func (s PriceSeries) Tail(n int) []Bar {
	if n <= 0 || n >= len(s.bars) {
		return s.Bars()
	}
	cp := make([]Bar, n)
	copy(cp, s.bars[len(s.bars)-n:])
	return cp
}

// CompanyProfile is descriptive metadata passed through from the market-data
// provider. Fields the provider did not report stay invalid.
type CompanyProfile struct {
	Symbol       string
	Name         null.String
	Currency     null.String
	CurrentPrice null.Float
	MarketCap    null.Float
	PERatio      null.Float
	WeekHigh52   null.Float
	WeekLow52    null.Float
}
