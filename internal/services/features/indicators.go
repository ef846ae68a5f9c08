package features

import (
	"github.com/guregu/null/v6"

	"FinCast/internal/domain/models"
)

// ComputeIndicators annotates every bar of the series with trailing SMA and
// return statistics. Output has one row per bar in the same order. Values
// that need more history than available are left invalid.
func ComputeIndicators(series models.PriceSeries) []models.IndicatorRow {
	closes := series.Closes()
	dates := series.Dates()
	short := RollingMean(closes, models.SMAShortWindow)
	long := RollingMean(closes, models.SMALongWindow)
	r1 := PctChange(closes, 1)
	r5 := PctChange(closes, models.ReturnLongLag)

	rows := make([]models.IndicatorRow, len(closes))
	for i := range closes {
		rows[i] = models.IndicatorRow{
			Date:     dates[i],
			Close:    closes[i],
			SMAShort: short[i],
			SMALong:  long[i],
			Return1D: r1[i],
			Return5D: r5[i],
		}
	}
	return rows
}

// Latest returns the indicator snapshot of the last row. rows must not be empty.
func Latest(rows []models.IndicatorRow) models.IndicatorSnapshot {
	last := rows[len(rows)-1]
	return models.IndicatorSnapshot{
		CurrentPrice: last.Close,
		SMAShort:     last.SMAShort,
		SMALong:      last.SMALong,
		Return1D:     last.Return1D,
		Return5D:     last.Return5D,
	}
}

// RollingMean computes the trailing mean over window values inclusive of the
// current one. The first window-1 entries are invalid.
func RollingMean(xs []float64, window int) []null.Float {
	out := make([]null.Float, len(xs))
	if window <= 0 {
		return out
	}
	sum := 0.0
	for i, x := range xs {
		sum += x
		if i >= window {
			sum -= xs[i-window]
		}
		if i >= window-1 {
			out[i] = null.FloatFrom(sum / float64(window))
		}
	}
	return out
}

// PctChange computes xs[t]/xs[t-lag] - 1. Entries without a predecessor or
// with a zero base are invalid.
func PctChange(xs []float64, lag int) []null.Float {
	out := make([]null.Float, len(xs))
	if lag <= 0 {
		return out
	}
	for i := lag; i < len(xs); i++ {
		base := xs[i-lag]
		if base == 0 {
			continue
		}
		out[i] = null.FloatFrom(xs[i]/base - 1)
	}
	return out
}
