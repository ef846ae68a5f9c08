package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
)

func seriesOf(t *testing.T, closes ...float64) models.PriceSeries {
	t.Helper()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, len(closes))
	for i, c := range closes {
		bars[i] = models.Bar{Date: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1000}
	}
	s, err := models.NewPriceSeries("TEST", bars)
	require.NoError(t, err)
	return s
}

func TestComputeIndicatorsShortSeries(t *testing.T) {
	rows := ComputeIndicators(seriesOf(t, 10, 11, 12))
	require.Len(t, rows, 3)

	assert.False(t, rows[0].Return1D.Valid)
	assert.InDelta(t, 0.1, rows[1].Return1D.Float64, 1e-12)
	assert.InDelta(t, 1.0/11, rows[2].Return1D.Float64, 1e-12)
	for _, r := range rows {
		assert.False(t, r.SMAShort.Valid)
		assert.False(t, r.SMALong.Valid)
		assert.False(t, r.Return5D.Valid)
	}
}

func TestComputeIndicatorsWindows(t *testing.T) {
	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = float64(100 + i)
	}
	rows := ComputeIndicators(seriesOf(t, closes...))
	require.Len(t, rows, 25)

	for i, r := range rows {
		assert.Equal(t, i >= 4, r.SMAShort.Valid, "sma short at %d", i)
		assert.Equal(t, i >= 19, r.SMALong.Valid, "sma long at %d", i)
		assert.Equal(t, i >= 5, r.Return5D.Valid, "return 5d at %d", i)
	}
	assert.InDelta(t, 102.0, rows[4].SMAShort.Float64, 1e-9)
	assert.InDelta(t, 122.0, rows[24].SMAShort.Float64, 1e-9)
	assert.InDelta(t, 109.5, rows[19].SMALong.Float64, 1e-9)
	assert.InDelta(t, 114.5, rows[24].SMALong.Float64, 1e-9)
	assert.InDelta(t, 105.0/100-1, rows[5].Return5D.Float64, 1e-12)
}

func TestComputeIndicatorsSingleBar(t *testing.T) {
	rows := ComputeIndicators(seriesOf(t, 42))
	require.Len(t, rows, 1)
	snap := Latest(rows)
	assert.Equal(t, 42.0, snap.CurrentPrice)
	assert.False(t, snap.SMAShort.Valid)
	assert.False(t, snap.Return1D.Valid)
}

func TestPctChangeZeroBase(t *testing.T) {
	out := PctChange([]float64{0, 5, 10}, 1)
	assert.False(t, out[0].Valid)
	assert.False(t, out[1].Valid)
	assert.InDelta(t, 1.0, out[2].Float64, 1e-12)
}

func TestLatest(t *testing.T) {
	closes := make([]float64, 21)
	for i := range closes {
		closes[i] = 50
	}
	snap := Latest(ComputeIndicators(seriesOf(t, closes...)))
	assert.Equal(t, 50.0, snap.CurrentPrice)
	assert.InDelta(t, 50.0, snap.SMAShort.Float64, 1e-9)
	assert.InDelta(t, 50.0, snap.SMALong.Float64, 1e-9)
	assert.InDelta(t, 0.0, snap.Return1D.Float64, 1e-12)
	assert.True(t, snap.Return5D.Valid)
}
