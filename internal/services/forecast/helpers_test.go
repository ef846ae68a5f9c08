package forecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
)

var day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func linearSeries(t *testing.T, n int, start, step float64) models.PriceSeries {
	t.Helper()
	bars := make([]models.Bar, n)
	for i := range bars {
		c := start + step*float64(i)
		bars[i] = models.Bar{
			Date:   day0.AddDate(0, 0, i),
			Open:   c - 0.5,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1000 + float64(i),
		}
	}
	s, err := models.NewPriceSeries("LIN", bars)
	require.NoError(t, err)
	return s
}

func days(n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = day0.AddDate(0, 0, i)
	}
	return out
}
