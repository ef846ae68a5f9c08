package forecast

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
)

func table(n int) ([][]float64, []float64) {
	feats := make([][]float64, n)
	target := make([]float64, n)
	for i := 0; i < n; i++ {
		feats[i] = []float64{float64(i), float64(10 * i)}
		target[i] = float64(100 + i)
	}
	return feats, target
}

func TestLSTMSplitShape(t *testing.T) {
	feats, target := table(10)
	ws, err := LSTMSplit(feats, target, days(10), 2)
	require.NoError(t, err)
	require.Len(t, ws, 9)

	for i, w := range ws {
		require.Len(t, w.Features, 2)
		assert.Equal(t, feats[i], w.Features[0])
		assert.Equal(t, feats[i+1], w.Features[1])
		assert.Equal(t, target[i+1], w.Label)
		assert.Equal(t, day0.AddDate(0, 0, i+1), w.LabelDate)
	}
}

func TestLSTMSplitExactLength(t *testing.T) {
	feats, target := table(3)
	ws, err := LSTMSplit(feats, target, days(3), 3)
	require.NoError(t, err)
	require.Len(t, ws, 1)
	assert.Equal(t, 102.0, ws[0].Label)
}

func TestLSTMSplitErrors(t *testing.T) {
	feats, target := table(3)

	_, err := LSTMSplit(feats, target, days(3), 4)
	var insufficient *models.InsufficientDataError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 4, insufficient.Need)
	assert.Equal(t, 3, insufficient.Have)

	_, err = LSTMSplit(feats, target, days(3), 0)
	var invalid *models.InvalidInputError
	assert.True(t, errors.As(err, &invalid))

	_, err = LSTMSplit(feats, target[:2], days(3), 1)
	assert.True(t, errors.As(err, &invalid))
}

func TestSplitIndex(t *testing.T) {
	cases := []struct {
		total    int
		fraction float64
		want     int
	}{
		{10, 0.8, 8},
		{9, 0.8, 8},
		{5, 0.8, 4},
		{4, 0.8, 4},
		{1, 0.5, 1},
		{7, 1, 7},
		{0, 0.8, 0},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, SplitIndex(c.total, c.fraction), "total=%d fraction=%v", c.total, c.fraction)
	}
}

func TestChronologicalSplit(t *testing.T) {
	feats, target := table(11)
	ws, err := LSTMSplit(feats, target, days(11), 2)
	require.NoError(t, err)
	require.Len(t, ws, 10)

	res, err := ChronologicalSplit(ws, 0.8)
	require.NoError(t, err)
	assert.Len(t, res.Train, 8)
	assert.Len(t, res.Test, 2)
	assert.Equal(t, []float64{109, 110}, []float64{res.Test[0].Label, res.Test[1].Label})
	require.Len(t, res.TestDates, 2)
	assert.Equal(t, ws[8].LabelDate, res.TestDates[0])

	// every train label precedes every test label
	assert.True(t, res.Train[len(res.Train)-1].LabelDate.Before(res.Test[0].LabelDate))
}

func TestChronologicalSplitFraction(t *testing.T) {
	feats, target := table(5)
	ws, err := LSTMSplit(feats, target, days(5), 1)
	require.NoError(t, err)

	res, err := ChronologicalSplit(ws, 1)
	require.NoError(t, err)
	assert.Len(t, res.Train, 5)
	assert.Empty(t, res.Test)

	for _, f := range []float64{0, -0.1, 1.5} {
		_, err := ChronologicalSplit(ws, f)
		var invalid *models.InvalidInputError
		assert.True(t, errors.As(err, &invalid), "fraction %v", f)
	}
}

func TestAlignDates(t *testing.T) {
	ds := days(5)
	assert.Equal(t, ds[:3], AlignDates(ds, 3))
	assert.Equal(t, ds, AlignDates(ds, 9))
	assert.Empty(t, AlignDates(ds, 0))
}
