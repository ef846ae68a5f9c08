package repository

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
	applogger "FinCast/pkg/logger"
	pkgsqlite "FinCast/pkg/sqlite"
)

func newTestSQLiteJournal(t *testing.T) *SQLiteJournal {
	t.Helper()
	c, err := pkgsqlite.Open(t.Context(), pkgsqlite.WithPath(filepath.Join(t.TempDir(), "journal.db")))
	require.NoError(t, err)
	j := NewSQLiteJournal(c, applogger.NewNop())
	require.NoError(t, j.Init(t.Context()))
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestSQLiteJournalRoundTrip(t *testing.T) {
	j := newTestSQLiteJournal(t)
	ctx := t.Context()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	trend := models.ForecastRun{
		ID:        "a",
		Symbol:    "AAPL",
		Period:    "1mo",
		Strategy:  models.StrategyTrend,
		CreatedAt: base,
		Dates:     []time.Time{time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)},
		Predicted: []float64{101.5, 102.25},
	}
	seq := models.ForecastRun{
		ID:        "b",
		Symbol:    "AAPL",
		Period:    "1y",
		Strategy:  models.StrategySequence,
		CreatedAt: base.Add(time.Hour),
		Dates:     []time.Time{time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC)},
		Predicted: []float64{99},
		Actual:    []float64{100},
		RMSE:      1,
		MAE:       1,
	}
	other := trend
	other.ID, other.Symbol = "c", "MSFT"

	for _, r := range []models.ForecastRun{trend, seq, other} {
		require.NoError(t, j.Record(ctx, r))
	}

	got, err := j.Recent(ctx, "AAPL", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, models.StrategySequence, got[0].Strategy)
	assert.Equal(t, []float64{100}, got[0].Actual)
	assert.InDelta(t, 1.0, got[0].RMSE, 1e-12)

	assert.Equal(t, "a", got[1].ID)
	assert.Nil(t, got[1].Actual)
	assert.Equal(t, trend.Predicted, got[1].Predicted)
	assert.Equal(t, trend.Dates, got[1].Dates)
	assert.True(t, got[1].CreatedAt.Equal(base))

	limited, err := j.Recent(ctx, "AAPL", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "b", limited[0].ID)
}

func TestSQLiteJournalDuplicateID(t *testing.T) {
	j := newTestSQLiteJournal(t)
	run := models.ForecastRun{ID: "x", Symbol: "IBM", Period: "1mo", Strategy: models.StrategyTrend, CreatedAt: time.Now()}
	require.NoError(t, j.Record(t.Context(), run))
	assert.Error(t, j.Record(t.Context(), run))
}

func TestNoopJournal(t *testing.T) {
	var j NoopJournal
	require.NoError(t, j.Record(t.Context(), models.ForecastRun{ID: "x"}))
	got, err := j.Recent(t.Context(), "X", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}
