package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDay(t *testing.T) {
	want := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
	unix := strconv.FormatInt(time.Date(2024, 10, 10, 15, 30, 0, 0, time.UTC).Unix(), 10)

	for _, s := range []string{"2024-10-10", "2024-10-10T10:10:10Z", "2024-10-10T10:10:10.123456789Z", unix} {
		got, err := ParseDay(s)
		require.NoError(t, err, s)
		assert.True(t, got.Equal(want), "%s -> %v", s, got)
	}

	_, err := ParseDay("")
	assert.Error(t, err)
	_, err = ParseDay("10/10/2024")
	assert.Error(t, err)
}

func TestParseDaysReportsIndex(t *testing.T) {
	_, err := ParseDays([]string{"2024-01-02", "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "date 1")

	ds, err := ParseDays([]string{"2024-01-02", "2024-01-03"})
	require.NoError(t, err)
	assert.Len(t, ds, 2)
}

func TestMarketDayUsesExchangeOffset(t *testing.T) {
	// 2024-03-05 03:00 UTC is still March 4 in New York (UTC-5).
	ts := time.Date(2024, 3, 5, 3, 0, 0, 0, time.UTC).Unix()
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), MarketDay(ts, -5*3600))
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), MarketDay(ts, 0))
}
