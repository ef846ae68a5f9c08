package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Ticker  string `query:"ticker" validate:"required,ticker"`
	Period  string `query:"period" validate:"required,oneof=1mo 1y"`
	Horizon int    `query:"horizon" default:"5" validate:"gte=1,lte=60"`
}

func bindQuery(t *testing.T, query string) (*sampleRequest, interface{}) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	c := e.NewContext(req, httptest.NewRecorder())
	out := &sampleRequest{}
	return out, ReadAndValidateRequest(c, out)
}

func TestReadAndValidateAppliesDefaults(t *testing.T) {
	req, verr := bindQuery(t, "ticker=BRK-B&period=1y")
	require.Nil(t, verr)
	assert.Equal(t, "BRK-B", req.Ticker)
	assert.Equal(t, 5, req.Horizon)
}

func TestReadAndValidateReportsQueryNames(t *testing.T) {
	_, verr := bindQuery(t, "ticker=AA%20PL&period=7w&horizon=99")
	errs, ok := verr.([]ValidationError)
	require.True(t, ok)
	require.Len(t, errs, 3)

	byField := map[string]ValidationError{}
	for _, e := range errs {
		byField[e.Field] = e
	}
	assert.Equal(t, "ERR_TICKER", byField["ticker"].Code)
	assert.Equal(t, "ERR_ONEOF", byField["period"].Code)
	assert.Equal(t, []string{"1mo", "1y"}, byField["period"].Params["options"])
	assert.Equal(t, "ERR_LTE", byField["horizon"].Code)
	assert.Equal(t, "horizon must be at most 60", byField["horizon"].Message)
}

func TestReadAndValidateBindError(t *testing.T) {
	_, verr := bindQuery(t, "ticker=AAPL&period=1y&horizon=abc")
	errs, ok := verr.([]ValidationError)
	require.True(t, ok)
	assert.Equal(t, "ERR_BIND", errs[0].Code)
}
