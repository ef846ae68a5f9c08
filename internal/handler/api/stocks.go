package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/service/metrics"
	"FinCast/internal/usecase"
	xhttp "FinCast/pkg/http"
	xlogger "FinCast/pkg/logger"
)

// StockAnalysis is the usecase surface the HTTP layer needs.
type StockAnalysis interface {
	GetData(ctx context.Context, symbol string, period domrepo.Period) (*models.AnalysisReport, error)
	Analyze(ctx context.Context, p usecase.AnalysisParams) (*models.AnalysisReport, error)
	RecentForecasts(ctx context.Context, symbol string, limit int) ([]models.ForecastRunView, error)
}

// StocksHandler serves report and forecast endpoints.
type StocksHandler struct {
	logger *xlogger.Logger
	uc     StockAnalysis
}

func NewStocksHandler(logger *xlogger.Logger, uc StockAnalysis) *StocksHandler {
	metrics.Register()
	return &StocksHandler{logger: logger, uc: uc}
}

func (h *StocksHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/get_data", h.GetData)
	g.GET("/get_analysis", h.GetAnalysis)
	g.GET("/forecasts", h.Forecasts)
}

// GetData returns price history and profile without a forecast.
func (h *StocksHandler) GetData(c echo.Context) error {
	defer observe("get_data", time.Now())
	req := &models.DataRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.EndpointErrors.WithLabelValues("get_data", "ERR_VALIDATION").Inc()
		return xhttp.BadRequestResponse(c, verr)
	}

	rep, err := h.uc.GetData(c.Request().Context(), req.Ticker, domrepo.Period(req.Period))
	if err != nil {
		return h.fail(c, "get_data", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return c.JSON(http.StatusOK, rep)
}

// GetAnalysis returns the report with the configured strategy's forecast.
func (h *StocksHandler) GetAnalysis(c echo.Context) error {
	defer observe("get_analysis", time.Now())
	req := &models.AnalysisRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.EndpointErrors.WithLabelValues("get_analysis", "ERR_VALIDATION").Inc()
		return xhttp.BadRequestResponse(c, verr)
	}

	rep, err := h.uc.Analyze(c.Request().Context(), usecase.AnalysisParams{
		Symbol:  req.Ticker,
		Period:  domrepo.Period(req.Period),
		Horizon: req.Horizon,
	})
	if err != nil {
		return h.fail(c, "get_analysis", err)
	}
	return c.JSON(http.StatusOK, rep)
}

// Forecasts lists journaled runs for a ticker.
func (h *StocksHandler) Forecasts(c echo.Context) error {
	defer observe("forecasts", time.Now())
	req := &models.ForecastsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.EndpointErrors.WithLabelValues("forecasts", "ERR_VALIDATION").Inc()
		return xhttp.BadRequestResponse(c, verr)
	}

	runs, err := h.uc.RecentForecasts(c.Request().Context(), req.Ticker, req.Limit)
	if err != nil {
		return h.fail(c, "forecasts", err)
	}
	return xhttp.ListResponse(c, runs, int64(len(runs)))
}

func (h *StocksHandler) fail(c echo.Context, endpoint string, err error) error {
	appErr := toAppError(err)
	metrics.EndpointErrors.WithLabelValues(endpoint, appErr.Code).Inc()
	if appErr.Status >= 500 {
		h.logger.Error(endpoint+" usecase error", xlogger.Error(err))
	} else {
		h.logger.Debug(endpoint+" rejected", xlogger.String("code", appErr.Code), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func observe(endpoint string, start time.Time) {
	metrics.EndpointLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
