package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/service/metrics"
	"FinCast/internal/usecase"
	xhttp "FinCast/pkg/http"
	xlogger "FinCast/pkg/logger"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPingPeriod = 30 * time.Second
	progressBuffer   = 64
)

// StreamEvent is one websocket frame of an analysis session.
type StreamEvent struct {
	Type   string                 `json:"type"` // progress | result | error
	Epoch  int                    `json:"epoch,omitempty"`
	Loss   float64                `json:"loss,omitempty"`
	Report *models.AnalysisReport `json:"report,omitempty"`
	Error  *xhttp.AppError        `json:"error,omitempty"`
}

// StreamHandler runs one analysis per websocket connection and streams
// training progress followed by the report.
type StreamHandler struct {
	logger   *xlogger.Logger
	uc       StockAnalysis
	upgrader websocket.Upgrader
}

func NewStreamHandler(logger *xlogger.Logger, uc StockAnalysis, allowOrigins []string) *StreamHandler {
	metrics.Register()
	return &StreamHandler{
		logger: logger,
		uc:     uc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowOrigins),
		},
	}
}

func (h *StreamHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/analysis", h.Analysis)
}

// Analysis validates the query before upgrading so bad requests get a
// normal 400 response.
func (h *StreamHandler) Analysis(c echo.Context) error {
	req := &models.AnalysisRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil // upgrader already wrote the response
	}
	defer conn.Close()
	metrics.StreamSessions.Inc()
	defer metrics.StreamSessions.Dec()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	// reader: detect client close and cancel the run
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	events := make(chan StreamEvent, progressBuffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(ctx, conn, events)
	}()

	rep, err := h.uc.Analyze(ctx, usecase.AnalysisParams{
		Symbol:  req.Ticker,
		Period:  domrepo.Period(req.Period),
		Horizon: req.Horizon,
		Progress: func(epoch int, loss float64) {
			// drop progress frames rather than stall training on a slow client
			select {
			case events <- StreamEvent{Type: "progress", Epoch: epoch, Loss: loss}:
			default:
			}
		},
	})
	if err != nil {
		appErr := toAppError(err)
		h.logger.Debug("stream analysis failed", xlogger.String("code", appErr.Code), xlogger.Error(err))
		events <- StreamEvent{Type: "error", Error: appErr}
	} else {
		events <- StreamEvent{Type: "result", Report: rep}
	}
	close(events)
	<-done

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(streamWriteWait))
	return nil
}

func (h *StreamHandler) writeLoop(ctx context.Context, conn *websocket.Conn, events <-chan StreamEvent) {
	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("websocket write failed", xlogger.Error(err))
				drain(events)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				drain(events)
				return
			}
		case <-ctx.Done():
			drain(events)
			return
		}
	}
}

func drain(events <-chan StreamEvent) {
	for range events {
	}
}

func originChecker(allow []string) func(*http.Request) bool {
	for _, o := range allow {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	set := make(map[string]struct{}, len(allow))
	for _, o := range allow {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
