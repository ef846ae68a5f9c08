package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	applogger "FinCast/pkg/logger"
)

// RequestLogging writes one line per request: errors and 5xx at error level,
// requests slower than slow at warn, the rest at debug.
func RequestLogging(l *applogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		HandleError:     true,
		LogMethod:       true,
		LogURI:          true,
		LogRoutePath:    true,
		LogStatus:       true,
		LogLatency:      true,
		LogRemoteIP:     true,
		LogResponseSize: true,
		LogError:        true,
		LogValuesFunc: func(_ echo.Context, v echomw.RequestLoggerValues) error {
			fields := []applogger.Field{
				applogger.String("method", v.Method),
				applogger.String("uri", v.URI),
				applogger.String("route", v.RoutePath),
				applogger.String("remote", v.RemoteIP),
				applogger.Int("status", v.Status),
				applogger.Duration("latency_ms", v.Latency),
				applogger.Int64("bytes", v.ResponseSize),
			}
			if v.Error != nil {
				fields = append(fields, applogger.Error(v.Error))
			}
			switch {
			case v.Status >= 500:
				l.Error("http request failed", fields...)
			case slow > 0 && v.Latency >= slow:
				l.Warn("http request slow", fields...)
			default:
				l.Debug("http request", fields...)
			}
			return nil
		},
	})
}
