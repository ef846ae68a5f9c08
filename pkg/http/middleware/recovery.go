package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	applogger "FinCast/pkg/logger"
)

// Recover turns a handler panic into a logged 500.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	return echomw.RecoverWithConfig(echomw.RecoverConfig{
		StackSize: 8 << 10,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			l.Error("panic recovered",
				applogger.String("route", routeLabel(c)),
				applogger.Error(err),
				applogger.String("stack", string(stack)),
			)
			return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
		},
	})
}
