package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type httpMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight prometheus.Gauge
	size     *prometheus.HistogramVec
}

var (
	reqMetrics     httpMetrics
	reqMetricsOnce sync.Once
)

func registerHTTPMetrics() {
	reqMetricsOnce.Do(func() {
		reqMetrics = httpMetrics{
			requests: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "fincast_http_requests_total",
				Help: "HTTP requests by route template and status.",
			}, []string{"route", "method", "status"}),
			latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name: "fincast_http_request_seconds",
				Help: "HTTP request latency. Analysis requests train models, so the tail is long.",
				// forecasts can run for tens of seconds
				Buckets: []float64{.005, .025, .1, .25, 1, 2.5, 10, 30, 60, 120},
			}, []string{"route", "method", "class"}),
			inFlight: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "fincast_http_in_flight_requests",
				Help: "Requests currently being served.",
			}),
			size: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "fincast_http_response_bytes",
				Help:    "Response body size.",
				Buckets: prometheus.ExponentialBuckets(256, 4, 8),
			}, []string{"route"}),
		}
	})
}

// Metrics records Prometheus request metrics labelled by route template so
// ticker query values never become label values.
func Metrics() echo.MiddlewareFunc {
	registerHTTPMetrics()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			reqMetrics.inFlight.Inc()
			defer reqMetrics.inFlight.Dec()
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			route, method := routeLabel(c), c.Request().Method
			code := c.Response().Status
			reqMetrics.requests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
			reqMetrics.latency.WithLabelValues(route, method, statusClass(code)).Observe(time.Since(start).Seconds())
			reqMetrics.size.WithLabelValues(route).Observe(float64(c.Response().Size))
			return nil
		}
	}
}

func routeLabel(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return "unmatched"
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}
