package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	EndpointLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fincast",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of stock endpoints",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"endpoint"},
	)

	EndpointErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fincast",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by stock endpoint and error code",
		},
		[]string{"endpoint", "code"},
	)

	StreamSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fincast",
			Subsystem: "api",
			Name:      "stream_sessions",
			Help:      "Open analysis websocket sessions",
		},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(EndpointLatency, EndpointErrors, StreamSessions)
	})
}
