package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	forecasts    *prometheus.CounterVec
	stageLatency *prometheus.HistogramVec
	trainingLoss *prometheus.GaugeVec
	fetchLatency *prometheus.HistogramVec
	fetchErrors  *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		forecasts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fincast_forecasts_total",
				Help: "Forecast runs by strategy and result",
			},
			[]string{"strategy", "result"},
		),
		stageLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fincast_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),
		trainingLoss: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fincast_training_final_loss",
				Help: "Final-epoch training loss of the last sequence fit per symbol",
			},
			[]string{"symbol"},
		),
		fetchLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fincast_marketdata_fetch_seconds",
				Help:    "Market-data provider call latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		fetchErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fincast_marketdata_fetch_errors_total",
				Help: "Failed market-data provider calls",
			},
			[]string{"source"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fincast_cache_lookups_total",
				Help: "Market-data cache lookups by kind and result",
			},
			[]string{"kind", "result"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fincast_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

// RecordForecast counts a finished forecast run.
func (r *Recorder) RecordForecast(strategy, result string) {
	r.forecasts.WithLabelValues(strategy, result).Inc()
}

// RecordStageLatency records pipeline stage latency in seconds.
func (r *Recorder) RecordStageLatency(stage string, seconds float64) {
	r.stageLatency.WithLabelValues(stage).Observe(seconds)
}

// RecordTrainingLoss sets the last final-epoch loss for a symbol.
func (r *Recorder) RecordTrainingLoss(symbol string, loss float64) {
	r.trainingLoss.WithLabelValues(symbol).Set(loss)
}

// RecordFetch records one provider call.
func (r *Recorder) RecordFetch(source string, seconds float64, err error) {
	r.fetchLatency.WithLabelValues(source).Observe(seconds)
	if err != nil {
		r.fetchErrors.WithLabelValues(source).Inc()
	}
}

// RecordCache records a cache hit or miss.
func (r *Recorder) RecordCache(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(kind, result).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
