package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"FinFeat/internal/domain/repository"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	candlesFetched *prometheus.CounterVec
	skipped        *prometheus.CounterVec
	samples        *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
}

// New registers the recorder on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the recorder on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		candlesFetched: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finfeat_candles_fetched_total",
				Help: "Candles fetched per source and instrument",
			},
			[]string{"source", "symbol"},
		),
		skipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finfeat_instruments_skipped_total",
				Help: "Instruments dropped from a build",
			},
			[]string{"family", "reason"},
		),
		samples: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finfeat_samples_total",
				Help: "Labeled samples emitted per family and class",
			},
			[]string{"family", "label"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finfeat_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finfeat_operation_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordCandlesFetched(source, symbol string, n int) {
	r.candlesFetched.WithLabelValues(source, symbol).Add(float64(n))
}

func (r *Recorder) RecordInstrumentSkipped(family, reason string) {
	r.skipped.WithLabelValues(family, reason).Inc()
}

func (r *Recorder) RecordSamples(family, label string, n int) {
	r.samples.WithLabelValues(family, label).Add(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

var _ repository.Metrics = (*Recorder)(nil)
