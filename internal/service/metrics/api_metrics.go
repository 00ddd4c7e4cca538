package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "finfeat",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of pipeline API endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finfeat",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by pipeline API endpoint",
		},
		[]string{"endpoint"},
	)

	FetchRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finfeat",
			Subsystem: "fetch",
			Name:      "retries_total",
			Help:      "Exchange request retries",
		},
		[]string{"source"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(APILatency, APIErrors, FetchRetries)
	})
}
