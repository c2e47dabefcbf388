package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// RequestsTotal counts HTTP requests by route pattern, method and status code.
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "medimage",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests, labeled by route, method and status.",
	}, []string{"route", "method", "status"})

	RequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "medimage",
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "Current number of HTTP requests being served.",
	})

	RequestDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "medimage",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency, labeled by route.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"route"})

	// AnalysesTotal counts finished analyses; result is "success" or the failure kind.
	AnalysesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "medimage",
		Subsystem: "analysis",
		Name:      "requests_total",
		Help:      "Total number of analysis requests by outcome.",
	}, []string{"result"})

	ModelDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "medimage",
		Subsystem: "analysis",
		Name:      "model_duration_seconds",
		Help:      "Time spent waiting on the model provider, labeled by shape.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"shape"})

	EventPublishErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "medimage",
		Subsystem: "analysis",
		Name:      "event_publish_errors_total",
		Help:      "Total number of analysis.completed events that could not be published.",
	})
)

// Register registers all collectors with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			RequestsTotal,
			RequestsInFlight,
			RequestDurationSeconds,
			AnalysesTotal,
			ModelDurationSeconds,
			EventPublishErrorsTotal,
		)
	})
}
