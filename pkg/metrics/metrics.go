package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// durationBuckets spans sub-millisecond index reads up to multi-second
// bucket uploads.
var durationBuckets = []float64{
	100e-6, 500e-6, 1e-3, 5e-3, 1e-2, 5e-2, 1e-1, 2e-1, 3e-1, 4e-1, 5e-1,
	6e-1, 7e-1, 8e-1, 9e-1, 1.0, 5.0, 10.0,
}

var (
	// HTTP surface metrics
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "freighter_request_duration_seconds",
			Help:    "Request duration by response code and matched route",
			Buckets: durationBuckets,
		},
		[]string{"code", "endpoint"},
	)

	PanicsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "freighter_panics_total",
			Help: "Total number of panics caught in request handlers",
		},
	)

	// Publish pipeline error counters, broken down by phase and error kind
	PublishAuthErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freighter_publish_auth_errors_total",
			Help: "Publish authorization failures by error kind",
		},
		[]string{"error"},
	)

	PublishTarballErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freighter_publish_tarballs_errors_total",
			Help: "Publish tarball storage failures by error kind",
		},
		[]string{"error"},
	)

	PublishIndexErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freighter_publish_index_errors_total",
			Help: "Publish index failures by error kind",
		},
		[]string{"error"},
	)

	// PublishComponentDuration is reported by index backends that can break
	// a publication down into sub-components.
	PublishComponentDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "freighter_publish_component_duration_seconds",
			Help:    "Publish sub-component duration by component",
			Buckets: durationBuckets,
		},
		[]string{"component"},
	)

	HealthcheckFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freighter_healthcheck_failures_total",
			Help: "Healthcheck failures by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(PanicsTotal)
	prometheus.MustRegister(PublishAuthErrors)
	prometheus.MustRegister(PublishTarballErrors)
	prometheus.MustRegister(PublishIndexErrors)
	prometheus.MustRegister(PublishComponentDuration)
	prometheus.MustRegister(HealthcheckFailures)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
