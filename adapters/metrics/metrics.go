// Package metrics provides Prometheus metrics collection for ondemand.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ondemand"

// Collector holds all Prometheus metrics for ondemand.
type Collector struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Model metrics
	Registrations  *prometheus.CounterVec
	Discoveries    *prometheus.CounterVec
	MountedModels  prometheus.Gauge
	ArtifactEvents *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates a new metrics collector registered with the default registry.
func New() *Collector {
	return newCollector(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg *prometheus.Registry) *Collector {
	return newCollector(reg, reg)
}

func newCollector(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of requests processed",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "requests_in_flight",
				Help:      "Number of requests currently being processed",
			},
		),
		Registrations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registrations_total",
				Help:      "Model registrations by result",
			},
			[]string{"result"},
		),
		Discoveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "discoveries_total",
				Help:      "Models mounted from stored artifacts by result",
			},
			[]string{"result"},
		),
		MountedModels: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "mounted_models",
				Help:      "Number of models currently served",
			},
		),
		ArtifactEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artifact_events_total",
				Help:      "Artifact directory events handled by the watcher",
			},
			[]string{"result"},
		),
		gatherer: gatherer,
	}
}

// RegistrationObserved counts a registration outcome.
func (c *Collector) RegistrationObserved(result string) {
	c.Registrations.WithLabelValues(result).Inc()
}

// DiscoveryObserved counts a discovery outcome.
func (c *Collector) DiscoveryObserved(result string) {
	c.Discoveries.WithLabelValues(result).Inc()
}

// ModelsMounted sets the mounted model gauge.
func (c *Collector) ModelsMounted(n int) {
	c.MountedModels.Set(float64(n))
}

// ArtifactEventObserved counts a watcher event outcome.
func (c *Collector) ArtifactEventObserved(result string) {
	c.ArtifactEvents.WithLabelValues(result).Inc()
}

// Handler returns the scrape handler for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// NormalizePath reduces cardinality by replacing the item segment of
// generated routes: /book/17 -> /book/{id}.
func NormalizePath(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "/"
	}

	parts := strings.Split(trimmed, "/")
	switch {
	case len(parts) == 2 && !isFixedPrefix(parts[0]):
		return "/" + parts[0] + "/{id}"
	case len(parts) > 2:
		return "/" + parts[0] + "/..."
	}

	if len(path) > 50 {
		return path[:50] + "..."
	}
	return path
}

// isFixedPrefix reports whether the first segment belongs to a built-in route.
func isFixedPrefix(seg string) bool {
	switch seg {
	case "rest", "_schema":
		return true
	}
	return false
}
