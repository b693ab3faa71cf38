package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector is the Prometheus-backed instrumentation for the experiments
// service. Experiment IDs are used as label values; the platform caps the
// number of live experiments well below cardinality trouble.
type Collector struct {
	registry *prometheus.Registry

	assignmentsResolved *prometheus.CounterVec
	conflictsRecovered  *prometheus.CounterVec
	eventsRecorded      *prometheus.CounterVec
	resultsComputed     *prometheus.CounterVec
	exportsCompleted    prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "variant"
	}
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		assignmentsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assignments",
			Name:      "resolved_total",
			Help:      "Total assignment resolutions by experiment and outcome (new,existing).",
		}, []string{"experiment_id", "outcome"}),
		conflictsRecovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assignments",
			Name:      "conflicts_recovered_total",
			Help:      "Concurrent assignment inserts that lost the race and re-read the winner.",
		}, []string{"experiment_id"}),
		eventsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "recorded_total",
			Help:      "Total events recorded by type.",
		}, []string{"event_type"}),
		resultsComputed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "results",
			Name:      "computed_total",
			Help:      "Total result sets computed by response format.",
		}, []string{"format"}),
		exportsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exports",
			Name:      "completed_total",
			Help:      "Total export bundles uploaded.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by method and status.",
		}, []string{"method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds by method.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms .. ~8s
		}, []string{"method"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.assignmentsResolved,
		c.conflictsRecovered,
		c.eventsRecorded,
		c.resultsComputed,
		c.exportsCompleted,
		c.httpRequests,
		c.httpDuration,
	)
	return c
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) AssignmentResolved(experimentID string, isNew bool) {
	outcome := "existing"
	if isNew {
		outcome = "new"
	}
	c.assignmentsResolved.WithLabelValues(experimentID, outcome).Inc()
}

func (c *Collector) ConflictRecovered(experimentID string) {
	c.conflictsRecovered.WithLabelValues(experimentID).Inc()
}

func (c *Collector) EventRecorded(eventType string) {
	c.eventsRecorded.WithLabelValues(eventType).Inc()
}

func (c *Collector) ResultsComputed(_ string, format string) {
	c.resultsComputed.WithLabelValues(format).Inc()
}

func (c *Collector) ExportCompleted() {
	c.exportsCompleted.Inc()
}

func (c *Collector) ObserveHTTPRequest(method string, status int, elapsed time.Duration) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}
