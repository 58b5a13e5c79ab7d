// Package metrics provides Prometheus-based metrics collection for patchpilot.
// This complements the lightweight in-process registry with industry-standard
// Prometheus collectors for scrape-based observability.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace for all patchpilot metrics
	namespace = "patchpilot"

	// Subsystems
	subsystemScan     = "scan"
	subsystemLookup   = "lookup"
	subsystemAdvisory = "advisory"
	subsystemStore    = "store"
	subsystemAPI      = "api"
)

// PrometheusMetrics holds all Prometheus metric collectors.
type PrometheusMetrics struct {
	// Scan metrics
	scansTotal       *prometheus.CounterVec
	scanDuration     prometheus.Histogram
	servicesEnriched *prometheus.CounterVec

	// Lookup metrics
	lookupsTotal   *prometheus.CounterVec
	lookupDuration prometheus.Histogram
	cvesFound      prometheus.Counter

	// Advisory metrics
	advisoriesTotal  *prometheus.CounterVec
	advisoryDuration *prometheus.HistogramVec

	// Store metrics
	storeOps      *prometheus.CounterVec
	reportsStored prometheus.Gauge

	// API metrics
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	startTime time.Time
	registry  *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance with all collectors.
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	pm := &PrometheusMetrics{
		startTime: time.Now(),
		registry:  registry,
	}

	pm.scansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "total",
			Help:      "Total number of scan reports processed by status",
		},
		[]string{"status"},
	)

	pm.scanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "duration_seconds",
			Help:      "Duration of full enrichment runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0, 120.0, 300.0},
		},
	)

	pm.servicesEnriched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "services_enriched_total",
			Help:      "Total number of services enriched by severity",
		},
		[]string{"severity"},
	)

	pm.lookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemLookup,
			Name:      "total",
			Help:      "Total number of vulnerability catalog lookups by status",
		},
		[]string{"status"},
	)

	pm.lookupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemLookup,
			Name:      "duration_seconds",
			Help:      "Duration of vulnerability catalog lookups in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
	)

	pm.cvesFound = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemLookup,
			Name:      "cves_found_total",
			Help:      "Total number of CVE summaries returned by the catalog",
		},
	)

	pm.advisoriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemAdvisory,
			Name:      "total",
			Help:      "Total number of advisory generations by operation and status",
		},
		[]string{"operation", "status"},
	)

	pm.advisoryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemAdvisory,
			Name:      "duration_seconds",
			Help:      "Duration of advisory generation calls in seconds",
			Buckets:   []float64{0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
		},
		[]string{"operation"},
	)

	pm.storeOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemStore,
			Name:      "operations_total",
			Help:      "Total number of report store operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	pm.reportsStored = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemStore,
			Name:      "reports",
			Help:      "Number of reports currently held by the store",
		},
	)

	pm.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{"method", "status"},
	)

	pm.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	registry.MustRegister(
		pm.scansTotal,
		pm.scanDuration,
		pm.servicesEnriched,
		pm.lookupsTotal,
		pm.lookupDuration,
		pm.cvesFound,
		pm.advisoriesTotal,
		pm.advisoryDuration,
		pm.storeOps,
		pm.reportsStored,
		pm.httpRequests,
		pm.httpDuration,
	)

	// Register standard Go and process collectors for runtime visibility
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return pm
}

// Handler returns an HTTP handler serving the Prometheus text exposition format.
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (pm *PrometheusMetrics) Registry() *prometheus.Registry {
	return pm.registry
}

// ObserveScan records one completed pipeline run.
func (pm *PrometheusMetrics) ObserveScan(status string, duration time.Duration) {
	pm.scansTotal.WithLabelValues(status).Inc()
	pm.scanDuration.Observe(duration.Seconds())
}

// ObserveServiceEnriched records one enriched service by severity.
func (pm *PrometheusMetrics) ObserveServiceEnriched(severity string) {
	pm.servicesEnriched.WithLabelValues(severity).Inc()
}

// ObserveLookup records one vulnerability catalog lookup.
func (pm *PrometheusMetrics) ObserveLookup(status string, duration time.Duration, cveCount int) {
	pm.lookupsTotal.WithLabelValues(status).Inc()
	pm.lookupDuration.Observe(duration.Seconds())
	pm.cvesFound.Add(float64(cveCount))
}

// ObserveAdvisory records one advisory generation call.
func (pm *PrometheusMetrics) ObserveAdvisory(operation, status string, duration time.Duration) {
	pm.advisoriesTotal.WithLabelValues(operation, status).Inc()
	pm.advisoryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveStoreOp records one report store operation.
func (pm *PrometheusMetrics) ObserveStoreOp(operation string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	pm.storeOps.WithLabelValues(operation, status).Inc()
}

// SetStoredReports sets the stored-report gauge.
func (pm *PrometheusMetrics) SetStoredReports(count int) {
	pm.reportsStored.Set(float64(count))
}

// ObserveHTTPRequest records one HTTP request.
func (pm *PrometheusMetrics) ObserveHTTPRequest(method, status string, duration time.Duration) {
	pm.httpRequests.WithLabelValues(method, status).Inc()
	pm.httpDuration.WithLabelValues(method).Observe(duration.Seconds())
}
