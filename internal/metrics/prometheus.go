// Package metrics exposes the service metrics of the embodied flows server.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	embodiedflows "github.com/superdango/embodied-flows"
)

var (
	// HTTPRequestsTotal counts handled requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epic_http_requests_total",
			Help: "Total number of HTTP requests handled",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "epic_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// AnalysesTotal counts analysis runs by outcome (ok, invalid, error)
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epic_analyses_total",
			Help: "Total number of analyses run",
		},
		[]string{"status"},
	)

	AnalysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "epic_analysis_duration_seconds",
			Help:    "Duration of analyses",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	AnalysisItems = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "epic_analysis_items",
			Help:    "Number of items per analysis",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	// AnalysisErrorsTotal counts rejected analyses by error kind
	AnalysisErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epic_analysis_errors_total",
			Help: "Total number of analysis errors",
		},
		[]string{"kind"},
	)

	CatalogMaterials = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "epic_catalog_materials",
			Help: "Number of materials in the last loaded catalog",
		},
		[]string{"source"},
	)

	CatalogLoadErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epic_catalog_load_errors_total",
			Help: "Total number of failed catalog loads",
		},
		[]string{"source"},
	)
)

// RecordHTTPRequest records a handled request
func RecordHTTPRequest(route, method string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordAnalysis records the outcome of an analysis. result may be nil when err is set.
func RecordAnalysis(result *embodiedflows.Result, err error, duration time.Duration) {
	AnalysisDuration.Observe(duration.Seconds())

	if err != nil {
		status := "error"
		if embodiedflows.IsInvalidInput(err) {
			status = "invalid"
		}
		AnalysesTotal.WithLabelValues(status).Inc()
		AnalysisErrorsTotal.WithLabelValues(embodiedflows.ErrorKind(err)).Inc()
		return
	}

	AnalysesTotal.WithLabelValues("ok").Inc()
	if result != nil {
		AnalysisItems.Observe(float64(len(result.Items)))
	}
}

// RecordCatalog records a catalog load from source.
func RecordCatalog(source string, materials int, err error) {
	if err != nil {
		CatalogLoadErrorsTotal.WithLabelValues(source).Inc()
		return
	}
	CatalogMaterials.WithLabelValues(source).Set(float64(materials))
}

// Timer is a helper for measuring duration
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
