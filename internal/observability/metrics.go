// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	UnitsIngested  prometheus.Counter
	DuplicateUnits prometheus.Counter
	IngestErrors   *prometheus.CounterVec

	// Validation metrics
	ValidationRuns *prometheus.CounterVec

	// Analysis metrics
	AnalysesRun      *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram
	ReportsWritten   prometheus.Counter

	// Health metrics
	LastSuccessfulIngest   prometheus.Gauge
	LastSuccessfulAnalysis prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "experiment_lab"
	}

	return &Metrics{
		// Ingestion metrics
		UnitsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "units_ingested_total",
			Help:      "Total number of experiment units written to storage",
		}),
		DuplicateUnits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "duplicate_units_total",
			Help:      "Total number of exposure events dropped as duplicates",
		}),
		IngestErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "errors_total",
			Help:      "Total number of ingestion errors by reason",
		}, []string{"reason"}),

		// Validation metrics
		ValidationRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "runs_total",
			Help:      "Total number of validation suite runs by outcome",
		}, []string{"outcome"}),

		// Analysis metrics
		AnalysesRun: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "runs_total",
			Help:      "Total number of analysis pipeline runs by status",
		}, []string{"status"}),
		AnalysisDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "Analysis pipeline execution duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}),
		ReportsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "reports_written_total",
			Help:      "Total number of report files written",
		}),

		// Health metrics
		LastSuccessfulIngest: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_ingest_timestamp",
			Help:      "Unix timestamp of last successful unit insert",
		}),
		LastSuccessfulAnalysis: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_analysis_timestamp",
			Help:      "Unix timestamp of last completed analysis run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordUnitsIngested adds n to the units ingested counter.
func RecordUnitsIngested(n int) {
	if n <= 0 {
		return
	}
	DefaultMetrics.UnitsIngested.Add(float64(n))
	DefaultMetrics.LastSuccessfulIngest.SetToCurrentTime()
}

// RecordDuplicateUnits adds n to the duplicate units counter.
func RecordDuplicateUnits(n int) {
	if n <= 0 {
		return
	}
	DefaultMetrics.DuplicateUnits.Add(float64(n))
}

// RecordIngestError records an ingestion error by reason.
func RecordIngestError(reason string) {
	DefaultMetrics.IngestErrors.WithLabelValues(reason).Inc()
}

// RecordValidationRun records a validation suite run.
func RecordValidationRun(passed bool) {
	outcome := "failed"
	if passed {
		outcome = "passed"
	}
	DefaultMetrics.ValidationRuns.WithLabelValues(outcome).Inc()
}

// RecordAnalysis records an analysis pipeline run.
func RecordAnalysis(status string, durationSeconds float64) {
	DefaultMetrics.AnalysesRun.WithLabelValues(status).Inc()
	DefaultMetrics.AnalysisDuration.Observe(durationSeconds)
	if status != "error" {
		DefaultMetrics.LastSuccessfulAnalysis.SetToCurrentTime()
	}
}

// RecordReportWritten increments the reports written counter.
func RecordReportWritten() {
	DefaultMetrics.ReportsWritten.Inc()
}
