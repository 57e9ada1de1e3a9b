// Package obsmetrics declares the Prometheus collectors the Export
// Coordinator and its subsystems increment. Exposing them over HTTP is
// collaborator surface; this package only registers and updates them.
package obsmetrics

import "github.com/prometheus/client_golang/prometheus"

var CompositionsExportedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "atlas",
		Subsystem: "export",
		Name:      "compositions_exported_total",
		Help:      "Total number of compositions successfully exported.",
	},
	[]string{"template_id"},
)

var CompositionsFailedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "atlas",
		Subsystem: "export",
		Name:      "compositions_failed_total",
		Help:      "Total number of compositions that failed to export.",
	},
	[]string{"template_id"},
)

var BatchDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "atlas",
		Subsystem: "export",
		Name:      "batch_duration_seconds",
		Help:      "Duration of a single batch processing pass.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	},
	[]string{"template_id"},
)

var SourceRetriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "atlas",
		Subsystem: "source",
		Name:      "retries_total",
		Help:      "Total number of retried Source Client HTTP requests.",
	},
	[]string{"operation"},
)

var TargetThrottledTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "atlas",
		Subsystem: "target",
		Name:      "throttled_total",
		Help:      "Total number of throttled bulk-insert attempts.",
	},
	[]string{"backend"},
)

var PiiDetectionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "atlas",
		Subsystem: "anonymization",
		Name:      "pii_detections_total",
		Help:      "Total number of PII entities detected by category.",
	},
	[]string{"category"},
)

// All returns every Atlas-specific metric for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		CompositionsExportedTotal,
		CompositionsFailedTotal,
		BatchDuration,
		SourceRetriesTotal,
		TargetThrottledTotal,
		PiiDetectionsTotal,
	}
}
