// Package metrics provides Prometheus metrics for the referee scheduler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "referee_scheduler"

// Metrics holds the service collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	assignmentsCreated prometheus.Counter
	conflictsDetected  *prometheus.CounterVec
	bulkItems          *prometheus.CounterVec
	patternsApplied    prometheus.Counter
	refreshDuration    prometheus.Histogram
	patternsStored     prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	auto := promauto.With(reg)

	return &Metrics{
		registry: reg,
		assignmentsCreated: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignments_created_total",
			Help:      "Assignments created, single or bulk",
		}),
		conflictsDetected: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_detected_total",
			Help:      "Conflicts reported by the detector, by type",
		}, []string{"type"}),
		bulkItems: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_items_total",
			Help:      "Items processed by bulk operations",
		}, []string{"operation", "outcome"}),
		patternsApplied: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patterns_applied_total",
			Help:      "Assignments created by applying a pattern",
		}),
		refreshDuration: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pattern_refresh_duration_seconds",
			Help:      "Time spent mining assignment patterns",
			Buckets:   prometheus.DefBuckets,
		}),
		patternsStored: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "patterns_stored",
			Help:      "Pattern rows after the last refresh",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) AssignmentCreated() {
	if m == nil {
		return
	}
	m.assignmentsCreated.Inc()
}

func (m *Metrics) ConflictDetected(conflictType string) {
	if m == nil {
		return
	}
	m.conflictsDetected.WithLabelValues(conflictType).Inc()
}

// BulkItems adds the outcome counts of one bulk call.
func (m *Metrics) BulkItems(operation string, succeeded, failed int) {
	if m == nil {
		return
	}
	m.bulkItems.WithLabelValues(operation, "success").Add(float64(succeeded))
	m.bulkItems.WithLabelValues(operation, "failure").Add(float64(failed))
}

func (m *Metrics) PatternsApplied(n int) {
	if m == nil {
		return
	}
	m.patternsApplied.Add(float64(n))
}

func (m *Metrics) PatternRefresh(d time.Duration, stored int64) {
	if m == nil {
		return
	}
	m.refreshDuration.Observe(d.Seconds())
	m.patternsStored.Set(float64(stored))
}
