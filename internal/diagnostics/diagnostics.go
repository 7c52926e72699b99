// Package diagnostics is the per-process counter table spec.md §7 requires:
// "every filter rejection and every error is counted by reason". It backs
// the reasons with both an in-memory snapshot (for the JSON snapshot
// interface) and Prometheus gauges/counters (grounded on
// chidi150c-coinbase, the one example repo whose entire third-party
// dependency list is prometheus/client_golang).
package diagnostics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Table is the process-wide diagnostics counter table.
type Table struct {
	mu       sync.Mutex
	counters map[string]int64

	filterRejections *prometheus.CounterVec
	errors           *prometheus.CounterVec
	openPositions    prometheus.Gauge
}

// NewTable constructs a diagnostics table and registers its Prometheus
// collectors against reg. Pass prometheus.NewRegistry() in tests to avoid
// polluting the global default registry.
func NewTable(reg prometheus.Registerer) *Table {
	t := &Table{
		counters: make(map[string]int64),
		filterRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "polybot",
			Name:      "filter_rejections_total",
			Help:      "Predictions rejected by a smart filter, by reason.",
		}, []string{"reason"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "polybot",
			Name:      "errors_total",
			Help:      "Structured errors/warnings surfaced by the pipeline, by source.",
		}, []string{"source"}),
		openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "polybot",
			Name:      "open_positions",
			Help:      "Current count of open simulated or live positions.",
		}),
	}
	if reg != nil {
		reg.MustRegister(t.filterRejections, t.errors, t.openPositions)
	}
	return t
}

// IncFilterRejection records a smart-filter rejection by reason.
func (t *Table) IncFilterRejection(reason string) {
	t.mu.Lock()
	t.counters["filter_rejection:"+reason]++
	t.mu.Unlock()
	t.filterRejections.WithLabelValues(reason).Inc()
}

// IncError records a structured error/warning by source.
func (t *Table) IncError(source string) {
	t.mu.Lock()
	t.counters["error:"+source]++
	t.mu.Unlock()
	t.errors.WithLabelValues(source).Inc()
}

// SetOpenPositions updates the open-position gauge.
func (t *Table) SetOpenPositions(n int) {
	t.openPositions.Set(float64(n))
}

// Snapshot returns a copy of every named counter, for the JSON snapshot
// interface.
func (t *Table) Snapshot() map[string]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int64, len(t.counters))
	for k, v := range t.counters {
		out[k] = v
	}
	return out
}
