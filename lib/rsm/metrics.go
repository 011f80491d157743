package rsm

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// Metrics groups the counters a state machine instance exposes. Each
// instance owns its own metrics.Set (rather than registering into the
// global default set) so that multiple shards - or multiple instances in
// the same test binary - never collide on metric names.
type Metrics struct {
	set *metrics.Set

	CommitsApplied  *metrics.Counter
	CommitsRejected *metrics.Counter
	CommitsRetained *metrics.Counter
	ApplyDuration   *metrics.Histogram
}

// NewMetrics creates a metrics group namespaced by name (typically the
// state machine kind and shard ID, e.g. "ttlmap_1").
func NewMetrics(name string) *Metrics {
	set := metrics.NewSet()
	m := &Metrics{
		set:             set,
		CommitsApplied:  set.NewCounter(fmt.Sprintf(`rsm_commits_applied_total{machine=%q}`, name)),
		CommitsRejected: set.NewCounter(fmt.Sprintf(`rsm_commits_rejected_total{machine=%q}`, name)),
		CommitsRetained: set.NewCounter(fmt.Sprintf(`rsm_commits_retained{machine=%q}`, name)),
		ApplyDuration:   set.NewHistogram(fmt.Sprintf(`rsm_apply_duration_seconds{machine=%q}`, name)),
	}
	metrics.RegisterSet(set)
	return m
}

// WritePrometheus writes all metrics in this group in Prometheus exposition
// format, for wiring into an HTTP /metrics endpoint.
func (m *Metrics) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}

// Unregister removes this group's set from the default registry. Tests that
// create many short-lived instances should call this in a defer/cleanup to
// avoid leaking sets for the lifetime of the test binary.
func (m *Metrics) Unregister() {
	metrics.UnregisterSet(m.set, true)
}
