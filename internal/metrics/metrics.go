// Package metrics exposes Prometheus collectors for the sync engine.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without instrumentation in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "emconsole"

// Metrics bundles the collectors registered on one private registry.
type Metrics struct {
	Registry *prometheus.Registry

	snapshotFetches  *prometheus.CounterVec
	streamMessages   *prometheus.CounterVec
	streamReconnects prometheus.Counter
	storeMutations   *prometheus.CounterVec
	activeRecords    prometheus.Gauge
}

// New creates a registry with the sync-engine collectors plus the standard
// Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		snapshotFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_fetches_total",
			Help:      "Snapshot fetches by result (ok, error).",
		}, []string{"result"}),
		streamMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_messages_total",
			Help:      "Stream messages received, by message type.",
		}, []string{"type"}),
		streamReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_reconnects_total",
			Help:      "Stream reconnection attempts.",
		}),
		storeMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_mutations_total",
			Help:      "Updates applied to the board, by operation.",
		}, []string{"op"}),
		activeRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_records",
			Help:      "Records currently on the board.",
		}),
	}
	reg.MustRegister(
		m.snapshotFetches,
		m.streamMessages,
		m.streamReconnects,
		m.storeMutations,
		m.activeRecords,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// SnapshotFetched counts one fetch attempt.
func (m *Metrics) SnapshotFetched(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.snapshotFetches.WithLabelValues(result).Inc()
}

// StreamMessage counts one decoded (or rejected) stream message.
func (m *Metrics) StreamMessage(kind string) {
	if m == nil {
		return
	}
	m.streamMessages.WithLabelValues(kind).Inc()
}

// StreamReconnect counts one reconnection attempt.
func (m *Metrics) StreamReconnect() {
	if m == nil {
		return
	}
	m.streamReconnects.Inc()
}

// Mutation counts one board operation and refreshes the record gauge.
func (m *Metrics) Mutation(op string, active int) {
	if m == nil {
		return
	}
	m.storeMutations.WithLabelValues(op).Inc()
	m.activeRecords.Set(float64(active))
}
