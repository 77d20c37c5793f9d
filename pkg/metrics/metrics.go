// Package metrics holds the prometheus collectors of the writer and the reader.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "geomodeldb"

// Metrics is a set of collectors. The zero value is not usable; use New.
type Metrics struct {
	// RowsWritten counts committed rows. Labels: table
	RowsWritten *prometheus.CounterVec

	// DedupHits counts nodes that were already stored when the writer met them again.
	// Labels: kind
	DedupHits *prometheus.CounterVec

	// NodesStored counts distinct stored nodes. Labels: kind
	NodesStored *prometheus.CounterVec

	// RowsRead counts rows loaded by readers. Labels: table
	RowsRead *prometheus.CounterVec

	// Duration measures whole write and read sessions.
	// Labels: operation (write, read), status (ok, error)
	Duration *prometheus.HistogramVec

	// Failures counts failed sessions by error kind. Labels: operation, kind
	Failures *prometheus.CounterVec
}

// New builds the collectors and registers them on reg. A nil reg leaves them
// unregistered, which is what tests and one-shot tools want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "rows_total",
			Help:      "Rows committed per table",
		}, []string{"table"}),
		DedupHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "dedup_hits_total",
			Help:      "Nodes reused from the address registry instead of being stored again",
		}, []string{"kind"}),
		NodesStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "nodes_total",
			Help:      "Distinct nodes stored per kind",
		}, []string{"kind"}),
		RowsRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reader",
			Name:      "rows_total",
			Help:      "Rows loaded per table",
		}, []string{"table"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of write and read sessions",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"operation", "status"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Failed write and read sessions by error kind",
		}, []string{"operation", "kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.RowsWritten, m.DedupHits, m.NodesStored, m.RowsRead, m.Duration, m.Failures)
	}
	return m
}

// Status is the status label of a finished session.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
