package snapshot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SnapshotWrites tracks completed sink writes by sink kind.
	SnapshotWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocexport_snapshot_writes_total",
			Help: "Total number of snapshots written",
		},
		[]string{"sink"}, // "file", "redis"
	)

	// SnapshotBytes tracks the size of the last snapshot written by sink kind.
	SnapshotBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ocexport_snapshot_size_bytes",
			Help: "Size of the last snapshot written in bytes",
		},
		[]string{"sink"},
	)

	// SnapshotErrors tracks sink operation errors.
	SnapshotErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocexport_snapshot_errors_total",
			Help: "Total number of snapshot sink errors",
		},
		[]string{"sink", "operation"},
	)
)
