// Package metrics exposes Prometheus instrumentation for the simulation
// server: job throughput, queue depth, replication timing, connected
// clients, snapshot bytes streamed, and persistence outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridwalk_jobs_submitted_total",
		Help: "Total trajectory jobs submitted to the worker pool.",
	})

	JobsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridwalk_jobs_completed_total",
		Help: "Total trajectory jobs completed by the worker pool.",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gridwalk_worker_queue_depth",
		Help: "Current number of jobs waiting in the worker pool queue.",
	})

	ReplicationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gridwalk_replication_duration_seconds",
		Help:    "Wall-clock time to complete one replication (fan-out + wait_all).",
		Buckets: prometheus.DefBuckets,
	})

	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gridwalk_connected_clients",
		Help: "Current number of clients registered with the server.",
	})

	SnapshotBytesStreamed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridwalk_snapshot_bytes_streamed_total",
		Help: "Total bytes streamed across all SNAPSHOT_CHUNK messages.",
	})

	PersistenceOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridwalk_persistence_ops_total",
		Help: "Persistence operations by kind and outcome.",
	}, []string{"op", "outcome"})
)
