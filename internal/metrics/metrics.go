// Package metrics centralizes the prometheus collectors shared across
// the relational, document, and orchestrator packages. Adapted from the
// teacher's internal/staging/stage/metrics.go (promauto histogram/counter
// vectors keyed by a table label), generalized here to a {table, backend}
// label pair so one set of collectors covers both backends.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LatencyBuckets are the histogram buckets used for every duration
// metric in this module, in seconds.
var LatencyBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// Labels is the common label set: destination table/collection name and
// backend ("sql" or "doc").
var Labels = []string{"table", "backend"}

var (
	// FlushDuration records how long a full orchestrator flush took.
	FlushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingest_flush_duration_seconds",
		Help:    "the length of time it took to complete a flush cycle",
		Buckets: LatencyBuckets,
	})

	// FlushErrors counts failed flushes.
	FlushErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_flush_errors_total",
		Help: "the number of flush cycles that failed and left the WAL retained",
	})

	// RecordsRouted counts records routed to a backend, labeled by
	// destination and backend.
	RecordsRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_records_routed_total",
		Help: "the number of records routed to a backend during a flush",
	}, Labels)

	// UpsertDuration records how long a backend batch upsert took.
	UpsertDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingest_upsert_duration_seconds",
		Help:    "the length of time it took to complete a batch upsert",
		Buckets: LatencyBuckets,
	}, Labels)

	// UpsertErrors counts failed batch upserts, labeled by destination
	// and backend.
	UpsertErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_upsert_errors_total",
		Help: "the number of batch upserts that failed",
	}, Labels)

	// DDLOperations counts schema reconciliation operations (add column,
	// widen column, migrate+drop column), labeled by table and the kind
	// of operation via the backend label (reused here as "op").
	DDLOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_ddl_operations_total",
		Help: "the number of DDL operations performed while reconciling the relational schema",
	}, Labels)

	// WALBytes reports the current size of the write-ahead log file.
	WALBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ingest_wal_bytes",
		Help: "the current size in bytes of the write-ahead log",
	})
)
