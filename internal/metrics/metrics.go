// Package metrics defines the Prometheus instruments the orchestrator and
// backend clients update, served at /metrics the same way the teacher's
// cmd/kafka-to-postgresql-v2/main.go InitPrometheus wires promhttp.Handler()
// into an HTTP mux. Field coverage follows metrics/collector.go's shape
// (records read/written/failed, stage durations), reimplemented on real
// Prometheus types since the teacher itself does so for the equivalent job.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every instrument the ingest pipeline records against.
type Metrics struct {
	RecordsIngested  prometheus.Counter
	RecordsFlushed   prometheus.Counter
	RecordsFailed    prometheus.Counter
	RecordsDeadLettered prometheus.Counter
	FlushDuration    prometheus.Histogram
	FlushesTotal     prometheus.Counter
	FlushFailures    prometheus.Counter
	BufferOccupancy  prometheus.Gauge
	WALSizeBytes     prometheus.Gauge
	SQLRowsWritten   prometheus.Counter
	DocRowsWritten   prometheus.Counter
}

// New registers and returns a fresh instrument set against reg. Pass
// prometheus.DefaultRegisterer for process-wide metrics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RecordsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "schemaforge_records_ingested_total",
			Help: "Records accepted by Ingest/IngestBatch.",
		}),
		RecordsFlushed: factory.NewCounter(prometheus.CounterOpts{
			Name: "schemaforge_records_flushed_total",
			Help: "Records successfully routed to both backends by a flush.",
		}),
		RecordsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "schemaforge_records_failed_total",
			Help: "Records in batches whose flush failed and were retained for retry.",
		}),
		RecordsDeadLettered: factory.NewCounter(prometheus.CounterOpts{
			Name: "schemaforge_records_dead_lettered_total",
			Help: "Records quarantined to the dead-letter queue after exhausting retries.",
		}),
		FlushDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "schemaforge_flush_duration_seconds",
			Help:    "Wall-clock duration of a flush cycle.",
			Buckets: prometheus.DefBuckets,
		}),
		FlushesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "schemaforge_flushes_total",
			Help: "Flush cycles attempted.",
		}),
		FlushFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "schemaforge_flush_failures_total",
			Help: "Flush cycles that failed against either backend.",
		}),
		BufferOccupancy: factory.NewGauge(prometheus.GaugeOpts{
			Name: "schemaforge_buffer_occupancy",
			Help: "Records currently buffered awaiting flush.",
		}),
		WALSizeBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "schemaforge_wal_size_bytes",
			Help: "Current size of pending.jsonl in bytes.",
		}),
		SQLRowsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "schemaforge_sql_rows_written_total",
			Help: "Rows upserted into the relational backend.",
		}),
		DocRowsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "schemaforge_doc_rows_written_total",
			Help: "Documents upserted into the document backend.",
		}),
	}
}
