// Package metrics exposes Prometheus counters/histograms for the publish
// pipeline and sync executor, promoted from an atomic-counter placeholder
// to real instrumentation scraped at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AdapterOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagebase_adapter_ops_total",
		Help: "Adapter operations by datasource kind, table, and op.",
	}, []string{"kind", "table", "op"})

	AdapterOpErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagebase_adapter_op_errors_total",
		Help: "Adapter operation failures by datasource kind, table, and op.",
	}, []string{"kind", "table", "op"})

	SchemaDiscoveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagebase_schema_discoveries_total",
		Help: "Schema discovery runs by datasource id.",
	}, []string{"datasource_id"})

	SyncJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagebase_sync_jobs_total",
		Help: "Completed sync jobs by terminal status.",
	}, []string{"status"})

	SyncRecordsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagebase_sync_records_total",
		Help: "Sync records processed by outcome (inserted/updated/deleted/conflict/error).",
	}, []string{"outcome"})

	ActiveSyncJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pagebase_sync_jobs_active",
		Help: "Sync jobs currently running.",
	})

	PublishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pagebase_publish_duration_seconds",
		Help:    "Publish strategy delivery wall-clock duration by strategy.",
		Buckets: prometheus.DefBuckets,
	}, []string{"strategy"})

	PublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagebase_publish_failures_total",
		Help: "Publish attempts that failed by strategy and reason.",
	}, []string{"strategy", "reason"})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagebase_cache_hits_total",
		Help: "Cache lookups by tier (memory/external) and outcome (hit/miss).",
	}, []string{"tier", "outcome"})
)
