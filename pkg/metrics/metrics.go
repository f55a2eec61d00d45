// Package metrics documents the Prometheus metrics of the exporter.
// Metrics are defined in the packages that record them (ratelimit, client,
// bulk, session, export, snapshot) and registered via promauto.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the Prometheus registerer every exporter metric is registered with.
var Registry = prometheus.DefaultRegisterer

// Names lists every metric the exporter registers.
var Names = []string{
	"ocexport_scheduler_admissions_total",
	"ocexport_scheduler_queue_depth",
	"ocexport_scheduler_in_flight",
	"ocexport_scheduler_wait_seconds",
	"ocexport_throttle_signals_total",
	"ocexport_throttle_waits_total",
	"ocexport_throttle_wait_seconds",
	"ocexport_requests_total",
	"ocexport_request_duration_seconds",
	"ocexport_errors_total",
	"ocexport_bulk_pages_total",
	"ocexport_bulk_records_total",
	"ocexport_bulk_list_duration_seconds",
	"ocexport_retries_total",
	"ocexport_retry_backoff_seconds",
	"ocexport_retry_exhausted_total",
	"ocexport_session_refreshes_total",
	"ocexport_export_records_total",
	"ocexport_export_duration_seconds",
	"ocexport_snapshot_writes_total",
	"ocexport_snapshot_size_bytes",
	"ocexport_snapshot_errors_total",
}

// Metrics Documentation
//
// Scheduler Metrics (pkg/ratelimit):
//   - ocexport_scheduler_admissions_total (Counter): Operations admitted
//   - ocexport_scheduler_queue_depth (Gauge): Operations waiting for admission
//   - ocexport_scheduler_in_flight (Gauge): Admitted operations running
//   - ocexport_scheduler_wait_seconds (Histogram): Time queued before admission
//
// Throttle Metrics (pkg/ratelimit):
//   - ocexport_throttle_signals_total (Counter): 429/503 responses received
//   - ocexport_throttle_waits_total (Counter): Admissions delayed by an open window
//   - ocexport_throttle_wait_seconds (Histogram): Time spent waiting out windows
//
// Request Metrics (pkg/client):
//   - ocexport_requests_total{resource, status} (Counter): List calls by resource and HTTP status
//   - ocexport_request_duration_seconds{resource} (Histogram): List call duration
//   - ocexport_errors_total{class} (Counter): Errors by class (client, auth, server, rate_limit, network)
//
// Bulk Metrics (pkg/bulk):
//   - ocexport_bulk_pages_total{resource} (Counter): Pages fetched
//   - ocexport_bulk_records_total{resource} (Counter): Records fetched
//   - ocexport_bulk_list_duration_seconds{resource} (Histogram): Duration of complete listings
//   - ocexport_retries_total{error_class} (Counter): Listing retries by error class
//   - ocexport_retry_backoff_seconds{error_class} (Histogram): Backoff before a retry
//   - ocexport_retry_exhausted_total{error_class} (Counter): Listings that ran out of attempts
//
// Session Metrics (pkg/session):
//   - ocexport_session_refreshes_total{result} (Counter): Credential refreshes (success, failure)
//
// Export Metrics (pkg/export, pkg/snapshot):
//   - ocexport_export_records_total{resource} (Counter): Records added to snapshots
//   - ocexport_export_duration_seconds (Histogram): Duration of complete extractions
//   - ocexport_snapshot_writes_total{sink} (Counter): Snapshots written (file, redis)
//   - ocexport_snapshot_size_bytes{sink} (Gauge): Size of the last written snapshot
//   - ocexport_snapshot_errors_total{sink, operation} (Counter): Sink failures
//
// Example Prometheus Queries:
//
//   # Throttle pressure
//   rate(ocexport_throttle_signals_total[5m])
//
//   # Request Error Rate
//   sum by (class) (rate(ocexport_errors_total[5m]))
//
//   # P95 List Call Latency
//   histogram_quantile(0.95, rate(ocexport_request_duration_seconds_bucket[5m]))
//
//   # Scheduler backlog
//   ocexport_scheduler_queue_depth > 0
