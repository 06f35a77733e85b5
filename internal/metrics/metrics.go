package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_index_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_index_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_index_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	HTTPRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_index_http_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_index_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_index_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_index_db_transaction_duration_seconds",
			Help:    "Database transaction duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"type"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_index_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gallery_index_db_size_bytes",
			Help: "Size of SQLite database files in bytes",
		},
		[]string{"file"}, // "main", "wal", "shm"
	)

	DBIndexWriteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_index_db_index_write_errors_total",
			Help: "Total number of skipped records due to constraint violations",
		},
		[]string{"table"},
	)
)

// Index contents, refreshed by the Collector
var (
	IndexGalleriesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_index_galleries_total",
			Help: "Number of galleries in the local index",
		},
	)

	IndexImagesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_index_images_total",
			Help: "Number of images in the local index",
		},
	)

	IndexFTSRowsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_index_fts_rows_total",
			Help: "Number of rows in the full-text shadow index",
		},
	)

	IndexPopulated = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_index_populated",
			Help: "Whether a completed sync marker exists (1 = populated, 0 = empty)",
		},
	)
)

// Cache metrics
var (
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_index_cache_hits_total",
			Help: "Total number of query cache hits",
		},
		[]string{"endpoint"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_index_cache_misses_total",
			Help: "Total number of query cache misses",
		},
		[]string{"endpoint"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_index_cache_evictions_total",
			Help: "Total number of evicted cache entries",
		},
		[]string{"reason"}, // "expired", "invalidated", "capacity"
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_index_cache_entries",
			Help: "Number of entries currently held in the query cache",
		},
	)

	CacheFlushesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_index_cache_flushes_total",
			Help: "Total number of full cache flushes",
		},
	)

	CacheSharedLoads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_index_cache_shared_loads_total",
			Help: "Total number of cache misses served by another caller's in-flight load",
		},
	)
)

// Remote store metrics
var (
	RemoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_index_remote_requests_total",
			Help: "Total number of remote store requests",
		},
		[]string{"operation", "status"},
	)

	RemoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_index_remote_request_duration_seconds",
			Help:    "Remote store request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)
)

// Filesystem metrics for the local backend
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_index_filesystem_operation_duration_seconds",
			Help:    "Duration of filesystem operations including retries",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"operation"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_index_filesystem_stale_errors_total",
			Help: "Total number of NFS stale file handle errors",
		},
		[]string{"operation"},
	)

	FilesystemRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_index_filesystem_retries_total",
			Help: "Total number of retried filesystem operations by outcome",
		},
		[]string{"operation", "result"}, // "success", "failure"
	)
)

// Sync job metrics
var (
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_index_sync_runs_total",
			Help: "Total number of index synchronization runs",
		},
		[]string{"status"},
	)

	SyncLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_index_sync_last_run_timestamp",
			Help: "Timestamp of the last synchronization run",
		},
	)

	SyncLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_index_sync_last_run_duration_seconds",
			Help: "Duration of the last synchronization run in seconds",
		},
	)

	SyncGalleriesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_index_sync_galleries_processed_total",
			Help: "Total number of galleries processed by the sync job",
		},
	)

	SyncImagesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_index_sync_images_processed_total",
			Help: "Total number of images processed by the sync job",
		},
	)

	SyncMetadataExtractions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_index_sync_metadata_extractions_total",
			Help: "Images whose file metadata was extracted, reused from the index or failed during sync",
		},
		[]string{"result"}, // "extracted", "reused", "error"
	)

	SyncErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_index_sync_errors_total",
			Help: "Total number of sync job errors",
		},
	)

	SyncIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_index_sync_running",
			Help: "Whether the sync job is currently running (1 = running, 0 = idle)",
		},
	)
)

// Image variant metrics
var (
	VariantGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_index_variant_generations_total",
			Help: "Total number of image variant generations",
		},
		[]string{"preset", "status"},
	)

	VariantGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_index_variant_generation_duration_seconds",
			Help:    "Image variant generation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"preset"},
	)

	VariantDegradedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_index_variant_degraded_total",
			Help: "Total number of variants served as original bytes because the codec failed",
		},
		[]string{"codec"},
	)
)

// Response body write failures
var (
	ResponseWriteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_index_response_write_errors_total",
			Help: "Total number of image responses that failed while writing the body",
		},
		[]string{"reason"}, // "timeout", "client_gone", "error"
	)
)

// Webhook metrics
var (
	RefreshRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_index_refresh_requests_total",
			Help: "Total number of cache refresh webhook calls",
		},
		[]string{"status"}, // "success", "unauthorized", "error"
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gallery_index_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
