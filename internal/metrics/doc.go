// Package metrics provides Prometheus instrumentation for the gallery index service.
//
// All metrics are registered with promauto at package init and prefixed with
// "gallery_index_". They are exposed on a separate metrics port by main.
//
// # Metric Categories
//
// ## HTTP Metrics
//
// Track HTTP request performance and admission:
//   - HTTPRequestsTotal: Counter of total requests by method, path, and status
//   - HTTPRequestDuration: Histogram of request duration by method and path
//   - HTTPRequestsInFlight: Gauge of currently processing requests
//   - HTTPRateLimited: Counter of requests rejected with 429
//
// ## Database Metrics
//
// Monitor the SQLite index:
//   - DBQueryTotal / DBQueryDuration: queries by operation and status
//   - DBTransactionDuration: batch transaction time by outcome
//   - DBSizeBytes: database file sizes (main, WAL, SHM)
//   - DBIndexWriteErrors: records skipped because of constraint violations
//   - IndexGalleriesTotal, IndexImagesTotal, IndexFTSRowsTotal, IndexPopulated
//
// ## Cache Metrics
//
//   - CacheHits / CacheMisses by endpoint
//   - CacheEvictions by reason (expired, invalidated)
//   - CacheEntries, CacheFlushesTotal, CacheSharedLoads
//
// ## Remote, Sync and Variant Metrics
//
//   - RemoteRequestsTotal / RemoteRequestDuration by operation
//   - SyncRunsTotal, SyncLastRunTimestamp, SyncLastRunDuration, SyncIsRunning,
//     SyncGalleriesProcessed, SyncImagesProcessed, SyncErrors,
//     SyncMetadataExtractions by result
//   - VariantGenerationsTotal by preset and status, VariantGenerationDuration,
//     VariantDegradedTotal by codec
//   - RefreshRequestsTotal by status
//
// # Collector
//
// Collector polls a StatsProvider (the database) on an interval and updates
// the index gauges, plus the on-disk size of the database files:
//
//	collector := metrics.NewCollector(db, cfg.DatabasePath, time.Minute)
//	collector.Start()
//	defer collector.Stop()
package metrics
