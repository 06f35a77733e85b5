package metrics

import "gallery-index/internal/mediatypes"

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, file := range []string{"main", "wal", "shm"} {
		DBSizeBytes.WithLabelValues(file)
	}

	// --- DB query operations ---
	for _, op := range []string{"initialize_schema", "upsert_gallery", "upsert_image",
		"list_galleries", "list_images", "list_all_images", "full_text_search", "get_gallery",
		"get_image", "delete_all", "delete_missing_galleries", "delete_missing_images", "mark_synced", "count_rows",
		"begin_transaction", "commit", "rollback"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, t := range []string{"commit", "rollback"} {
		DBTransactionDuration.WithLabelValues(t)
	}

	for _, table := range []string{"galleries", "images"} {
		DBIndexWriteErrors.WithLabelValues(table)
	}

	for _, ep := range []string{"galleries", "gallery_images", "search", "image", "metadata"} {
		CacheHits.WithLabelValues(ep)
		CacheMisses.WithLabelValues(ep)
	}
	for _, reason := range []string{"expired", "invalidated", "capacity"} {
		CacheEvictions.WithLabelValues(reason)
	}

	for _, op := range []string{"list_collections", "list_items", "first_item", "get_item", "get_bytes"} {
		RemoteRequestsTotal.WithLabelValues(op, "success")
		RemoteRequestsTotal.WithLabelValues(op, "error")
		RemoteRequestDuration.WithLabelValues(op)
	}

	for _, op := range []string{"stat", "readdir", "read", "open"} {
		FilesystemOperationDuration.WithLabelValues(op)
		FilesystemStaleErrors.WithLabelValues(op)
		FilesystemRetries.WithLabelValues(op, "success")
		FilesystemRetries.WithLabelValues(op, "failure")
	}

	for _, reason := range []string{"timeout", "client_gone", "error"} {
		ResponseWriteErrors.WithLabelValues(reason)
	}

	for _, status := range []string{"success", "error", "discarded"} {
		SyncRunsTotal.WithLabelValues(status)
	}

	for _, result := range []string{"extracted", "reused", "error"} {
		SyncMetadataExtractions.WithLabelValues(result)
	}

	for preset := range mediatypes.Presets {
		for _, status := range []string{"success", "degraded", "error"} {
			VariantGenerationsTotal.WithLabelValues(string(preset), status)
		}
		VariantGenerationDuration.WithLabelValues(string(preset))
	}

	for _, status := range []string{"success", "unauthorized", "error"} {
		RefreshRequestsTotal.WithLabelValues(status)
	}
}
