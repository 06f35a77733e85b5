// Package indexer mirrors the remote photo store into the local index.
//
// A sync lists every collection, drops hidden ones, resolves gallery
// thumbnails and then lists the galleries concurrently. Galleries and images
// are upserted in batched transactions and the full-text table follows
// through triggers. Rows whose remote counterpart has disappeared are
// removed at the end of the run, except for galleries whose listing failed.
// A successful run records the sync marker that lets reads use the index.
//
// Syncs run once at startup, on a fixed interval and on demand through
// TriggerIndex. Only one runs at a time; overlapping requests are skipped.
package indexer
