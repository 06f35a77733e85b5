// Package database is the persistent gallery index, stored in SQLite.
//
// It holds:
//   - galleries, one row per remote folder
//   - images, one row per image file, cascading from their gallery
//   - images_fts, an FTS5 trigram table mirroring the searchable image
//     columns, maintained only by triggers on images
//   - metadata, including the marker written after a completed sync
//
// Upserts use INSERT ... ON CONFLICT(id) DO UPDATE so that rowids are kept
// and the FTS update trigger fires. The database uses WAL mode with foreign
// keys enabled on every connection. Building requires the sqlite_fts5 tag
// for github.com/mattn/go-sqlite3.
package database
