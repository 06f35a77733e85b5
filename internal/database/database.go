package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"gallery-index/internal/apperr"
	"gallery-index/internal/logging"
	"gallery-index/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// timeLayout stores timestamps as fixed-width UTC text so that string order
// matches time order.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Database is the persistent gallery index: galleries, images and the
// images_fts shadow table kept in step by triggers.
type Database struct {
	db       *sql.DB
	dbPath   string
	mu       sync.RWMutex
	txStarts sync.Map // *sql.Tx -> time.Time
}

// New opens (creating if needed) the index at dbPath and applies the schema.
// The parent directory must already exist and be writable.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Database path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	// foreign_keys is per connection, so it must be in the DSN
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000&_foreign_keys=on", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { recordQuery("initialize_schema", start, err) }()

	schema := `
	CREATE TABLE IF NOT EXISTS galleries (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		display_name TEXT NOT NULL,
		capture_date TEXT,
		item_count INTEGER NOT NULL DEFAULT 0,
		last_modified TEXT NOT NULL DEFAULT '',
		web_url TEXT NOT NULL DEFAULT '',
		thumbnail_id TEXT NOT NULL DEFAULT '',
		thumbnail_url TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_galleries_order ON galleries(capture_date DESC, name COLLATE NOCASE);

	CREATE TABLE IF NOT EXISTS images (
		id TEXT PRIMARY KEY,
		gallery_id TEXT NOT NULL REFERENCES galleries(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		display_name TEXT NOT NULL,
		date_taken TEXT,
		signature TEXT,
		original_filename TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		last_modified TEXT NOT NULL DEFAULT '',
		download_url TEXT NOT NULL DEFAULT '',
		web_url TEXT NOT NULL DEFAULT '',
		width INTEGER,
		height INTEGER,
		format TEXT NOT NULL DEFAULT '',
		camera_make TEXT NOT NULL DEFAULT '',
		camera_model TEXT NOT NULL DEFAULT '',
		lens_model TEXT NOT NULL DEFAULT '',
		focal_length TEXT NOT NULL DEFAULT '',
		aperture TEXT NOT NULL DEFAULT '',
		shutter_speed TEXT NOT NULL DEFAULT '',
		iso INTEGER,
		flash TEXT NOT NULL DEFAULT '',
		white_balance TEXT NOT NULL DEFAULT '',
		color_space TEXT NOT NULL DEFAULT '',
		orientation INTEGER NOT NULL DEFAULT 1,
		has_exif INTEGER NOT NULL DEFAULT 0,
		latitude REAL,
		longitude REAL,
		altitude REAL,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_images_gallery ON images(gallery_id);
	CREATE INDEX IF NOT EXISTS idx_images_date_taken ON images(date_taken);
	DROP INDEX IF EXISTS idx_images_gallery_sort;
	CREATE INDEX IF NOT EXISTS idx_images_gallery_sort_time ON images(gallery_id, COALESCE(date_taken || 'T00:00:00.000Z', last_modified));

	-- Full-text shadow of images. Standalone (not external content) so that
	-- its row count is real and can be compared with images.
	CREATE VIRTUAL TABLE IF NOT EXISTS images_fts USING fts5(
		id UNINDEXED,
		gallery_id UNINDEXED,
		name,
		display_name,
		camera_make,
		camera_model,
		lens_model,
		tokenize='trigram'
	);

	CREATE TRIGGER IF NOT EXISTS images_ai AFTER INSERT ON images BEGIN
		INSERT INTO images_fts(rowid, id, gallery_id, name, display_name, camera_make, camera_model, lens_model)
		VALUES (new.rowid, new.id, new.gallery_id, new.name, new.display_name, new.camera_make, new.camera_model, new.lens_model);
	END;

	CREATE TRIGGER IF NOT EXISTS images_ad AFTER DELETE ON images BEGIN
		DELETE FROM images_fts WHERE rowid = old.rowid;
	END;

	CREATE TRIGGER IF NOT EXISTS images_au AFTER UPDATE ON images BEGIN
		DELETE FROM images_fts WHERE rowid = old.rowid;
		INSERT INTO images_fts(rowid, id, gallery_id, name, display_name, camera_make, camera_model, lens_model)
		VALUES (new.rowid, new.id, new.gallery_id, new.name, new.display_name, new.camera_make, new.camera_model, new.lens_model);
	END;

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`

	if _, err = d.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	return d.runMigrations(ctx)
}

// runMigrations applies database schema migrations
func (d *Database) runMigrations(ctx context.Context) error {
	// Migration 1: gallery thumbnails were added after the first release
	var columnExists bool
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM pragma_table_info('galleries')
		WHERE name='thumbnail_id'
	`).Scan(&columnExists)
	if err != nil {
		return fmt.Errorf("failed to check for thumbnail_id column: %w", err)
	}

	if !columnExists {
		logging.Info("Migrating database: adding thumbnail columns to galleries table")

		for _, stmt := range []string{
			`ALTER TABLE galleries ADD COLUMN thumbnail_id TEXT NOT NULL DEFAULT ''`,
			`ALTER TABLE galleries ADD COLUMN thumbnail_url TEXT NOT NULL DEFAULT ''`,
		} {
			if _, err := d.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to add thumbnail columns: %w", err)
			}
		}

		logging.Info("Migration complete: thumbnail columns added")
	}

	return nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.dbPath
}

// Ping checks that the database is reachable.
func (d *Database) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return d.db.PingContext(ctx)
}

// BeginBatch starts a transaction for batch operations.
// The caller is responsible for calling EndBatch when done.
func (d *Database) BeginBatch(ctx context.Context) (tx *sql.Tx, err error) {
	start := time.Now()
	defer func() { recordQuery("begin_transaction", start, err) }()

	// Only transaction creation is serialized; the transaction itself
	// relies on SQLite's busy_timeout.
	d.mu.Lock()
	tx, err = d.db.BeginTx(ctx, nil)
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	d.txStarts.Store(tx, start)
	return tx, nil
}

// EndBatch commits the transaction, or rolls it back when err is non-nil.
func (d *Database) EndBatch(tx *sql.Tx, err error) error {
	var duration float64
	if v, ok := d.txStarts.LoadAndDelete(tx); ok {
		duration = time.Since(v.(time.Time)).Seconds()
	}

	if err != nil {
		start := time.Now()
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(duration)
		rbErr := tx.Rollback()
		recordQuery("rollback", start, rbErr)
		if rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	start := time.Now()
	metrics.DBTransactionDuration.WithLabelValues("commit").Observe(duration)
	err = tx.Commit()
	recordQuery("commit", start, err)
	return err
}

// isConstraintError reports whether err is a SQLite constraint violation.
func isConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

// writeError converts constraint violations into IndexWriteErrors so that
// batch callers can skip the record and continue.
func writeError(table, id string, err error) error {
	if err == nil {
		return nil
	}
	if isConstraintError(err) {
		metrics.DBIndexWriteErrors.WithLabelValues(table).Inc()
		return &apperr.IndexWriteError{Table: table, ID: id, Err: err}
	}
	return fmt.Errorf("upsert %s %q: %w", table, id, err)
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// GetStats implements metrics.StatsProvider.
func (d *Database) GetStats() metrics.Stats {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	stats := metrics.Stats{OpenConns: d.db.Stats().OpenConnections}

	counts, err := d.CountRows(ctx)
	if err != nil {
		logging.Warn("Failed to count index rows: %v", err)
		return stats
	}
	stats.TotalGalleries = counts.Galleries
	stats.TotalImages = counts.Images
	stats.TotalFTSRows = counts.FTSRows

	populated, err := d.IsPopulated(ctx)
	if err != nil {
		logging.Warn("Failed to read sync marker: %v", err)
	}
	stats.Populated = populated
	return stats
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func intPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	i := int(ni.Int64)
	return &i
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}

	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)
	logging.Debug("Database directory is writable")

	for _, suffix := range []string{"", "-wal", "-shm"} {
		path := dbPath + suffix
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		logging.Debug("Database file exists: %s (mode: %v, size: %d bytes)", path, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 != 0 {
			continue
		}

		logging.Warn("Database file %s is read-only! Mode: %v - this will cause write failures", path, info.Mode())
		if suffix == "" {
			continue
		}
		if chmodErr := os.Chmod(path, 0o600); chmodErr != nil {
			logging.Error("Failed to fix %s permissions: %v", path, chmodErr)
		} else {
			logging.Info("Fixed %s permissions", path)
		}
	}

	return nil
}
