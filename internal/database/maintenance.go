package database

import (
	"context"
	"fmt"
	"time"

	"gallery-index/internal/logging"
)

// DeleteAll removes every gallery, and through the cascade every image and
// FTS row, then clears the sync marker and bumps the generation. It runs in
// one transaction.
func (d *Database) DeleteAll(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { recordQuery("delete_all", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM galleries`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete galleries: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, lastSyncKey); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear sync marker: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, '1')
		ON CONFLICT(key) DO UPDATE SET value = CAST(value AS INTEGER) + 1
	`, generationKey); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("bump generation: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return err
	}

	n, _ := result.RowsAffected()
	logging.Info("Index cleared: %d galleries removed", n)
	return nil
}

// CountRows returns the row counts of galleries, images and the FTS shadow.
func (d *Database) CountRows(ctx context.Context) (counts RowCounts, err error) {
	start := time.Now()
	defer func() { recordQuery("count_rows", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM galleries", &counts.Galleries},
		{"SELECT COUNT(*) FROM images", &counts.Images},
		{"SELECT COUNT(*) FROM images_fts", &counts.FTSRows},
	}

	for _, q := range queries {
		if err = d.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return counts, err
		}
	}
	return counts, nil
}

// CheckIntegrity verifies that every image has exactly one FTS row with the
// same rowid and vice versa, and runs the FTS5 integrity check.
func (d *Database) CheckIntegrity(ctx context.Context) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var missing, orphaned int
	if err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM images i
		WHERE NOT EXISTS (SELECT 1 FROM images_fts f WHERE f.rowid = i.rowid AND f.id = i.id)
	`).Scan(&missing); err != nil {
		return err
	}
	if err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM images_fts f
		WHERE NOT EXISTS (SELECT 1 FROM images i WHERE i.rowid = f.rowid)
	`).Scan(&orphaned); err != nil {
		return err
	}
	if missing > 0 || orphaned > 0 {
		return fmt.Errorf("fts shadow out of step: %d images without fts row, %d orphaned fts rows", missing, orphaned)
	}

	if _, err := d.db.ExecContext(ctx, `INSERT INTO images_fts(images_fts) VALUES('integrity-check')`); err != nil {
		return fmt.Errorf("fts integrity check: %w", err)
	}
	return nil
}

