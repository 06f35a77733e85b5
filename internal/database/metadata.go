package database

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"
)

const (
	lastSyncKey   = "last_sync"
	generationKey = "generation"
)

// GetMetadata retrieves a metadata value by key.
// Returns sql.ErrNoRows if the key doesn't exist.
func (d *Database) GetMetadata(ctx context.Context, key string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var value sql.NullString
	err := d.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value.String, nil
}

// SetMetadata sets a metadata key-value pair.
func (d *Database) SetMetadata(ctx context.Context, key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// Generation returns the index generation. DeleteAll increments it, so a
// sync that read a generation before a DeleteAll can tell its writes were
// wiped.
func (d *Database) Generation(ctx context.Context) (int64, error) {
	value, err := d.GetMetadata(ctx, generationKey)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(value, 10, 64)
}

// MarkSynced records that a full sync completed at t, provided the index is
// still at generation. It returns false and leaves the marker unset when a
// DeleteAll ran since the sync read generation. From then on the index
// counts as populated until DeleteAll.
func (d *Database) MarkSynced(ctx context.Context, t time.Time, generation int64) (marked bool, err error) {
	start := time.Now()
	defer func() { recordQuery("mark_synced", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if !marked {
			_ = tx.Rollback()
		}
	}()

	var current int64
	err = tx.QueryRowContext(ctx, `SELECT CAST(value AS INTEGER) FROM metadata WHERE key = ?`, generationKey).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	if current != generation {
		return false, nil
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, lastSyncKey, t.UTC().Format(time.RFC3339)); err != nil {
		return false, err
	}
	if err = tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// LastSync returns the time of the last completed sync. ok is false if the
// index has never been synced or was cleared since.
func (d *Database) LastSync(ctx context.Context) (t time.Time, ok bool, err error) {
	value, err := d.GetMetadata(ctx, lastSyncKey)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	if value == "" {
		return time.Time{}, false, nil
	}

	t, err = time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// IsPopulated reports whether reads may be served from the index.
func (d *Database) IsPopulated(ctx context.Context) (bool, error) {
	_, ok, err := d.LastSync(ctx)
	return ok, err
}
