package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gallery-index/internal/apperr"
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const upsertGalleryQuery = `
	INSERT INTO galleries (id, name, display_name, capture_date, item_count, last_modified, web_url,
		thumbnail_id, thumbnail_url, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, strftime('%s', 'now'))
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		display_name = excluded.display_name,
		capture_date = excluded.capture_date,
		item_count = excluded.item_count,
		last_modified = excluded.last_modified,
		web_url = excluded.web_url,
		thumbnail_id = excluded.thumbnail_id,
		thumbnail_url = excluded.thumbnail_url,
		updated_at = strftime('%s', 'now')
`

const galleryColumns = `id, name, display_name, capture_date, item_count, last_modified, web_url, thumbnail_id, thumbnail_url`

// UpsertGallery inserts or overwrites a gallery by ID.
func (d *Database) UpsertGallery(ctx context.Context, g *Gallery) (err error) {
	start := time.Now()
	defer func() { recordQuery("upsert_gallery", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	return upsertGallery(ctx, d.db, g)
}

// UpsertGalleryTx inserts or overwrites a gallery inside a batch transaction.
// A constraint violation is returned as *apperr.IndexWriteError and leaves
// the transaction usable.
func (d *Database) UpsertGalleryTx(ctx context.Context, tx *sql.Tx, g *Gallery) (err error) {
	start := time.Now()
	defer func() { recordQuery("upsert_gallery", start, err) }()

	return upsertGallery(ctx, tx, g)
}

func upsertGallery(ctx context.Context, ex execer, g *Gallery) error {
	if g.ID == "" {
		return &apperr.IndexWriteError{Table: "galleries", Err: errors.New("empty id")}
	}

	_, err := ex.ExecContext(ctx, upsertGalleryQuery,
		g.ID,
		g.Name,
		g.DisplayName,
		nullString(g.CaptureDate),
		g.ItemCount,
		formatTime(g.LastModified),
		g.WebURL,
		g.ThumbnailID,
		g.ThumbnailURL,
	)
	return writeError("galleries", g.ID, err)
}

// ListGalleries returns every gallery, newest capture date first. Galleries
// without a capture date come after all dated ones; ties sort by name.
func (d *Database) ListGalleries(ctx context.Context) (galleries []Gallery, err error) {
	start := time.Now()
	defer func() { recordQuery("list_galleries", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT `+galleryColumns+`
		FROM galleries
		ORDER BY capture_date IS NULL, capture_date DESC, name COLLATE NOCASE ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	galleries = []Gallery{}
	for rows.Next() {
		g, err := scanGallery(rows)
		if err != nil {
			return nil, err
		}
		galleries = append(galleries, *g)
	}
	return galleries, rows.Err()
}

// GetGallery returns one gallery or a NotFoundError.
func (d *Database) GetGallery(ctx context.Context, id string) (g *Gallery, err error) {
	start := time.Now()
	defer func() { recordQuery("get_gallery", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx, `SELECT `+galleryColumns+` FROM galleries WHERE id = ?`, id)
	g, err = scanGallery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("gallery", id)
	}
	return g, err
}

// DeleteGalleriesNotIn removes every gallery whose ID is not in keep, along
// with its images and their FTS rows. Must be called within a transaction.
func (d *Database) DeleteGalleriesNotIn(ctx context.Context, tx *sql.Tx, keep []string) (n int64, err error) {
	start := time.Now()
	defer func() { recordQuery("delete_missing_galleries", start, err) }()

	ids, err := json.Marshal(nonNil(keep))
	if err != nil {
		return 0, err
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM galleries WHERE id NOT IN (SELECT value FROM json_each(?))`, string(ids))
	if err != nil {
		return 0, fmt.Errorf("delete missing galleries: %w", err)
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGallery(s scanner) (*Gallery, error) {
	var (
		g            Gallery
		captureDate  sql.NullString
		lastModified string
	)
	if err := s.Scan(&g.ID, &g.Name, &g.DisplayName, &captureDate, &g.ItemCount, &lastModified,
		&g.WebURL, &g.ThumbnailID, &g.ThumbnailURL); err != nil {
		return nil, err
	}
	g.CaptureDate = stringPtr(captureDate)
	g.LastModified = parseTime(lastModified)
	return &g, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

