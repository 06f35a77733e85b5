package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gallery-index/internal/apperr"
	"gallery-index/internal/mediatypes"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

const upsertImageQuery = `
	INSERT INTO images (id, gallery_id, name, display_name, date_taken, signature, original_filename,
		size, last_modified, download_url, web_url, width, height, format,
		camera_make, camera_model, lens_model,
		focal_length, aperture, shutter_speed, iso, flash, white_balance,
		color_space, orientation, has_exif, latitude, longitude, altitude, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
		strftime('%s', 'now'))
	ON CONFLICT(id) DO UPDATE SET
		gallery_id = excluded.gallery_id,
		name = excluded.name,
		display_name = excluded.display_name,
		date_taken = excluded.date_taken,
		signature = excluded.signature,
		original_filename = excluded.original_filename,
		size = excluded.size,
		last_modified = excluded.last_modified,
		download_url = excluded.download_url,
		web_url = excluded.web_url,
		width = excluded.width,
		height = excluded.height,
		format = excluded.format,
		camera_make = excluded.camera_make,
		camera_model = excluded.camera_model,
		lens_model = excluded.lens_model,
		focal_length = excluded.focal_length,
		aperture = excluded.aperture,
		shutter_speed = excluded.shutter_speed,
		iso = excluded.iso,
		flash = excluded.flash,
		white_balance = excluded.white_balance,
		color_space = excluded.color_space,
		orientation = excluded.orientation,
		has_exif = excluded.has_exif,
		latitude = excluded.latitude,
		longitude = excluded.longitude,
		altitude = excluded.altitude,
		updated_at = strftime('%s', 'now')
`

const imageColumns = `i.id, i.gallery_id, i.name, i.display_name, i.date_taken, i.signature, i.original_filename,
	i.size, i.last_modified, i.download_url, i.web_url, i.width, i.height, i.format,
	i.camera_make, i.camera_model, i.lens_model,
	i.focal_length, i.aperture, i.shutter_speed, i.iso, i.flash, i.white_balance,
	i.color_space, i.orientation, i.has_exif, i.latitude, i.longitude, i.altitude`

// dateOrder is the effective capture time used for date sorting. date_taken
// is a bare YYYY-MM-DD, so it is widened to midnight UTC in timeLayout form
// before it is compared with last_modified.
const dateOrder = `COALESCE(i.date_taken || 'T00:00:00.000Z', i.last_modified)`

// UpsertImage inserts or overwrites an image by ID. The FTS shadow row is
// maintained by triggers in the same statement.
func (d *Database) UpsertImage(ctx context.Context, img *Image) (err error) {
	start := time.Now()
	defer func() { recordQuery("upsert_image", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	return upsertImage(ctx, d.db, img)
}

// UpsertImageTx inserts or overwrites an image inside a batch transaction.
// A missing gallery yields *apperr.IndexWriteError; only that statement is
// rolled back and the transaction remains usable.
func (d *Database) UpsertImageTx(ctx context.Context, tx *sql.Tx, img *Image) (err error) {
	start := time.Now()
	defer func() { recordQuery("upsert_image", start, err) }()

	return upsertImage(ctx, tx, img)
}

func upsertImage(ctx context.Context, ex execer, img *Image) error {
	if img.ID == "" {
		return &apperr.IndexWriteError{Table: "images", Err: errors.New("empty id")}
	}

	orientation := img.Technical.Orientation
	if orientation == 0 {
		orientation = 1
	}

	var lat, lon, alt sql.NullFloat64
	if img.Location != nil {
		lat = sql.NullFloat64{Float64: img.Location.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: img.Location.Longitude, Valid: true}
		if img.Location.Altitude != nil {
			alt = sql.NullFloat64{Float64: *img.Location.Altitude, Valid: true}
		}
	}

	_, err := ex.ExecContext(ctx, upsertImageQuery,
		img.ID,
		img.GalleryID,
		img.Name,
		img.DisplayName,
		nullString(img.DateTaken),
		nullString(img.Signature),
		img.OriginalFilename,
		img.Size,
		formatTime(img.LastModified),
		img.DownloadURL,
		img.WebURL,
		nullInt(img.Width),
		nullInt(img.Height),
		img.Format,
		img.Camera.Make,
		img.Camera.Model,
		img.Camera.Lens,
		img.Settings.FocalLength,
		img.Settings.Aperture,
		img.Settings.ShutterSpeed,
		nullInt(img.Settings.ISO),
		img.Settings.Flash,
		img.Settings.WhiteBalance,
		img.Technical.ColorSpace,
		orientation,
		img.Technical.HasExif,
		lat, lon, alt,
	)
	return writeError("images", img.ID, err)
}

// ListImages returns one page of a gallery's images and the gallery's total
// image count. Unknown galleries yield a NotFoundError.
func (d *Database) ListImages(ctx context.Context, opts ImageListOptions) (page *ImagePage, err error) {
	start := time.Now()
	defer func() { recordQuery("list_images", start, err) }()

	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize < 1 {
		opts.PageSize = defaultPageSize
	}
	if opts.PageSize > maxPageSize {
		opts.PageSize = maxPageSize
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var exists bool
	if err = d.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM galleries WHERE id = ?)`, opts.GalleryID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.NotFound("gallery", opts.GalleryID)
	}

	page = &ImagePage{Images: []Image{}}
	if err = d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images WHERE gallery_id = ?`, opts.GalleryID).Scan(&page.Total); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM images i
		WHERE i.gallery_id = ?
		ORDER BY %s
		LIMIT ? OFFSET ?
	`, imageColumns, orderClause(opts.SortField, opts.SortOrder))

	rows, err := d.db.QueryContext(ctx, query, opts.GalleryID, opts.PageSize, (opts.Page-1)*opts.PageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	page.Images, err = scanImages(rows)
	if err != nil {
		return nil, err
	}
	return page, nil
}

// ListAllImages returns every image of a gallery, newest first.
func (d *Database) ListAllImages(ctx context.Context, galleryID string) (images []Image, err error) {
	start := time.Now()
	defer func() { recordQuery("list_all_images", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT `+imageColumns+`
		FROM images i
		WHERE i.gallery_id = ?
		ORDER BY `+orderClause(mediatypes.SortByDate, mediatypes.SortDesc),
		galleryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanImages(rows)
}

// GetImage returns one image or a NotFoundError.
func (d *Database) GetImage(ctx context.Context, id string) (img *Image, err error) {
	start := time.Now()
	defer func() { recordQuery("get_image", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM images i WHERE i.id = ?`, id)
	img, err = scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("image", id)
	}
	return img, err
}

// DeleteImagesNotIn removes the images of galleryID whose IDs are not in
// keep. Must be called within a transaction.
func (d *Database) DeleteImagesNotIn(ctx context.Context, tx *sql.Tx, galleryID string, keep []string) (n int64, err error) {
	start := time.Now()
	defer func() { recordQuery("delete_missing_images", start, err) }()

	ids, err := json.Marshal(nonNil(keep))
	if err != nil {
		return 0, err
	}

	result, err := tx.ExecContext(ctx, `
		DELETE FROM images
		WHERE gallery_id = ? AND id NOT IN (SELECT value FROM json_each(?))
	`, galleryID, string(ids))
	if err != nil {
		return 0, fmt.Errorf("delete missing images: %w", err)
	}
	return result.RowsAffected()
}

// orderClause builds the ORDER BY for a sort field. Name is always the
// final tiebreak so pagination is stable.
func orderClause(field SortField, order SortOrder) string {
	dir := "DESC"
	if order == mediatypes.SortAsc {
		dir = "ASC"
	}

	switch field {
	case mediatypes.SortByName:
		return fmt.Sprintf("i.name COLLATE NOCASE %s, i.id", dir)
	case mediatypes.SortBySize:
		return fmt.Sprintf("i.size %s, i.name COLLATE NOCASE ASC, i.id", dir)
	case mediatypes.SortByModified:
		return fmt.Sprintf("i.last_modified %s, i.name COLLATE NOCASE ASC, i.id", dir)
	default:
		return fmt.Sprintf("%s %s, i.name COLLATE NOCASE ASC, i.id", dateOrder, dir)
	}
}

func scanImages(rows *sql.Rows) ([]Image, error) {
	images := []Image{}
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, *img)
	}
	return images, rows.Err()
}

func scanImage(s scanner) (*Image, error) {
	var (
		img                Image
		dateTaken          sql.NullString
		signature          sql.NullString
		lastModified       string
		width, height, iso sql.NullInt64
		lat, lon, alt      sql.NullFloat64
	)

	if err := s.Scan(
		&img.ID, &img.GalleryID, &img.Name, &img.DisplayName, &dateTaken, &signature, &img.OriginalFilename,
		&img.Size, &lastModified, &img.DownloadURL, &img.WebURL, &width, &height, &img.Format,
		&img.Camera.Make, &img.Camera.Model, &img.Camera.Lens,
		&img.Settings.FocalLength, &img.Settings.Aperture, &img.Settings.ShutterSpeed, &iso,
		&img.Settings.Flash, &img.Settings.WhiteBalance,
		&img.Technical.ColorSpace, &img.Technical.Orientation, &img.Technical.HasExif,
		&lat, &lon, &alt,
	); err != nil {
		return nil, err
	}

	img.DateTaken = stringPtr(dateTaken)
	img.Signature = stringPtr(signature)
	img.LastModified = parseTime(lastModified)
	img.Width = intPtr(width)
	img.Height = intPtr(height)
	img.Settings.ISO = intPtr(iso)

	if lat.Valid && lon.Valid {
		img.Location = &Location{Latitude: lat.Float64, Longitude: lon.Float64}
		if alt.Valid {
			a := alt.Float64
			img.Location.Altitude = &a
		}
	}
	return &img, nil
}
