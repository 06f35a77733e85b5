package database

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"gallery-index/internal/mediatypes"
)

// minTrigramRunes is the shortest query the trigram tokenizer can match.
const minTrigramRunes = 3

// FullTextSearch returns images whose name or display name contains query,
// case-insensitively, restricted by filters. Camera fields are searched too
// when filters.IncludeCamera is set. Queries shorter than three characters
// cannot be matched by the trigram tokenizer; they are matched in Go after
// the filters have been applied, with the same Unicode case folding.
// An empty query applies only the filters.
func (d *Database) FullTextSearch(ctx context.Context, query string, filters FTSFilters) (images []Image, err error) {
	start := time.Now()
	defer func() { recordQuery("full_text_search", start, err) }()

	if filters.GalleryIDs != nil && len(filters.GalleryIDs) == 0 {
		return []Image{}, nil
	}

	var (
		where []string
		args  []any
	)

	query = strings.TrimSpace(query)
	columns := []string{"name", "display_name"}
	if filters.IncludeCamera {
		columns = append(columns, "camera_make", "camera_model", "lens_model")
	}

	var short string
	switch {
	case query == "":
	case utf8.RuneCountInString(query) >= minTrigramRunes:
		where = append(where, `i.rowid IN (SELECT rowid FROM images_fts WHERE images_fts MATCH ?)`)
		args = append(args, matchExpression(columns, query))
	default:
		short = strings.ToLower(query)
	}

	if filters.GalleryIDs != nil {
		ids, err := json.Marshal(filters.GalleryIDs)
		if err != nil {
			return nil, err
		}
		where = append(where, `i.gallery_id IN (SELECT value FROM json_each(?))`)
		args = append(args, string(ids))
	}
	if filters.StartDate != "" {
		where = append(where, `i.date_taken >= ?`)
		args = append(args, filters.StartDate)
	}
	if filters.EndDate != "" {
		where = append(where, `i.date_taken <= ?`)
		args = append(args, filters.EndDate)
	}

	sqlQuery := `SELECT ` + imageColumns + ` FROM images i`
	if len(where) > 0 {
		sqlQuery += ` WHERE ` + strings.Join(where, " AND ")
	}
	sqlQuery += ` ORDER BY ` + orderClause(mediatypes.SortByDate, mediatypes.SortDesc)

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	images, err = scanImages(rows)
	if err != nil || short == "" {
		return images, err
	}

	matched := images[:0]
	for _, img := range images {
		if matchesShort(&img, short, filters.IncludeCamera) {
			matched = append(matched, img)
		}
	}
	return matched, nil
}

// matchesShort reports whether any searched field of img contains the
// lower-cased query.
func matchesShort(img *Image, query string, includeCamera bool) bool {
	fields := []string{img.Name, img.DisplayName}
	if includeCamera {
		fields = append(fields, img.Camera.Make, img.Camera.Model, img.Camera.Lens)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), query) {
			return true
		}
	}
	return false
}

// matchExpression builds an FTS5 column-filtered phrase query, for example
// {name display_name} : "owl 6042". The phrase is quoted so that FTS5
// operators in user input are taken literally.
func matchExpression(columns []string, query string) string {
	phrase := `"` + strings.ReplaceAll(query, `"`, `""`) + `"`
	return "{" + strings.Join(columns, " ") + "} : " + phrase
}
