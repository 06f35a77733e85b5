package search

import (
	"context"

	"gallery-index/internal/database"
)

// IndexSource serves searches from the local index. It evaluates the
// per-image text predicate with the FTS5 shadow table.
type IndexSource struct {
	db *database.Database
}

// NewIndexSource creates an IndexSource over db.
func NewIndexSource(db *database.Database) *IndexSource {
	return &IndexSource{db: db}
}

// ListGalleries implements Source.
func (s *IndexSource) ListGalleries(ctx context.Context) ([]database.Gallery, error) {
	return s.db.ListGalleries(ctx)
}

// GalleryImages implements Source.
func (s *IndexSource) GalleryImages(ctx context.Context, galleryID string) ([]database.Image, error) {
	return s.db.ListAllImages(ctx, galleryID)
}

// SearchImages implements TextSearcher. The original filename is always a
// substring of the stored name, so matching name and display name covers
// all three fields the in-memory predicate checks.
func (s *IndexSource) SearchImages(ctx context.Context, query string, galleryIDs []string) ([]database.Image, error) {
	if galleryIDs == nil {
		galleryIDs = []string{}
	}
	return s.db.FullTextSearch(ctx, query, database.FTSFilters{GalleryIDs: galleryIDs})
}

var (
	_ Source       = (*IndexSource)(nil)
	_ TextSearcher = (*IndexSource)(nil)
)
