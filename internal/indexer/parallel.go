package indexer

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"gallery-index/internal/database"
	"gallery-index/internal/gallery"
	"gallery-index/internal/logging"
	"gallery-index/internal/media"
	"gallery-index/internal/metrics"
	"gallery-index/internal/workers"
)

// ParallelConfig configures how a sync talks to the remote store.
type ParallelConfig struct {
	// NumWorkers is the number of galleries listed concurrently
	NumWorkers int
	// BatchSize is the number of images written per transaction
	BatchSize int
	// ExtractMetadata downloads new and changed images to read their EXIF
	// data. Unchanged images keep what the index already holds.
	ExtractMetadata bool
}

// DefaultParallelConfig returns defaults based on available resources.
// SYNC_WORKERS overrides the worker count.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{
		NumWorkers: workers.ForIO(8),
		BatchSize:  batchSize,
	}
}

// galleryListing is the outcome of listing one gallery. A non-nil err means
// the gallery's images are left untouched by this sync.
type galleryListing struct {
	galleryID string
	images    []database.Image
	err       error
}

// listGalleries lists the items of every gallery concurrently. Results keep
// the order of galleries. Per-gallery failures are recorded, not returned;
// the only error returned is the context's.
func (idx *Indexer) listGalleries(ctx context.Context, galleries []database.Gallery) ([]galleryListing, error) {
	listings := make([]galleryListing, len(galleries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.parallelConfig.NumWorkers)

	for i := range galleries {
		id := galleries[i].ID
		name := galleries[i].Name
		g.Go(func() error {
			listings[i].galleryID = id

			items, err := idx.store.ListItems(gctx, id)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logging.Warn("Failed to list gallery %s, keeping indexed images: %v", name, err)
				listings[i].err = err
				return nil
			}

			images := make([]database.Image, 0, len(items))
			for _, it := range items {
				if img, ok := gallery.ImageFromItem(id, it); ok {
					images = append(images, img)
				}
			}
			if idx.parallelConfig.ExtractMetadata {
				if err := idx.enrichImages(gctx, id, images); err != nil {
					return err
				}
			}
			listings[i].images = images
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return listings, nil
}

// enrichImages fills file metadata for the images of one gallery. Images
// whose size and modification time match the index reuse the indexed
// metadata; the rest are downloaded and their EXIF data read. A failed
// download leaves the image with what the store reported. Only the
// context's error is returned.
func (idx *Indexer) enrichImages(ctx context.Context, galleryID string, images []database.Image) error {
	indexed, err := idx.db.ListAllImages(ctx, galleryID)
	if err != nil {
		logging.Warn("Failed to read indexed images of %s, extracting all: %v", galleryID, err)
	}
	prev := make(map[string]*database.Image, len(indexed))
	for i := range indexed {
		prev[indexed[i].ID] = &indexed[i]
	}

	for i := range images {
		img := &images[i]
		if p, ok := prev[img.ID]; ok && unchanged(p, img) {
			gallery.CarryMetadata(img, p)
			metrics.SyncMetadataExtractions.WithLabelValues("reused").Inc()
			continue
		}

		data, err := idx.store.GetBytes(ctx, img.ID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.Debug("Metadata for %s skipped: %v", img.Name, err)
			metrics.SyncMetadataExtractions.WithLabelValues("error").Inc()
			continue
		}
		gallery.ApplyMetadata(img, media.ExtractMetadata(data))
		metrics.SyncMetadataExtractions.WithLabelValues("extracted").Inc()
	}
	return nil
}

// unchanged reports whether img is the same file version as the indexed
// prev. The index keeps modification times to the millisecond.
func unchanged(prev, img *database.Image) bool {
	return prev.Size == img.Size && prev.LastModified.Equal(img.LastModified.Truncate(time.Millisecond))
}
