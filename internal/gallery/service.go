package gallery

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"gallery-index/internal/apperr"
	"gallery-index/internal/cache"
	"gallery-index/internal/database"
	"gallery-index/internal/filename"
	"gallery-index/internal/logging"
	"gallery-index/internal/media"
	"gallery-index/internal/mediatypes"
	"gallery-index/internal/remote"
	"gallery-index/internal/search"
	"gallery-index/internal/workers"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	// maxThumbnailFanout caps concurrent first-image lookups.
	maxThumbnailFanout = 16
)

// ImageListOptions are the query parameters of a gallery image listing.
type ImageListOptions struct {
	Page      int
	PageSize  int
	SortField mediatypes.SortField
	SortOrder mediatypes.SortOrder
}

// ImagesPage is one page of a gallery's images.
type ImagesPage struct {
	Images     []database.Image  `json:"images"`
	Pagination search.Pagination `json:"pagination"`
}

// Service is the read path. Every read goes through the query cache; on a
// miss it is answered by the index when a completed sync exists, otherwise by
// the remote store.
type Service struct {
	db    *database.Database
	store remote.Store
	cache *cache.Cache
	ttls  cache.TTLs
}

// NewService creates a Service. db may be nil, in which case every miss
// goes to the remote store.
func NewService(db *database.Database, store remote.Store, c *cache.Cache, ttls cache.TTLs) *Service {
	return &Service{
		db:    db,
		store: store,
		cache: c,
		ttls:  ttls,
	}
}

// Galleries returns every visible gallery, newest first.
func (s *Service) Galleries(ctx context.Context) ([]database.Gallery, error) {
	v, err := s.cache.GetOrLoad(ctx, cache.Key(cache.EndpointGalleries, nil), s.ttls.Galleries,
		func(ctx context.Context) (any, error) {
			if s.useIndex(ctx) {
				return s.db.ListGalleries(ctx)
			}
			return s.remoteGalleries(ctx)
		})
	if err != nil {
		return nil, err
	}
	return v.([]database.Gallery), nil
}

// GalleryImages returns one sorted page of a gallery's images.
func (s *Service) GalleryImages(ctx context.Context, galleryID string, opts ImageListOptions) (*ImagesPage, error) {
	opts, err := normalizeListOptions(opts)
	if err != nil {
		return nil, err
	}

	key := cache.Key(cache.EndpointGalleryImages, map[string]string{
		"id":        galleryID,
		"page":      strconv.Itoa(opts.Page),
		"limit":     strconv.Itoa(opts.PageSize),
		"sortBy":    string(opts.SortField),
		"sortOrder": string(opts.SortOrder),
	})

	v, err := s.cache.GetOrLoad(ctx, key, s.ttls.GalleryImages, func(ctx context.Context) (any, error) {
		if s.useIndex(ctx) {
			page, err := s.db.ListImages(ctx, database.ImageListOptions{
				GalleryID: galleryID,
				Page:      opts.Page,
				PageSize:  opts.PageSize,
				SortField: opts.SortField,
				SortOrder: opts.SortOrder,
			})
			if err != nil {
				return nil, err
			}
			return &ImagesPage{
				Images:     page.Images,
				Pagination: search.NewPagination(opts.Page, opts.PageSize, page.Total),
			}, nil
		}

		images, err := s.remoteImages(ctx, galleryID)
		if err != nil {
			return nil, err
		}
		sortImages(images, opts.SortField, opts.SortOrder)

		lo := min((opts.Page-1)*opts.PageSize, len(images))
		hi := min(lo+opts.PageSize, len(images))
		return &ImagesPage{
			Images:     images[lo:hi],
			Pagination: search.NewPagination(opts.Page, opts.PageSize, len(images)),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ImagesPage), nil
}

// Search runs a search through the cache.
func (s *Service) Search(ctx context.Context, params search.Params) (*search.Result, error) {
	keyParams, err := params.CacheParams()
	if err != nil {
		return nil, err
	}

	v, err := s.cache.GetOrLoad(ctx, cache.Key(cache.EndpointSearch, keyParams), s.ttls.Search,
		func(ctx context.Context) (any, error) {
			var src search.Source = remoteSource{s}
			if s.useIndex(ctx) {
				src = search.NewIndexSource(s.db)
			}
			return search.NewCoordinator(src).Search(ctx, params)
		})
	if err != nil {
		return nil, err
	}
	return v.(*search.Result), nil
}

// ImageMetadata downloads an image and extracts its metadata.
func (s *Service) ImageMetadata(ctx context.Context, imageID string) (*media.Metadata, error) {
	key := cache.Key(cache.EndpointMetadata, map[string]string{"id": imageID})

	v, err := s.cache.GetOrLoad(ctx, key, s.ttls.Metadata, func(ctx context.Context) (any, error) {
		data, err := s.store.GetBytes(ctx, imageID)
		if err != nil {
			return nil, err
		}
		return media.ExtractMetadata(data), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*media.Metadata), nil
}

// useIndex reports whether reads may be served from the index. Failing to
// read the sync marker falls back to the remote store.
func (s *Service) useIndex(ctx context.Context) bool {
	if s.db == nil {
		return false
	}
	ok, err := s.db.IsPopulated(ctx)
	if err != nil {
		logging.Warn("gallery: cannot read sync marker, serving from remote store: %v", err)
		return false
	}
	return ok
}

// remoteGalleries lists the visible collections and attaches each one's
// first image as its thumbnail.
func (s *Service) remoteGalleries(ctx context.Context) ([]database.Gallery, error) {
	start := time.Now()

	collections, err := s.store.ListCollections(ctx)
	if err != nil {
		return nil, err
	}

	galleries := make([]database.Gallery, 0, len(collections))
	for _, c := range collections {
		if g, ok := FromCollection(c); ok {
			galleries = append(galleries, g)
		}
	}
	SortGalleries(galleries)

	if err := AttachThumbnails(ctx, s.store, galleries); err != nil {
		return nil, err
	}

	logging.Debug("gallery: listed %d galleries from remote store in %v", len(galleries), time.Since(start))
	return galleries, nil
}

// AttachThumbnails sets ThumbnailID and ThumbnailURL from each gallery's
// first file. Lookup failures are logged and leave the gallery without a
// thumbnail. Only cancellation of ctx is returned.
func AttachThumbnails(ctx context.Context, store remote.Store, galleries []database.Gallery) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers.ForIO(maxThumbnailFanout))

	for i := range galleries {
		gal := &galleries[i]
		g.Go(func() error {
			first, err := store.FirstItem(gctx, gal.ID)
			if err != nil {
				logging.Warn("gallery: thumbnail lookup failed for %s: %v", gal.Name, err)
				return nil
			}
			if first == nil || !filename.IsImage(first.Name) {
				return nil
			}
			gal.ThumbnailID = first.ID
			gal.ThumbnailURL = first.DownloadURL
			if gal.ThumbnailURL == "" {
				gal.ThumbnailURL = ThumbnailURL(first.ID)
			}
			return nil
		})
	}
	_ = g.Wait()

	return ctx.Err()
}

// remoteImages lists every image of a collection, unsorted.
func (s *Service) remoteImages(ctx context.Context, galleryID string) ([]database.Image, error) {
	items, err := s.store.ListItems(ctx, galleryID)
	if err != nil {
		return nil, err
	}

	images := make([]database.Image, 0, len(items))
	for _, it := range items {
		if img, ok := ImageFromItem(galleryID, it); ok {
			images = append(images, img)
		}
	}
	return images, nil
}

// remoteSource adapts the remote read path to search.Source. Gallery
// listings share the cached Galleries result.
type remoteSource struct {
	s *Service
}

func (r remoteSource) ListGalleries(ctx context.Context) ([]database.Gallery, error) {
	return r.s.Galleries(ctx)
}

func (r remoteSource) GalleryImages(ctx context.Context, galleryID string) ([]database.Image, error) {
	return r.s.remoteImages(ctx, galleryID)
}

func normalizeListOptions(opts ImageListOptions) (ImageListOptions, error) {
	switch {
	case opts.Page == 0:
		opts.Page = 1
	case opts.Page < 0:
		return opts, apperr.Invalid("page", "must be a positive integer")
	}
	switch {
	case opts.PageSize == 0:
		opts.PageSize = defaultPageSize
	case opts.PageSize < 0:
		return opts, apperr.Invalid("limit", "must be a positive integer")
	case opts.PageSize > maxPageSize:
		opts.PageSize = maxPageSize
	}

	field, ok := mediatypes.ParseSortField(string(opts.SortField))
	if !ok {
		return opts, apperr.Invalid("sortBy", fmt.Sprintf("unknown sort field %q", opts.SortField))
	}
	order, ok := mediatypes.ParseSortOrder(string(opts.SortOrder))
	if !ok {
		return opts, apperr.Invalid("sortOrder", fmt.Sprintf("unknown sort order %q", opts.SortOrder))
	}
	opts.SortField, opts.SortOrder = field, order
	return opts, nil
}
