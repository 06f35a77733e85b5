package search

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"gallery-index/internal/database"
	"gallery-index/internal/logging"
	"gallery-index/internal/workers"
)

const (
	// DefaultPageSize applies when Params.PageSize is zero.
	DefaultPageSize = 20
	// MaxPageSize caps Params.PageSize.
	MaxPageSize = 100

	// maxFanout caps concurrent per-gallery fetches.
	maxFanout = 16
)

// Source supplies the galleries and their images.
type Source interface {
	ListGalleries(ctx context.Context) ([]database.Gallery, error)
	GalleryImages(ctx context.Context, galleryID string) ([]database.Image, error)
}

// TextSearcher is implemented by sources that can evaluate the per-image
// text predicate themselves. SearchImages returns the images of the given
// galleries whose name or display name contains query, case-insensitively.
type TextSearcher interface {
	SearchImages(ctx context.Context, query string, galleryIDs []string) ([]database.Image, error)
}

// Pagination describes one page of a result.
type Pagination struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalImages int  `json:"totalImages"`
	HasNext     bool `json:"hasNext"`
	HasPrev     bool `json:"hasPrev"`
}

// NewPagination computes page metadata for total items.
func NewPagination(page, pageSize, total int) Pagination {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	return Pagination{
		CurrentPage: page,
		TotalPages:  totalPages,
		TotalImages: total,
		HasNext:     page*pageSize < total,
		HasPrev:     page > 1,
	}
}

// Collection is a gallery returned by a collections-only search.
type Collection struct {
	database.Gallery
	Type string `json:"type"`
}

// Result is one page of search results. Exactly one of Images and
// Collections is populated; both serialize under "images".
type Result struct {
	Images      []database.Image
	Collections []Collection
	Pagination  Pagination
}

// MarshalJSON implements json.Marshaler.
func (r Result) MarshalJSON() ([]byte, error) {
	var items any
	switch {
	case r.Collections != nil:
		items = r.Collections
	case r.Images != nil:
		items = r.Images
	default:
		items = []database.Image{}
	}
	return json.Marshal(struct {
		Images     any        `json:"images"`
		Pagination Pagination `json:"pagination"`
	}{items, r.Pagination})
}

// Coordinator runs searches against a Source.
type Coordinator struct {
	source      Source
	concurrency int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithConcurrency bounds the number of galleries fetched at once.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// NewCoordinator creates a Coordinator over source.
func NewCoordinator(source Source, opts ...Option) *Coordinator {
	c := &Coordinator{
		source:      source,
		concurrency: workers.ForIO(maxFanout),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search validates params and returns one page of matching images, or of
// matching galleries when CollectionsOnly is set.
func (c *Coordinator) Search(ctx context.Context, params Params) (*Result, error) {
	f, err := params.normalize()
	if err != nil {
		return nil, err
	}

	galleries, err := c.source.ListGalleries(ctx)
	if err != nil {
		return nil, err
	}

	if f.collectionsOnly {
		return searchCollections(galleries, f), nil
	}

	start := time.Now()
	eligible := make([]database.Gallery, 0, len(galleries))
	for i := range galleries {
		if f.matchesDates(&galleries[i]) {
			eligible = append(eligible, galleries[i])
		}
	}

	matching, others := partition(eligible, f.query)

	images, err := c.collect(ctx, matching, others, f.query)
	if err != nil {
		return nil, err
	}

	if f.orientation != OrientationAny {
		kept := images[:0]
		for i := range images {
			if f.orientation.matches(&images[i]) {
				kept = append(kept, images[i])
			}
		}
		images = kept
	}

	sortImages(images)

	logging.Debug("search %q: %d galleries matched, %d searched by filename, %d images in %v",
		f.query, len(matching), len(others), len(images), time.Since(start))

	lo, hi := pageBounds(f.page, f.pageSize, len(images))
	return &Result{
		Images:     images[lo:hi],
		Pagination: NewPagination(f.page, f.pageSize, len(images)),
	}, nil
}

// searchCollections filters galleries by text and dates and paginates them
// in list order.
func searchCollections(galleries []database.Gallery, f *filters) *Result {
	var hits []database.Gallery
	for i := range galleries {
		g := &galleries[i]
		if f.query != "" && !galleryMatches(g, f.query) {
			continue
		}
		if !f.matchesDates(g) {
			continue
		}
		hits = append(hits, *g)
	}

	lo, hi := pageBounds(f.page, f.pageSize, len(hits))
	collections := make([]Collection, 0, hi-lo)
	for _, g := range hits[lo:hi] {
		collections = append(collections, Collection{Gallery: g, Type: "collection"})
	}

	return &Result{
		Collections: collections,
		Pagination:  NewPagination(f.page, f.pageSize, len(hits)),
	}
}

// partition splits galleries into those whose name or display name contains
// query and the rest. An empty query matches nothing, so every gallery is
// searched image by image.
func partition(galleries []database.Gallery, query string) (matching, others []database.Gallery) {
	for i := range galleries {
		if query != "" && galleryMatches(&galleries[i], query) {
			matching = append(matching, galleries[i])
		} else {
			others = append(others, galleries[i])
		}
	}
	return matching, others
}

// collect gathers every image of the matching galleries and the images of
// the other galleries that match query themselves.
func (c *Coordinator) collect(ctx context.Context, matching, others []database.Gallery, query string) ([]database.Image, error) {
	ts, pushdown := c.source.(TextSearcher)
	pushdown = pushdown && query != "" && len(others) > 0

	fetchOthers := others
	if pushdown {
		fetchOthers = nil
	}

	matched, err := c.fetchAll(ctx, matching)
	if err != nil {
		return nil, err
	}
	unmatched, err := c.fetchAll(ctx, fetchOthers)
	if err != nil {
		return nil, err
	}

	var filtered []database.Image
	if pushdown {
		ids := make([]string, len(others))
		for i := range others {
			ids[i] = others[i].ID
		}
		filtered, err = ts.SearchImages(ctx, query, ids)
		if err != nil {
			logging.Warn("search: text predicate pushdown failed, filtering in memory: %v", err)
			filtered = nil
			if unmatched, err = c.fetchAll(ctx, others); err != nil {
				return nil, err
			}
			pushdown = false
		}
	}
	if !pushdown {
		for i := range unmatched {
			if query == "" || imageMatches(&unmatched[i], query) {
				filtered = append(filtered, unmatched[i])
			}
		}
	}

	return append(matched, filtered...), nil
}

// fetchAll loads the images of every gallery concurrently. A gallery that
// fails to load contributes no images. Results keep gallery order.
func (c *Coordinator) fetchAll(ctx context.Context, galleries []database.Gallery) ([]database.Image, error) {
	if len(galleries) == 0 {
		return nil, nil
	}

	perGallery := make([][]database.Image, len(galleries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i := range galleries {
		gal := &galleries[i]
		g.Go(func() error {
			images, err := c.source.GalleryImages(gctx, gal.ID)
			if err != nil {
				logging.Warn("search: failed to fetch images from gallery %s (%s): %v", gal.Name, gal.ID, err)
				return nil
			}
			perGallery[i] = images
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []database.Image
	for _, images := range perGallery {
		out = append(out, images...)
	}
	return out, nil
}

func galleryMatches(g *database.Gallery, query string) bool {
	return containsFold(g.Name, query) || containsFold(g.DisplayName, query)
}

func imageMatches(img *database.Image, query string) bool {
	return containsFold(img.Name, query) ||
		containsFold(img.DisplayName, query) ||
		containsFold(img.OriginalFilename, query)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// sortImages orders images newest first by capture date, falling back to the
// modification time. Ties fall back to name and ID so that every source
// yields the same order.
func sortImages(images []database.Image) {
	sort.SliceStable(images, func(i, j int) bool {
		ti, tj := images[i].SortTime(), images[j].SortTime()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		if images[i].Name != images[j].Name {
			return images[i].Name < images[j].Name
		}
		return images[i].ID < images[j].ID
	})
}

// pageBounds returns the slice bounds of a page, clamped to n.
func pageBounds(page, pageSize, n int) (lo, hi int) {
	lo = (page - 1) * pageSize
	if lo > n {
		lo = n
	}
	hi = lo + pageSize
	if hi > n {
		hi = n
	}
	return lo, hi
}
