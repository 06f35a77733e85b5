package remote

import (
	"context"
	"errors"
	"time"

	"gallery-index/internal/apperr"
	"gallery-index/internal/metrics"
)

// Collection is a top-level folder in the remote store. Each collection
// becomes one gallery.
type Collection struct {
	ID           string
	Name         string
	ChildCount   int
	LastModified time.Time
	WebURL       string
}

// Item is a file or folder inside a collection.
type Item struct {
	ID           string
	Name         string
	Size         int64
	LastModified time.Time
	WebURL       string
	DownloadURL  string
	MimeType     string
	IsFolder     bool

	// Facets reported by the store without downloading the bytes. Nil or
	// empty when the store does not know.
	Width  *int
	Height *int
	Photo  *Photo
}

// Photo is the camera data a store read from the file's EXIF block. Zero
// values mean the field was not reported.
type Photo struct {
	CameraMake          string
	CameraModel         string
	FNumber             float64
	FocalLength         float64
	ExposureNumerator   float64
	ExposureDenominator float64
	ISO                 int
	Orientation         int
}

// ExposureTime returns the exposure time in seconds, or 0 when unknown.
func (p *Photo) ExposureTime() float64 {
	if p.ExposureNumerator <= 0 || p.ExposureDenominator <= 0 {
		return 0
	}
	return p.ExposureNumerator / p.ExposureDenominator
}

// Store is the hierarchical remote photo store. Implementations must be safe
// for concurrent use.
type Store interface {
	// ListCollections returns every collection under the configured root.
	ListCollections(ctx context.Context) ([]Collection, error)

	// ListItems returns every direct child of a collection.
	ListItems(ctx context.Context, collectionID string) ([]Item, error)

	// FirstItem returns the first file of a collection ordered by name, or
	// nil when the collection holds no files.
	FirstItem(ctx context.Context, collectionID string) (*Item, error)

	// GetItem returns a single item. Unknown IDs yield *apperr.NotFoundError.
	GetItem(ctx context.Context, id string) (*Item, error)

	// GetBytes downloads the content of an item.
	GetBytes(ctx context.Context, id string) ([]byte, error)
}

// Operation names used as metric labels.
const (
	opListCollections = "list_collections"
	opListItems       = "list_items"
	opFirstItem       = "first_item"
	opGetItem         = "get_item"
	opGetBytes        = "get_bytes"
)

// recordRequest records a remote call. Not-found answers count as success:
// the store responded.
func recordRequest(operation string, start time.Time, err error) {
	status := "success"
	if err != nil && !apperr.IsNotFound(err) {
		status = "error"
	}
	metrics.RemoteRequestsTotal.WithLabelValues(operation, status).Inc()
	metrics.RemoteRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// unavailable wraps err as a RemoteUnavailableError unless it already
// carries a classification.
func unavailable(op string, err error) error {
	var (
		ru *apperr.RemoteUnavailableError
		nf *apperr.NotFoundError
	)
	if errors.As(err, &ru) || errors.As(err, &nf) {
		return err
	}
	return &apperr.RemoteUnavailableError{Op: op, Err: err}
}
