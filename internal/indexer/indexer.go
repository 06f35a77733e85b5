package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gallery-index/internal/apperr"
	"gallery-index/internal/database"
	"gallery-index/internal/gallery"
	"gallery-index/internal/logging"
	"gallery-index/internal/metrics"
	"gallery-index/internal/remote"
)

const (
	// Number of images to upsert before committing a batch
	batchSize = 500

	// Delay between batches to allow other operations
	batchDelay = 10 * time.Millisecond

	// Default interval between full syncs
	defaultIndexInterval = 30 * time.Minute
)

// ErrIndexCleared is returned by Index when the index was cleared while the
// sync ran. The sync's writes are discarded and the index stays unpopulated.
var ErrIndexCleared = errors.New("index cleared during sync")

// Indexer mirrors the remote store into the index. Only one sync runs at a
// time; syncs run at start, every interval and on demand.
type Indexer struct {
	db            *database.Database
	store         remote.Store
	indexInterval time.Duration

	stopChan    chan struct{}
	stopOnce    sync.Once
	triggerChan chan struct{}
	cancelRun   context.CancelFunc
	wg          sync.WaitGroup

	indexMu              sync.Mutex
	isIndexing           bool
	lastIndexTime        time.Time
	initialIndexComplete bool
	initialIndexError    error
	lastIndexError       error
	startTime            time.Time

	// Progress tracking
	galleriesIndexed atomic.Int64
	imagesIndexed    atomic.Int64
	indexProgress    atomic.Value

	parallelConfig ParallelConfig

	// Callback when a sync completes successfully
	onIndexComplete func()
}

// IndexProgress tracks the progress of the running sync.
type IndexProgress struct {
	GalleriesIndexed int64     `json:"galleriesIndexed"`
	ImagesIndexed    int64     `json:"imagesIndexed"`
	IsIndexing       bool      `json:"isIndexing"`
	StartedAt        time.Time `json:"startedAt,omitempty"`
}

// HealthStatus contains health check information.
type HealthStatus struct {
	Ready             bool           `json:"ready"`
	Indexing          bool           `json:"indexing"`
	StartTime         time.Time      `json:"startTime"`
	Uptime            string         `json:"uptime"`
	LastIndexed       time.Time      `json:"lastIndexed,omitempty"`
	InitialIndexError string         `json:"initialIndexError,omitempty"`
	LastIndexError    string         `json:"lastIndexError,omitempty"`
	GalleriesIndexed  int64          `json:"galleriesIndexed"`
	ImagesIndexed     int64          `json:"imagesIndexed"`
	IndexProgress     *IndexProgress `json:"indexProgress,omitempty"`
}

// New creates a new Indexer. A non-positive interval selects the default.
func New(db *database.Database, store remote.Store, indexInterval time.Duration) *Indexer {
	if indexInterval <= 0 {
		indexInterval = defaultIndexInterval
	}
	idx := &Indexer{
		db:             db,
		store:          store,
		indexInterval:  indexInterval,
		stopChan:       make(chan struct{}),
		triggerChan:    make(chan struct{}, 1),
		startTime:      time.Now(),
		parallelConfig: DefaultParallelConfig(),
	}
	idx.indexProgress.Store(IndexProgress{})
	return idx
}

// SetParallelConfig sets the concurrency and batching of a sync.
func (idx *Indexer) SetParallelConfig(config ParallelConfig) {
	if config.NumWorkers < 1 {
		config.NumWorkers = 1
	}
	if config.BatchSize < 1 {
		config.BatchSize = batchSize
	}
	idx.parallelConfig = config
}

// SetOnIndexComplete sets a callback invoked after each successful sync.
func (idx *Indexer) SetOnIndexComplete(callback func()) {
	idx.onIndexComplete = callback
}

// Start runs the initial sync in the background and schedules the periodic
// and triggered ones.
func (idx *Indexer) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	idx.cancelRun = cancel

	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()

		logging.Info("Starting initial sync in background...")
		if err := idx.Index(ctx); err != nil {
			logging.Error("Initial sync error: %v", err)
			idx.indexMu.Lock()
			idx.initialIndexError = err
			idx.indexMu.Unlock()
		}

		idx.run(ctx)
	}()

	return nil
}

// Stop cancels a running sync and waits for the scheduler to exit.
func (idx *Indexer) Stop() {
	idx.stopOnce.Do(func() {
		close(idx.stopChan)
		if idx.cancelRun != nil {
			idx.cancelRun()
		}
	})
	idx.wg.Wait()
}

// TriggerIndex requests a sync. Requests made while one is pending collapse
// into one. Without Start the sync runs in its own goroutine.
func (idx *Indexer) TriggerIndex() {
	if idx.cancelRun == nil {
		go func() {
			if err := idx.Index(context.Background()); err != nil {
				logging.Error("manually triggered sync failed: %v", err)
			}
		}()
		return
	}

	select {
	case idx.triggerChan <- struct{}{}:
	default:
		logging.Debug("Sync already requested")
	}
}

func (idx *Indexer) run(ctx context.Context) {
	ticker := time.NewTicker(idx.indexInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			logging.Debug("Periodic sync triggered")
			if err := idx.Index(ctx); err != nil {
				logging.Error("periodic sync failed: %v", err)
			}
		case <-idx.triggerChan:
			logging.Info("Sync triggered")
			if err := idx.Index(ctx); err != nil {
				logging.Error("triggered sync failed: %v", err)
			}
		case <-idx.stopChan:
			logging.Info("Sync scheduler stopped")
			return
		}
	}
}

// IsReady returns true once the initial sync has finished, successfully or
// not. Reads fall back to the remote store until the index is populated.
func (idx *Indexer) IsReady() bool {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()
	return idx.initialIndexComplete
}

// IsIndexing returns whether a sync is currently running.
func (idx *Indexer) IsIndexing() bool {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()
	return idx.isIndexing
}

// LastIndexTime returns the time of the last successful sync.
func (idx *Indexer) LastIndexTime() time.Time {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()
	return idx.lastIndexTime
}

// GetProgress returns the current sync progress.
func (idx *Indexer) GetProgress() IndexProgress {
	if progress, ok := idx.indexProgress.Load().(IndexProgress); ok {
		return progress
	}
	return IndexProgress{}
}

// GetHealthStatus returns detailed health information.
func (idx *Indexer) GetHealthStatus() HealthStatus {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()

	progress := idx.GetProgress()

	status := HealthStatus{
		Ready:            idx.initialIndexComplete,
		Indexing:         idx.isIndexing,
		StartTime:        idx.startTime,
		Uptime:           time.Since(idx.startTime).String(),
		LastIndexed:      idx.lastIndexTime,
		GalleriesIndexed: idx.galleriesIndexed.Load(),
		ImagesIndexed:    idx.imagesIndexed.Load(),
	}

	if idx.isIndexing {
		status.IndexProgress = &progress
	}
	if idx.initialIndexError != nil {
		status.InitialIndexError = idx.initialIndexError.Error()
	}
	if idx.lastIndexError != nil {
		status.LastIndexError = idx.lastIndexError.Error()
	}

	return status
}

// syncResult holds the outcome of one sync.
type syncResult struct {
	galleries      int
	images         int
	skippedWrites  int
	failedListings int
	deletedGallery int64
	deletedImages  int64
}

// Index performs a full sync. It returns nil without doing anything when a
// sync is already running. A failure to list one gallery skips that gallery;
// a failure to list the collections aborts the run and leaves the index as
// it was.
func (idx *Indexer) Index(ctx context.Context) (err error) {
	if !idx.tryStartIndexing() {
		logging.Info("Sync already in progress, skipping...")
		return nil
	}
	defer func() { idx.finishIndexing(err) }()

	metrics.SyncIsRunning.Set(1)
	defer metrics.SyncIsRunning.Set(0)

	startTime := time.Now()
	logging.Info("Starting sync from remote store...")
	idx.resetCounters(startTime)

	result, err := idx.sync(ctx, startTime)
	if errors.Is(err, ErrIndexCleared) {
		logging.Warn("Index cleared during sync, not marking it populated")
		metrics.SyncRunsTotal.WithLabelValues("discarded").Inc()
		return err
	}
	if err != nil {
		metrics.SyncErrors.Inc()
		metrics.SyncRunsTotal.WithLabelValues("error").Inc()
		return err
	}

	idx.finalizeIndex(startTime, result)
	metrics.SyncRunsTotal.WithLabelValues("success").Inc()
	return nil
}

func (idx *Indexer) sync(ctx context.Context, startTime time.Time) (syncResult, error) {
	var result syncResult

	generation, err := idx.db.Generation(ctx)
	if err != nil {
		return result, fmt.Errorf("read index generation: %w", err)
	}

	collections, err := idx.store.ListCollections(ctx)
	if err != nil {
		return result, fmt.Errorf("list collections: %w", err)
	}

	galleries := make([]database.Gallery, 0, len(collections))
	for _, c := range collections {
		if g, ok := gallery.FromCollection(c); ok {
			galleries = append(galleries, g)
		}
	}
	if err := gallery.AttachThumbnails(ctx, idx.store, galleries); err != nil {
		return result, err
	}

	skipped, err := idx.upsertGalleries(ctx, galleries)
	if err != nil {
		return result, err
	}
	result.galleries = len(galleries) - skipped
	result.skippedWrites += skipped
	idx.galleriesIndexed.Store(int64(result.galleries))
	idx.updateProgress(startTime)

	listings, err := idx.listGalleries(ctx, galleries)
	if err != nil {
		return result, err
	}

	var images []database.Image
	for _, l := range listings {
		if l.err != nil {
			result.failedListings++
			continue
		}
		images = append(images, l.images...)
	}

	written, skipped, err := idx.processBatchedImages(ctx, images, startTime)
	if err != nil {
		return result, err
	}
	result.images = written
	result.skippedWrites += skipped

	result.deletedGallery, result.deletedImages, err = idx.cleanupMissing(ctx, galleries, listings)
	if err != nil {
		return result, err
	}

	marked, err := idx.db.MarkSynced(ctx, time.Now(), generation)
	if err != nil {
		return result, fmt.Errorf("mark synced: %w", err)
	}
	if !marked {
		return result, ErrIndexCleared
	}
	return result, nil
}

// upsertGalleries writes every gallery in one transaction. Rejected rows are
// logged and counted; any other error rolls the batch back.
func (idx *Indexer) upsertGalleries(ctx context.Context, galleries []database.Gallery) (skipped int, err error) {
	tx, err := idx.db.BeginBatch(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin gallery batch: %w", err)
	}

	for i := range galleries {
		if err := idx.db.UpsertGalleryTx(ctx, tx, &galleries[i]); err != nil {
			var we *apperr.IndexWriteError
			if errors.As(err, &we) {
				logging.Warn("Skipping gallery %s: %v", galleries[i].Name, err)
				skipped++
				continue
			}
			return 0, idx.db.EndBatch(tx, err)
		}
	}

	if err := idx.db.EndBatch(tx, nil); err != nil {
		return 0, fmt.Errorf("failed to commit gallery batch: %w", err)
	}
	return skipped, nil
}

// processBatchedImages upserts images in batches of BatchSize, one
// transaction per batch.
func (idx *Indexer) processBatchedImages(ctx context.Context, images []database.Image, startTime time.Time) (written, skipped int, err error) {
	total := len(images)
	size := idx.parallelConfig.BatchSize
	logging.Info("Processing %d images in batches of %d", total, size)

	for i := 0; i < total; i += size {
		if err := ctx.Err(); err != nil {
			return written, skipped, err
		}

		end := min(i+size, total)

		w, s, err := idx.processBatch(ctx, images[i:end])
		if err != nil {
			return written, skipped, err
		}
		written += w
		skipped += s
		idx.imagesIndexed.Add(int64(w))
		idx.updateProgress(startTime)

		if end < total {
			time.Sleep(batchDelay)
		}
		if end%5000 == 0 || end == total {
			logging.Info("Database insert progress: %d/%d images", end, total)
		}
	}

	return written, skipped, nil
}

// processBatch upserts a batch of images in a single transaction.
func (idx *Indexer) processBatch(ctx context.Context, images []database.Image) (written, skipped int, err error) {
	if len(images) == 0 {
		return 0, 0, nil
	}

	tx, err := idx.db.BeginBatch(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin batch transaction: %w", err)
	}

	for i := range images {
		if err := idx.db.UpsertImageTx(ctx, tx, &images[i]); err != nil {
			var we *apperr.IndexWriteError
			if errors.As(err, &we) {
				logging.Warn("Skipping image %s: %v", images[i].Name, err)
				skipped++
				continue
			}
			return 0, 0, idx.db.EndBatch(tx, err)
		}
		written++
	}

	if err := idx.db.EndBatch(tx, nil); err != nil {
		return 0, 0, fmt.Errorf("failed to commit batch: %w", err)
	}
	return written, skipped, nil
}

// cleanupMissing removes galleries no longer present remotely and, for every
// gallery that listed successfully, images no longer present in it.
func (idx *Indexer) cleanupMissing(ctx context.Context, galleries []database.Gallery, listings []galleryListing) (deletedGalleries, deletedImages int64, err error) {
	tx, err := idx.db.BeginBatch(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin cleanup transaction: %w", err)
	}

	keep := make([]string, len(galleries))
	for i := range galleries {
		keep[i] = galleries[i].ID
	}

	deletedGalleries, err = idx.db.DeleteGalleriesNotIn(ctx, tx, keep)
	if err != nil {
		return 0, 0, idx.db.EndBatch(tx, err)
	}

	for _, l := range listings {
		if l.err != nil {
			continue
		}
		ids := make([]string, len(l.images))
		for i := range l.images {
			ids[i] = l.images[i].ID
		}
		n, err := idx.db.DeleteImagesNotIn(ctx, tx, l.galleryID, ids)
		if err != nil {
			return 0, 0, idx.db.EndBatch(tx, err)
		}
		deletedImages += n
	}

	if err := idx.db.EndBatch(tx, nil); err != nil {
		return 0, 0, fmt.Errorf("failed to commit cleanup: %w", err)
	}

	if deletedGalleries > 0 || deletedImages > 0 {
		logging.Info("Removed %d galleries and %d images no longer in the remote store", deletedGalleries, deletedImages)
	}
	return deletedGalleries, deletedImages, nil
}

// tryStartIndexing attempts to start a sync, returns false if one is already in progress.
func (idx *Indexer) tryStartIndexing() bool {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()

	if idx.isIndexing {
		return false
	}
	idx.isIndexing = true
	return true
}

// finishIndexing marks the sync as complete.
func (idx *Indexer) finishIndexing(err error) {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()

	idx.isIndexing = false
	idx.initialIndexComplete = true
	idx.lastIndexError = err

	progress := idx.GetProgress()
	progress.IsIndexing = false
	idx.indexProgress.Store(progress)
}

// resetCounters resets the progress counters.
func (idx *Indexer) resetCounters(startTime time.Time) {
	idx.galleriesIndexed.Store(0)
	idx.imagesIndexed.Store(0)
	idx.indexProgress.Store(IndexProgress{
		IsIndexing: true,
		StartedAt:  startTime,
	})
}

// updateProgress updates the sync progress.
func (idx *Indexer) updateProgress(startTime time.Time) {
	idx.indexProgress.Store(IndexProgress{
		GalleriesIndexed: idx.galleriesIndexed.Load(),
		ImagesIndexed:    idx.imagesIndexed.Load(),
		IsIndexing:       true,
		StartedAt:        startTime,
	})
}

// finalizeIndex records a successful sync.
func (idx *Indexer) finalizeIndex(startTime time.Time, result syncResult) {
	duration := time.Since(startTime)

	idx.indexMu.Lock()
	idx.lastIndexTime = time.Now()
	idx.indexMu.Unlock()

	metrics.SyncLastRunTimestamp.Set(float64(time.Now().Unix()))
	metrics.SyncLastRunDuration.Set(duration.Seconds())
	metrics.SyncGalleriesProcessed.Add(float64(result.galleries))
	metrics.SyncImagesProcessed.Add(float64(result.images))

	logging.Info("Sync complete: %d galleries, %d images in %v (%d listings failed, %d rows skipped)",
		result.galleries, result.images, duration, result.failedListings, result.skippedWrites)

	if idx.onIndexComplete != nil {
		idx.onIndexComplete()
	}
}
