package gallery

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gallery-index/internal/apperr"
	"gallery-index/internal/cache"
	"gallery-index/internal/database"
	"gallery-index/internal/media"
	"gallery-index/internal/remote"
)

var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeStore is an in-memory remote.Store.
type fakeStore struct {
	mu          sync.Mutex
	collections []remote.Collection
	items       map[string][]remote.Item
	blobs       map[string][]byte

	listErr  error
	firstErr map[string]error
	delay    time.Duration

	listCollectionsCalls atomic.Int32
	listItemsCalls       atomic.Int32
	getBytesCalls        atomic.Int32
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		items:    map[string][]remote.Item{},
		blobs:    map[string][]byte{},
		firstErr: map[string]error{},
	}
}

func (f *fakeStore) addCollection(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collections = append(f.collections, remote.Collection{ID: id, Name: name, LastModified: baseTime})
	if _, ok := f.items[id]; !ok {
		f.items[id] = nil
	}
}

func (f *fakeStore) addItem(collectionID, id, name string, size int64, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[collectionID] = append(f.items[collectionID], remote.Item{
		ID:           id,
		Name:         name,
		Size:         size,
		LastModified: baseTime,
		DownloadURL:  "https://download.example/" + id,
	})
	if data != nil {
		f.blobs[id] = data
	}
}

func (f *fakeStore) wait(ctx context.Context) error {
	if f.delay == 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(f.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeStore) ListCollections(ctx context.Context) ([]remote.Collection, error) {
	f.listCollectionsCalls.Add(1)
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]remote.Collection(nil), f.collections...), nil
}

func (f *fakeStore) ListItems(ctx context.Context, collectionID string) ([]remote.Item, error) {
	f.listItemsCalls.Add(1)
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	items, ok := f.items[collectionID]
	if !ok {
		return nil, apperr.NotFound("gallery", collectionID)
	}
	return append([]remote.Item(nil), items...), nil
}

func (f *fakeStore) FirstItem(ctx context.Context, collectionID string) (*remote.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.firstErr[collectionID]; err != nil {
		return nil, err
	}
	items := append([]remote.Item(nil), f.items[collectionID]...)
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	for i := range items {
		if !items[i].IsFolder {
			return &items[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetItem(ctx context.Context, id string) (*remote.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, items := range f.items {
		for i := range items {
			if items[i].ID == id {
				it := items[i]
				return &it, nil
			}
		}
	}
	return nil, apperr.NotFound("item", id)
}

func (f *fakeStore) GetBytes(ctx context.Context, id string) ([]byte, error) {
	f.getBytesCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[id]
	if !ok {
		return nil, apperr.NotFound("image", id)
	}
	return data, nil
}

// fakeCodec records the options it was called with.
type fakeCodec struct {
	available bool
	err       error

	mu    sync.Mutex
	calls []media.Options
}

func (c *fakeCodec) Name() string    { return "fake" }
func (c *fakeCodec) Available() bool { return c.available }

func (c *fakeCodec) Resize(_ context.Context, data []byte, opts media.Options) ([]byte, error) {
	c.mu.Lock()
	c.calls = append(c.calls, opts)
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return append([]byte("resized:"), data...), nil
}

var errBoom = errors.New("boom")

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newCache() *cache.Cache {
	return cache.New(cache.DefaultConfig())
}

func newTestDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "gallery.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// populate copies the store into db and marks it synced.
func populate(t *testing.T, db *database.Database, store *fakeStore) {
	t.Helper()
	ctx := context.Background()
	for _, c := range store.collections {
		g, ok := FromCollection(c)
		if !ok {
			continue
		}
		require.NoError(t, db.UpsertGallery(ctx, &g))
		for _, it := range store.items[c.ID] {
			if img, ok := ImageFromItem(c.ID, it); ok {
				require.NoError(t, db.UpsertImage(ctx, &img))
			}
		}
	}
	gen, err := db.Generation(ctx)
	require.NoError(t, err)
	marked, err := db.MarkSynced(ctx, time.Now(), gen)
	require.NoError(t, err)
	require.True(t, marked)
}
