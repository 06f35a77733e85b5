package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gallery-index/internal/cache"
	"gallery-index/internal/database"
	"gallery-index/internal/gallery"
	"gallery-index/internal/indexer"
	"gallery-index/internal/media"
	"gallery-index/internal/metrics"
	"gallery-index/internal/remote"
)

const testSecret = "s3cret"

type fakeSync struct {
	ready     bool
	status    indexer.HealthStatus
	triggered atomic.Int32
}

func (f *fakeSync) IsReady() bool                         { return f.ready }
func (f *fakeSync) GetHealthStatus() indexer.HealthStatus { return f.status }
func (f *fakeSync) TriggerIndex()                         { f.triggered.Add(1) }

type fakeStats struct{ stats metrics.Stats }

func (f fakeStats) GetStats() metrics.Stats { return f.stats }

type testEnv struct {
	router *mux.Router
	cache  *cache.Cache
	sync   *fakeSync
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

// galleryDir lays out two visible galleries and one hidden one.
func galleryDir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "20240502 Barracca", "20240502_303_OWL6042.png"), 600, 200)
	writePNG(t, filepath.Join(root, "20240502 Barracca", "20240503_104_TRAM0001.png"), 100, 300)
	writePNG(t, filepath.Join(root, "Lisbon", "lisbon.png"), 50, 50)
	writePNG(t, filepath.Join(root, ".drafts", "draft.png"), 50, 50)
	return root
}

func newTestEnv(t *testing.T, codec media.Codec) *testEnv {
	t.Helper()

	store, err := remote.NewLocal(galleryDir(t))
	require.NoError(t, err)

	c := cache.New(cache.DefaultConfig())
	ttls := cache.DefaultTTLs()
	sync := &fakeSync{ready: true}

	h := New(
		gallery.NewService(nil, store, c, ttls),
		gallery.NewVariantCache(store, codec, c, ttls.Images),
		gallery.NewInvalidator(testSecret, c, nil),
		sync,
		nil,
	)

	router := mux.NewRouter()
	h.RegisterRoutes(router)
	return &testEnv{router: router, cache: c, sync: sync}
}

func (e *testEnv) do(t *testing.T, method, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		r.Header[k] = v
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

type galleryJSON struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	DisplayName string  `json:"displayName"`
	CaptureDate *string `json:"captureDate"`
	ThumbnailID string  `json:"thumbnailId"`
}

type imageJSON struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	DisplayName      string  `json:"displayName"`
	DateTaken        *string `json:"dateTaken"`
	OriginalFilename string  `json:"originalFilename"`
	Width            *int    `json:"width"`
}

type pageJSON struct {
	Images     []imageJSON `json:"images"`
	Pagination struct {
		CurrentPage int  `json:"currentPage"`
		TotalPages  int  `json:"totalPages"`
		TotalImages int  `json:"totalImages"`
		HasNext     bool `json:"hasNext"`
		HasPrev     bool `json:"hasPrev"`
	} `json:"pagination"`
}

func barraccaID() string { return remote.LocalID("20240502 Barracca") }

func owlID() string { return remote.LocalID("20240502 Barracca/20240502_303_OWL6042.png") }

func TestListGalleries(t *testing.T) {
	env := newTestEnv(t, media.NewImagingCodec())

	w := env.do(t, http.MethodGet, "/api/galleries", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	galleries := decode[[]galleryJSON](t, w)
	require.Len(t, galleries, 2)
	assert.Equal(t, "Barracca", galleries[0].DisplayName)
	require.NotNil(t, galleries[0].CaptureDate)
	assert.Equal(t, "2024-05-02", *galleries[0].CaptureDate)
	assert.Equal(t, owlID(), galleries[0].ThumbnailID)
	assert.Equal(t, "Lisbon", galleries[1].DisplayName)
	assert.Nil(t, galleries[1].CaptureDate)
}

func TestGalleryImages(t *testing.T) {
	env := newTestEnv(t, media.NewImagingCodec())

	w := env.do(t, http.MethodGet, "/api/galleries/"+barraccaID()+"/images?limit=1&sortBy=date&sortOrder=asc", nil)
	require.Equal(t, http.StatusOK, w.Code)

	page := decode[pageJSON](t, w)
	require.Len(t, page.Images, 1)
	assert.Equal(t, "OWL6042", page.Images[0].DisplayName)
	assert.Equal(t, "OWL6042.png", page.Images[0].OriginalFilename)
	assert.Equal(t, 1, page.Pagination.CurrentPage)
	assert.Equal(t, 2, page.Pagination.TotalPages)
	assert.Equal(t, 2, page.Pagination.TotalImages)
	assert.True(t, page.Pagination.HasNext)
	assert.False(t, page.Pagination.HasPrev)

	w = env.do(t, http.MethodGet, "/api/galleries/"+barraccaID()+"/images?page=2&limit=1&sortBy=date&sortOrder=asc", nil)
	page = decode[pageJSON](t, w)
	require.Len(t, page.Images, 1)
	assert.Equal(t, "TRAM0001", page.Images[0].DisplayName)
	assert.True(t, page.Pagination.HasPrev)
}

func TestGalleryImagesErrors(t *testing.T) {
	env := newTestEnv(t, media.NewImagingCodec())

	tests := []struct {
		name    string
		target  string
		status  int
		message string
	}{
		{"unknown gallery", "/api/galleries/" + remote.LocalID("Porto") + "/images", http.StatusNotFound, "Not found"},
		{"non-numeric page", "/api/galleries/" + barraccaID() + "/images?page=abc", http.StatusBadRequest, "Invalid parameter: page"},
		{"negative limit", "/api/galleries/" + barraccaID() + "/images?limit=-5", http.StatusBadRequest, "Invalid parameter: limit"},
		{"bad sort field", "/api/galleries/" + barraccaID() + "/images?sortBy=colour", http.StatusBadRequest, "Invalid parameter: sortBy"},
		{"bad sort order", "/api/galleries/" + barraccaID() + "/images?sortOrder=sideways", http.StatusBadRequest, "Invalid parameter: sortOrder"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, tt.target, nil)
			assert.Equal(t, tt.status, w.Code)
			body := decode[map[string]string](t, w)
			assert.Equal(t, tt.message, body["error"])
		})
	}
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t, media.NewImagingCodec())

	tests := []struct {
		name   string
		target string
		want   []string
	}{
		{"gallery name matches all its images", "/api/search?q=barracca", []string{"OWL6042", "TRAM0001"}},
		{"filename match", "/api/search?q=tram", []string{"TRAM0001"}},
		{"orientation", "/api/search?q=barracca&orientation=landscape", []string{"OWL6042"}},
		{"repeated years", "/api/search?year=2023&year=2024", []string{"TRAM0001", "OWL6042"}},
		{"comma separated months", "/api/search?month=1,05", []string{"TRAM0001", "OWL6042"}},
		{"no match", "/api/search?q=nothing", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, tt.target, nil)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			page := decode[pageJSON](t, w)
			var got []string
			for _, img := range page.Images {
				got = append(got, img.DisplayName)
			}
			if tt.want == nil {
				assert.Empty(t, got)
				assert.Contains(t, w.Body.String(), `"images":[]`)
				return
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestSearchCollectionsOnly(t *testing.T) {
	env := newTestEnv(t, media.NewImagingCodec())

	w := env.do(t, http.MethodGet, "/api/search?q=lisbon&collectionsOnly=true", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Images []map[string]any `json:"images"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Images, 1)
	assert.Equal(t, "collection", body.Images[0]["type"])
}

func TestSearchValidation(t *testing.T) {
	env := newTestEnv(t, media.NewImagingCodec())

	for _, target := range []string{
		"/api/search?startDate=yesterday",
		"/api/search?month=13",
		"/api/search?orientation=diagonal",
		"/api/search?collectionsOnly=maybe",
		"/api/search?page=x",
	} {
		w := env.do(t, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
		assert.True(t, strings.HasPrefix(decode[map[string]string](t, w)["error"], "Invalid parameter"), target)
	}
}

func TestGetImage(t *testing.T) {
	env := newTestEnv(t, media.NewImagingCodec())

	w := env.do(t, http.MethodGet, "/api/images/"+owlID()+"?size=thumbnail", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, media.JPEGContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, `"`+owlID()+`-thumbnail-80"`, w.Header().Get("ETag"))
	assert.Equal(t, "public, max-age=86400", w.Header().Get("Cache-Control"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	cfg, format, err := image.DecodeConfig(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 300, cfg.Width)
	assert.Equal(t, 100, cfg.Height)

	w = env.do(t, http.MethodGet, "/api/images/"+owlID()+"?size=small&quality=40", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `"`+owlID()+`-small-40"`, w.Header().Get("ETag"))
}

func TestGetImageNotModified(t *testing.T) {
	env := newTestEnv(t, media.NewImagingCodec())

	etag := `"` + owlID() + `-medium-90"`
	for _, header := range []string{etag, "W/" + etag, `"other", ` + etag, "*"} {
		w := env.do(t, http.MethodGet, "/api/images/"+owlID(), http.Header{"If-None-Match": {header}})
		assert.Equal(t, http.StatusNotModified, w.Code, header)
		assert.Equal(t, etag, w.Header().Get("ETag"))
		assert.Zero(t, w.Body.Len())
	}
	assert.Zero(t, env.cache.Len(), "304 must not fetch the image")

	w := env.do(t, http.MethodGet, "/api/images/"+owlID(), http.Header{"If-None-Match": {`"stale"`}})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetImageDegraded(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/images/"+owlID()+"?size=small", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Empty(t, w.Header().Get("ETag"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))

	cfg, err := png.DecodeConfig(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 600, cfg.Width)
}

func TestGetImageErrors(t *testing.T) {
	env := newTestEnv(t, media.NewImagingCodec())

	tests := []struct {
		target string
		status int
	}{
		{"/api/images/" + owlID() + "?size=huge", http.StatusBadRequest},
		{"/api/images/" + owlID() + "?quality=0.5", http.StatusBadRequest},
		{"/api/images/" + owlID() + "?quality=101", http.StatusBadRequest},
		{"/api/images/" + remote.LocalID("Lisbon/missing.png"), http.StatusNotFound},
		{"/api/images/!!notbase64", http.StatusNotFound},
	}

	for _, tt := range tests {
		w := env.do(t, http.MethodGet, tt.target, nil)
		assert.Equal(t, tt.status, w.Code, tt.target)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"), tt.target)
	}
}

func TestGetImageMetadata(t *testing.T) {
	env := newTestEnv(t, media.NewImagingCodec())

	w := env.do(t, http.MethodGet, "/api/images/"+owlID()+"/metadata", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var md media.Metadata
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &md))
	require.NotNil(t, md.Width)
	assert.Equal(t, 600, *md.Width)
	require.NotNil(t, md.Height)
	assert.Equal(t, 200, *md.Height)

	w = env.do(t, http.MethodGet, "/api/images/"+remote.LocalID("nope.png")+"/metadata", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRefreshCache(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		status int
	}{
		{"x-signature", http.Header{SignatureHeader: {testSecret}}, http.StatusOK},
		{"sharepoint header", http.Header{SharePointSignatureHeader: {testSecret}}, http.StatusOK},
		{"wrong secret", http.Header{SignatureHeader: {"guess"}}, http.StatusUnauthorized},
		{"missing header", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, media.NewImagingCodec())
			env.do(t, http.MethodGet, "/api/galleries", nil)
			cached := env.cache.Len()
			require.Positive(t, cached)

			w := env.do(t, http.MethodPost, "/api/refresh-cache", tt.header)
			require.Equal(t, tt.status, w.Code)

			body := decode[map[string]string](t, w)
			if tt.status == http.StatusOK {
				assert.Equal(t, "Cache refreshed successfully", body["message"])
				assert.Zero(t, env.cache.Len())
				assert.Equal(t, int32(1), env.sync.triggered.Load())
				return
			}
			assert.Equal(t, "Unauthorized", body["error"])
			assert.Equal(t, cached, env.cache.Len())
			assert.Zero(t, env.sync.triggered.Load())
		})
	}
}

func TestRefreshCacheRequiresPost(t *testing.T) {
	env := newTestEnv(t, media.NewImagingCodec())
	w := env.do(t, http.MethodGet, "/api/refresh-cache", http.Header{SignatureHeader: {testSecret}})
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHealthEndpoints(t *testing.T) {
	now := time.Now()
	sync := &fakeSync{
		ready: true,
		status: indexer.HealthStatus{
			Ready:            true,
			Uptime:           "1m0s",
			LastIndexed:      now,
			GalleriesIndexed: 2,
			ImagesIndexed:    3,
		},
	}
	h := New(nil, nil, nil, sync, fakeStats{metrics.Stats{TotalGalleries: 2, TotalImages: 3, Populated: true}})
	router := mux.NewRouter()
	h.RegisterRoutes(router)

	serve := func(method, target string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(method, target, nil))
		return w
	}

	w := serve(http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[HealthResponse](t, w)
	assert.Equal(t, statusHealthy, resp.Status)
	assert.True(t, resp.SyncEnabled)
	assert.Equal(t, int64(3), resp.ImagesIndexed)
	assert.Equal(t, 2, resp.TotalGalleries)
	assert.True(t, resp.IndexPopulated)
	assert.Equal(t, now.Format(time.RFC3339), resp.LastIndexed)

	assert.Equal(t, http.StatusOK, serve(http.MethodGet, "/readyz").Code)
	assert.Equal(t, http.StatusOK, serve(http.MethodGet, "/livez").Code)
	assert.Zero(t, serve(http.MethodHead, "/livez").Body.Len())

	sync.ready = false
	assert.Equal(t, http.StatusServiceUnavailable, serve(http.MethodGet, "/readyz").Code)
	w = serve(http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, statusStarting, decode[HealthResponse](t, w).Status)

	sync.ready = true
	sync.status.InitialIndexError = "list collections: boom"
	h.stats = fakeStats{}
	w = serve(http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, statusDegraded, decode[HealthResponse](t, w).Status)
}

func TestHealthWithoutSync(t *testing.T) {
	h := New(nil, nil, nil, nil, nil)
	router := mux.NewRouter()
	h.RegisterRoutes(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	resp := decode[HealthResponse](t, w)
	assert.Equal(t, statusHealthy, resp.Status)
	assert.False(t, resp.SyncEnabled)
}

func TestGetVersion(t *testing.T) {
	h := New(nil, nil, nil, nil, nil)
	w := httptest.NewRecorder()
	h.GetVersion(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]string](t, w)
	assert.NotEmpty(t, body["version"])
	assert.NotEmpty(t, body["goVersion"])
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
}

func TestEtagMatches(t *testing.T) {
	assert.True(t, etagMatches(`"a-medium-90"`, `"a-medium-90"`))
	assert.True(t, etagMatches(`W/"a-medium-90"`, `"a-medium-90"`))
	assert.True(t, etagMatches(`"x", "a-medium-90"`, `"a-medium-90"`))
	assert.False(t, etagMatches(``, `"a-medium-90"`))
	assert.False(t, etagMatches(`"a-medium-85"`, `"a-medium-90"`))
}

func TestVariantETag(t *testing.T) {
	assert.Equal(t, `"id-medium-90"`, variantETag("id", "", 0))
	assert.Equal(t, `"id-large-50"`, variantETag("id", "LARGE", 50))
	assert.Empty(t, variantETag("id", "huge", 0))
	assert.Empty(t, variantETag("id", "small", 200))
}

func TestHandlersServeFromIndex(t *testing.T) {
	ctx := context.Background()
	root := galleryDir(t)
	store, err := remote.NewLocal(root)
	require.NoError(t, err)

	db, err := database.New(ctx, filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	idx := indexer.New(db, store, time.Hour)
	require.NoError(t, idx.Index(ctx))

	c := cache.New(cache.DefaultConfig())
	ttls := cache.DefaultTTLs()
	h := New(
		gallery.NewService(db, store, c, ttls),
		gallery.NewVariantCache(store, media.NewImagingCodec(), c, ttls.Images),
		gallery.NewInvalidator(testSecret, c, db),
		idx,
		db,
	)
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	env := &testEnv{router: router, cache: c}

	// Reads come from the index, not the directory.
	require.NoError(t, os.RemoveAll(filepath.Join(root, "Lisbon")))

	galleries := decode[[]galleryJSON](t, env.do(t, http.MethodGet, "/api/galleries", nil))
	require.Len(t, galleries, 2)
	assert.Equal(t, "Lisbon", galleries[1].DisplayName)

	page := decode[pageJSON](t, env.do(t, http.MethodGet, "/api/search?q=lisbon", nil))
	require.Len(t, page.Images, 1)

	page = decode[pageJSON](t, env.do(t, http.MethodGet, "/api/galleries/"+barraccaID()+"/images?sortBy=name", nil))
	require.Len(t, page.Images, 2)
	assert.Equal(t, "TRAM0001", page.Images[0].DisplayName, "name sorts descending by default")

	health := decode[HealthResponse](t, env.do(t, http.MethodGet, "/healthz", nil))
	assert.True(t, health.IndexPopulated)
	assert.Equal(t, 3, health.TotalImages)
	assert.Equal(t, statusHealthy, health.Status)

	// A refresh empties the index; the next read goes back to the directory.
	w := env.do(t, http.MethodPost, "/api/refresh-cache", http.Header{SignatureHeader: {testSecret}})
	require.Equal(t, http.StatusOK, w.Code)

	// The refresh schedules a sync against the trimmed directory.
	require.Eventually(t, func() bool {
		populated, err := db.IsPopulated(ctx)
		return err == nil && populated && !idx.IsIndexing()
	}, 10*time.Second, 10*time.Millisecond)

	c.InvalidateAll()
	galleries = decode[[]galleryJSON](t, env.do(t, http.MethodGet, "/api/galleries", nil))
	require.Len(t, galleries, 1)
	assert.Equal(t, "Barracca", galleries[0].DisplayName)
}
