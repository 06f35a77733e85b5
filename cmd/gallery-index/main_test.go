package main

import (
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
	"testing"
	"time"

	"gallery-index/internal/startup"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func testConfig(t *testing.T) *startup.Config {
	t.Helper()
	dir := t.TempDir()

	galleries := filepath.Join(dir, "galleries")
	barracca := filepath.Join(galleries, "20240502 Barracca")
	if err := os.MkdirAll(barracca, 0o755); err != nil {
		t.Fatal(err)
	}
	writePNG(t, filepath.Join(barracca, "20240502_303_OWL6042.png"), 60, 20)

	env := map[string]string{
		"REMOTE_BACKEND":    startup.BackendLocal,
		"LOCAL_GALLERY_DIR": galleries,
		"DATABASE_PATH":     filepath.Join(dir, "gallery.db"),
		"WEBHOOK_SECRET":    "s3cret",
		"VIPS_ENABLED":      "false",
		"METRICS_PORT":      "19090",
		"SYNC_INTERVAL":     "1h",
	}
	config, err := startup.Load("", false, func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return config
}

func TestNewAppServesAPI(t *testing.T) {
	a, err := newApp(testConfig(t))
	if err != nil {
		t.Fatalf("newApp error: %v", err)
	}
	defer a.shutdown()

	srv := httptest.NewServer(a.server.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/galleries")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/galleries status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected a request ID header")
	}

	var galleries []struct {
		DisplayName string `json:"displayName"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&galleries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(galleries) != 1 || galleries[0].DisplayName != "Barracca" {
		t.Errorf("unexpected galleries %+v", galleries)
	}
}

func TestNewAppSyncPopulatesIndex(t *testing.T) {
	a, err := newApp(testConfig(t))
	if err != nil {
		t.Fatalf("newApp error: %v", err)
	}
	defer a.shutdown()

	deadline := time.Now().Add(5 * time.Second)
	for !a.idx.IsReady() {
		if time.Now().After(deadline) {
			t.Fatal("initial sync did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}

	stats := a.db.GetStats()
	if !stats.Populated || stats.TotalGalleries != 1 || stats.TotalImages != 1 {
		t.Errorf("unexpected index stats %+v", stats)
	}

	srv := httptest.NewServer(a.server.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /readyz status = %d", resp.StatusCode)
	}
}

func TestNewAppWithoutSync(t *testing.T) {
	config := testConfig(t)
	config.Sync.Enabled = false

	a, err := newApp(config)
	if err != nil {
		t.Fatalf("newApp error: %v", err)
	}
	defer a.shutdown()

	if a.idx != nil {
		t.Error("sync job should not be created")
	}

	srv := httptest.NewServer(a.server.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /readyz status = %d", resp.StatusCode)
	}
}

func TestNewAppRejectsMissingGalleryDir(t *testing.T) {
	config := testConfig(t)
	config.Remote.LocalDir = filepath.Join(t.TempDir(), "missing")

	if _, err := newApp(config); err == nil {
		t.Fatal("expected error")
	}
}

func TestMetricsServer(t *testing.T) {
	a, err := newApp(testConfig(t))
	if err != nil {
		t.Fatalf("newApp error: %v", err)
	}
	defer a.shutdown()

	if a.metrics == nil {
		t.Fatal("metrics server should be configured")
	}
	if a.metrics.Addr != ":19090" {
		t.Errorf("metrics Addr = %q", a.metrics.Addr)
	}

	srv := httptest.NewServer(a.metrics.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /metrics status = %d", resp.StatusCode)
	}

	buf := new(strings.Builder)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "gallery_index_app_info") {
		t.Error("expected app info metric in exposition")
	}
}

func TestServerTimeouts(t *testing.T) {
	a, err := newApp(testConfig(t))
	if err != nil {
		t.Fatalf("newApp error: %v", err)
	}
	defer a.shutdown()

	if a.server.ReadHeaderTimeout <= 0 || a.server.ReadTimeout <= 0 || a.server.IdleTimeout <= 0 {
		t.Errorf("server timeouts must be set: %+v", a.server)
	}
	if a.server.WriteTimeout != 0 {
		t.Errorf("WriteTimeout = %v, image writes set per-chunk deadlines", a.server.WriteTimeout)
	}
	if a.server.Addr != ":3001" {
		t.Errorf("server Addr = %q", a.server.Addr)
	}
}

func TestServeWaitsForShutdown(t *testing.T) {
	config := testConfig(t)
	config.MetricsEnabled = false
	a, err := newApp(config)
	if err != nil {
		t.Fatalf("newApp error: %v", err)
	}
	a.server.Addr = "127.0.0.1:0"

	served := make(chan error, 1)
	go func() { served <- a.serve() }()

	time.Sleep(50 * time.Millisecond)
	go a.shutdown()

	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("serve error: %v", err)
		}
	case <-time.After(shutdownTimeout + 5*time.Second):
		t.Fatal("serve did not return after shutdown")
	}

	select {
	case <-a.done:
	default:
		t.Fatal("serve returned before shutdown finished")
	}
	if err := a.db.Ping(context.Background()); err == nil {
		t.Error("database should be closed once serve returns")
	}

	// A second call is a no-op.
	a.shutdown()
}

func TestSyncCompletionFlushesCache(t *testing.T) {
	a, err := newApp(testConfig(t))
	if err != nil {
		t.Fatalf("newApp error: %v", err)
	}
	defer a.shutdown()

	deadline := time.Now().Add(5 * time.Second)
	for !a.idx.IsReady() {
		if time.Now().After(deadline) {
			t.Fatal("initial sync did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}

	a.cache.Set("galleries", "stale", time.Hour)
	if err := a.idx.Index(context.Background()); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if n := a.cache.Len(); n != 0 {
		t.Errorf("cache entries after sync = %d, want 0", n)
	}
}
