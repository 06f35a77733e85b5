package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

func TestResponseWriterWriteHeader(t *testing.T) {
	w := httptest.NewRecorder()
	rw := newResponseWriter(w)

	if rw.statusCode != http.StatusOK {
		t.Errorf("Expected default status code 200, got %d", rw.statusCode)
	}

	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusInternalServerError)

	if rw.statusCode != http.StatusNotFound {
		t.Errorf("Expected status code 404, got %d", rw.statusCode)
	}
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected recorder code 404, got %d", w.Code)
	}
}

func TestResponseWriterCountsBytes(t *testing.T) {
	rw := newResponseWriter(httptest.NewRecorder())

	for _, chunk := range []string{"hello ", "world"} {
		if _, err := rw.Write([]byte(chunk)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	if rw.bytesWritten != 11 {
		t.Errorf("Expected 11 bytes written, got %d", rw.bytesWritten)
	}
	if !rw.wroteHeader {
		t.Error("Expected wroteHeader after Write")
	}
}

func TestSanitizeLogField(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"a\nb", "a b"},
		{"a\r\nb", "a  b"},
		{"nul\x00byte", "nulbyte"},
		{"\x1b[31mred", "[31mred"},
		{"tab\there", "tab\there"},
		{"del\x7f", "del"},
	}

	for _, tt := range tests {
		if got := sanitizeLogField(tt.in); got != tt.want {
			t.Errorf("sanitizeLogField(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		xri        string
		remoteAddr string
		want       string
	}{
		{"forwarded list", "203.0.113.7, 10.0.0.1", "", "10.0.0.2:1234", "203.0.113.7"},
		{"forwarded single", " 203.0.113.8 ", "", "10.0.0.2:1234", "203.0.113.8"},
		{"real ip", "", "198.51.100.4", "10.0.0.2:1234", "198.51.100.4"},
		{"remote addr", "", "", "192.0.2.1:5555", "192.0.2.1"},
		{"ipv6 remote addr", "", "", "[2001:db8::1]:443", "2001:db8::1"},
		{"bare remote addr", "", "", "192.0.2.9", "192.0.2.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEscapeW3CField(t *testing.T) {
	if got := escapeW3CField("curl/8.0"); got != "curl/8.0" {
		t.Errorf("unexpected escape of simple value: %q", got)
	}
	if got := escapeW3CField(`Mozilla/5.0 "x"`); got != `"Mozilla/5.0 ""x"""` {
		t.Errorf("unexpected escape: %q", got)
	}
}

func TestLoggerWritesW3CLine(t *testing.T) {
	var buf bytes.Buffer
	config := DefaultLoggingConfig()
	config.Output = &buf

	handler := RequestID(Logger(config)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short"))
	})))

	r := httptest.NewRequest(http.MethodGet, "/api/search?q=owl", nil)
	r.RemoteAddr = "192.0.2.1:5555"
	r.Header.Set("User-Agent", "test agent\nforged")
	r.Header.Set(RequestIDHeader, "req-1")
	handler.ServeHTTP(httptest.NewRecorder(), r)

	line := strings.TrimSpace(buf.String())
	if strings.Count(buf.String(), "\n") != 1 {
		t.Fatalf("expected exactly one log line, got %q", buf.String())
	}

	fields := strings.SplitN(line, " ", 12)
	want := []string{"192.0.2.1", "GET", "/api/search", "q=owl", "418", "5"}
	for i, w := range want {
		if fields[i+2] != w {
			t.Errorf("field %d = %q, want %q (line %q)", i+2, fields[i+2], w, line)
		}
	}
	if !strings.Contains(line, " req-1 ") {
		t.Errorf("expected request id in %q", line)
	}
	if !strings.Contains(line, `"test agent forged"`) {
		t.Errorf("expected quoted sanitized user agent in %q", line)
	}
}

func TestLoggerSkipsPaths(t *testing.T) {
	var buf bytes.Buffer
	config := LoggingConfig{
		SkipPaths:       []string{"/metrics"},
		LogHealthChecks: false,
		Output:          &buf,
	}
	handler := Logger(config)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	for _, path := range []string{"/metrics", "/healthz", "/readyz"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	if buf.Len() != 0 {
		t.Errorf("expected skipped paths to be silent, got %q", buf.String())
	}

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/galleries", nil))
	if buf.Len() == 0 {
		t.Error("expected /api/galleries to be logged")
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(seen) != 36 {
		t.Errorf("expected generated uuid, got %q", seen)
	}
	if w.Header().Get(RequestIDHeader) != seen {
		t.Errorf("response header %q does not match context %q", w.Header().Get(RequestIDHeader), seen)
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "client-supplied")
	handler.ServeHTTP(httptest.NewRecorder(), r)
	if seen != "client-supplied" {
		t.Errorf("expected client id to be reused, got %q", seen)
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "bad\x00id")
	handler.ServeHTTP(httptest.NewRecorder(), r)
	if seen == "bad\x00id" {
		t.Error("expected control characters to force a new id")
	}

	if got := RequestIDFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()); got != "" {
		t.Errorf("expected empty id outside middleware, got %q", got)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/api/galleries", "/api/galleries"},
		{"/api/images/abc", "/api/images/abc"},
		{"/api/images/abc/metadata", "/api/images/abc/{path}"},
		{"/", "/"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.in); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRouteLabelUsesTemplate(t *testing.T) {
	var label string
	router := mux.NewRouter()
	router.HandleFunc("/api/images/{id}/metadata", func(_ http.ResponseWriter, r *http.Request) {
		label = routeLabel(r)
	})
	router.Use(Metrics(DefaultMetricsConfig()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/images/01ABC/metadata", nil))

	if label != "/api/images/{id}/metadata" {
		t.Errorf("routeLabel = %q", label)
	}
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Enabled: true, Requests: 3, Window: time.Minute})
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if ok, _ := rl.Allow("a"); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	ok, retry := rl.Allow("a")
	if ok {
		t.Fatal("fourth request should be limited")
	}
	if retry <= 0 || retry > 20*time.Second {
		t.Errorf("retryAfter = %v, want about 20s", retry)
	}

	if ok, _ := rl.Allow("b"); !ok {
		t.Error("other clients have their own bucket")
	}

	now = now.Add(20 * time.Second)
	if ok, _ := rl.Allow("a"); !ok {
		t.Error("a token should have refilled after 20s")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Enabled: false, Requests: 1, Window: time.Minute})
	for i := 0; i < 10; i++ {
		if ok, _ := rl.Allow("a"); !ok {
			t.Fatal("disabled limiter must allow everything")
		}
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Enabled: true, Requests: 5, Window: time.Minute})
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	rl.Allow("old")
	now = now.Add(90 * time.Second)
	rl.Allow("recent")
	now = now.Add(60 * time.Second)

	if removed := rl.cleanupStale(); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, ok := rl.clients["recent"]; !ok {
		t.Error("recent client should survive cleanup")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	config := DefaultRateLimitConfig()
	config.Requests = 1
	rl := NewRateLimiter(config)
	rl.Start()
	defer rl.Stop()

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	request := func(path string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		r.RemoteAddr = "192.0.2.1:1000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	if w := request("/api/galleries"); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d", w.Code)
	}

	w := request("/api/galleries")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if !strings.Contains(w.Body.String(), "Too many requests") {
		t.Errorf("unexpected body %q", w.Body.String())
	}

	if w := request("/healthz"); w.Code != http.StatusOK {
		t.Errorf("health checks must not be limited, got %d", w.Code)
	}
}

func TestAcceptsGzip(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{"gzip", true},
		{"deflate, gzip;q=0.8", true},
		{"GZIP", true},
		{"*", true},
		{"gzip;q=0", false},
		{"br", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := acceptsGzip(tt.header); got != tt.want {
			t.Errorf("acceptsGzip(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func gzipHandler(contentType string, status int, body []byte) http.Handler {
	return Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
}

func TestCompressionCompressesJSON(t *testing.T) {
	body := []byte(`{"images":[` + strings.Repeat(`{"id":"x"},`, 200) + `{}]}`)

	r := httptest.NewRequest(http.MethodGet, "/api/search", nil)
	r.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	gzipHandler("application/json; charset=utf-8", http.StatusOK, body).ServeHTTP(w, r)

	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip encoding, headers %v", w.Header())
	}
	if w.Header().Get("Vary") != "Accept-Encoding" {
		t.Errorf("expected Vary header, got %q", w.Header().Get("Vary"))
	}

	zr, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	got, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Error("decompressed body differs")
	}
}

func TestCompressionPassThrough(t *testing.T) {
	large := bytes.Repeat([]byte{0xff, 0xd8, 0xff}, 1000)

	tests := []struct {
		name           string
		contentType    string
		status         int
		body           []byte
		acceptEncoding string
	}{
		{"image bytes", "image/jpeg", http.StatusOK, large, "gzip"},
		{"small json", "application/json", http.StatusOK, []byte(`{"ok":true}`), "gzip"},
		{"client without gzip", "application/json", http.StatusOK, bytes.Repeat([]byte("a"), 4096), ""},
		{"not modified", "", http.StatusNotModified, nil, "gzip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.acceptEncoding != "" {
				r.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			w := httptest.NewRecorder()
			gzipHandler(tt.contentType, tt.status, tt.body).ServeHTTP(w, r)

			if w.Header().Get("Content-Encoding") != "" {
				t.Errorf("unexpected Content-Encoding %q", w.Header().Get("Content-Encoding"))
			}
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if !bytes.Equal(w.Body.Bytes(), tt.body) {
				t.Errorf("body changed: got %d bytes, want %d", w.Body.Len(), len(tt.body))
			}
		})
	}
}

func TestWrappedWritersUnwrap(t *testing.T) {
	rec := httptest.NewRecorder()

	if got := newResponseWriter(rec).Unwrap(); got != rec {
		t.Error("responseWriter.Unwrap should return the wrapped writer")
	}
	if got := newGzipResponseWriter(rec, DefaultCompressionConfig()).Unwrap(); got != rec {
		t.Error("gzipResponseWriter.Unwrap should return the wrapped writer")
	}
}
