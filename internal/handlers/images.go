package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"gallery-index/internal/logging"
	"gallery-index/internal/mediatypes"
	"gallery-index/internal/streaming"
)

// Resized variants are immutable for a given ETag.
const variantCacheControl = "public, max-age=86400"

type imageQuery struct {
	Size    string `schema:"size"`
	Quality int    `schema:"quality"`
}

// GetImage serves an image resized to a size preset. The ETag names the
// image, the preset and the effective quality, so a matching If-None-Match
// is answered with 304 before any bytes are fetched.
func (h *Handlers) GetImage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var q imageQuery
	if err := h.decodeQuery(&q, r); err != nil {
		writeError(w, r, err, "Failed to serve image")
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")

	etag := variantETag(id, q.Size, q.Quality)
	if etag != "" && etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", variantCacheControl)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	variant, err := h.variants.GetVariant(r.Context(), id, q.Size, q.Quality)
	if err != nil {
		writeError(w, r, err, "Failed to serve image")
		return
	}

	w.Header().Set("Content-Type", variant.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(variant.Data)))
	if variant.Degraded {
		// The original bytes stand in until a resize succeeds.
		w.Header().Set("Cache-Control", "no-cache")
	} else {
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", variantCacheControl)
	}

	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := streaming.WriteBody(r.Context(), w, variant.Data, streaming.DefaultConfig()); err != nil {
		logging.Debug("image %s: write failed: %v", id, err)
	}
}

// variantETag returns the strong ETag of a variant, or "" when the
// parameters are invalid.
func variantETag(id, size string, quality int) string {
	name, preset, ok := mediatypes.LookupPreset(size)
	if !ok {
		return ""
	}
	if quality == 0 {
		quality = preset.Quality
	}
	if quality < 1 || quality > 100 {
		return ""
	}
	return fmt.Sprintf(`"%s-%s-%d"`, id, name, quality)
}

// GetImageMetadata returns the EXIF metadata of an image.
func (h *Handlers) GetImageMetadata(w http.ResponseWriter, r *http.Request) {
	md, err := h.galleries.ImageMetadata(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err, "Failed to fetch metadata")
		return
	}
	writeJSONOK(w, md)
}
