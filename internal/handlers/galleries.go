package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"gallery-index/internal/database"
	"gallery-index/internal/gallery"
	"gallery-index/internal/mediatypes"
)

// galleryImagesQuery holds the query parameters of GalleryImages.
type galleryImagesQuery struct {
	Page      int    `schema:"page"`
	Limit     int    `schema:"limit"`
	SortBy    string `schema:"sortBy"`
	SortOrder string `schema:"sortOrder"`
}

// ListGalleries returns every gallery, newest first.
func (h *Handlers) ListGalleries(w http.ResponseWriter, r *http.Request) {
	galleries, err := h.galleries.Galleries(r.Context())
	if err != nil {
		writeError(w, r, err, "Failed to fetch galleries")
		return
	}
	if galleries == nil {
		galleries = []database.Gallery{}
	}
	writeJSONOK(w, galleries)
}

// GalleryImages returns one page of a gallery's images.
func (h *Handlers) GalleryImages(w http.ResponseWriter, r *http.Request) {
	var q galleryImagesQuery
	if err := h.decodeQuery(&q, r); err != nil {
		writeError(w, r, err, "Failed to fetch gallery images")
		return
	}

	page, err := h.galleries.GalleryImages(r.Context(), mux.Vars(r)["id"], gallery.ImageListOptions{
		Page:      q.Page,
		PageSize:  q.Limit,
		SortField: mediatypes.SortField(q.SortBy),
		SortOrder: mediatypes.SortOrder(q.SortOrder),
	})
	if err != nil {
		writeError(w, r, err, "Failed to fetch gallery images")
		return
	}
	if page.Images == nil {
		page.Images = []database.Image{}
	}
	writeJSONOK(w, page)
}
