package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/schema"

	"gallery-index/internal/gallery"
	"gallery-index/internal/indexer"
	"gallery-index/internal/metrics"
)

// SyncStatus is the part of the sync job the handlers need.
type SyncStatus interface {
	IsReady() bool
	GetHealthStatus() indexer.HealthStatus
	TriggerIndex()
}

type Handlers struct {
	galleries   *gallery.Service
	variants    *gallery.VariantCache
	invalidator *gallery.Invalidator
	sync        SyncStatus
	stats       metrics.StatsProvider
	decoder     *schema.Decoder
}

// New creates the handlers. sync and stats may be nil when the index is
// disabled; the service then reports ready as soon as it serves.
func New(svc *gallery.Service, variants *gallery.VariantCache, inv *gallery.Invalidator, sync SyncStatus, stats metrics.StatsProvider) *Handlers {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	return &Handlers{
		galleries:   svc,
		variants:    variants,
		invalidator: inv,
		sync:        sync,
		stats:       stats,
		decoder:     decoder,
	}
}

// RegisterRoutes adds every endpoint to router.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet, http.MethodHead).Name("health")
	router.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet, http.MethodHead).Name("healthz")
	router.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead).Name("livez")
	router.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet, http.MethodHead).Name("readyz")
	router.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet).Name("version")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/galleries", h.ListGalleries).Methods(http.MethodGet).Name("galleries")
	api.HandleFunc("/galleries/{id}/images", h.GalleryImages).Methods(http.MethodGet).Name("galleryImages")
	api.HandleFunc("/search", h.Search).Methods(http.MethodGet).Name("search")
	api.HandleFunc("/images/{id}", h.GetImage).Methods(http.MethodGet, http.MethodHead).Name("image")
	api.HandleFunc("/images/{id}/metadata", h.GetImageMetadata).Methods(http.MethodGet).Name("imageMetadata")
	api.HandleFunc("/refresh-cache", h.RefreshCache).Methods(http.MethodPost).Name("refreshCache")
}
