package handlers

import (
	"net/http"
	"runtime"
	"time"

	"gallery-index/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

var processStart = time.Now()

// HealthResponse contains the health check response
type HealthResponse struct {
	Status            string `json:"status"`
	Ready             bool   `json:"ready"`
	Version           string `json:"version"`
	Uptime            string `json:"uptime"`
	Indexing          bool   `json:"indexing"`
	LastIndexed       string `json:"lastIndexed,omitempty"`
	InitialIndexError string `json:"initialIndexError,omitempty"`
	LastIndexError    string `json:"lastIndexError,omitempty"`
	SyncEnabled       bool   `json:"syncEnabled"`

	// Progress of the running or last sync
	GalleriesIndexed int64 `json:"galleriesIndexed"`
	ImagesIndexed    int64 `json:"imagesIndexed"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`

	// Index contents
	TotalGalleries int  `json:"totalGalleries"`
	TotalImages    int  `json:"totalImages"`
	IndexPopulated bool `json:"indexPopulated"`
}

// ready reports whether the service should receive traffic. Without a sync
// job reads go straight to the remote store, so it is always ready.
func (h *Handlers) ready() bool {
	return h.sync == nil || h.sync.IsReady()
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Ready:        h.ready(),
		Version:      startup.Version,
		Uptime:       time.Since(processStart).Round(time.Second).String(),
		SyncEnabled:  h.sync != nil,
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	if h.sync != nil {
		status := h.sync.GetHealthStatus()
		response.Uptime = status.Uptime
		response.Indexing = status.Indexing
		response.GalleriesIndexed = status.GalleriesIndexed
		response.ImagesIndexed = status.ImagesIndexed
		response.InitialIndexError = status.InitialIndexError
		response.LastIndexError = status.LastIndexError
		if !status.LastIndexed.IsZero() {
			response.LastIndexed = status.LastIndexed.Format(time.RFC3339)
		}
	}

	if h.stats != nil {
		stats := h.stats.GetStats()
		response.TotalGalleries = stats.TotalGalleries
		response.TotalImages = stats.TotalImages
		response.IndexPopulated = stats.Populated
	}

	switch {
	case !response.Ready:
		response.Status = statusStarting
	case response.InitialIndexError != "" && !response.IndexPopulated:
		// Reads fall back to the remote store, so this is not fatal.
		response.Status = statusDegraded
	default:
		response.Status = statusHealthy
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	// Return 503 only if not ready at all
	if !response.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	if r.Method != http.MethodHead {
		writeJSON(w, response)
	}
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 once the first sync attempt has finished
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	status, body := http.StatusOK, "ready"
	if !h.ready() {
		status, body = http.StatusServiceUnavailable, "not_ready"
	}

	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{"status": body})
	}
}
