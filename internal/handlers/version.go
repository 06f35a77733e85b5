package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gallery-index/internal/startup"
)

// GetVersion returns the application version and build information
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	writeJSONOK(w, startup.GetBuildInfo())
}

// MetricsHandler returns the Prometheus exposition handler served on the
// metrics port.
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.Handler()
}
