package handlers

import (
	"net/http"

	"gallery-index/internal/logging"
)

// Signature headers accepted by RefreshCache, in order of precedence.
const (
	SignatureHeader           = "X-Signature"
	SharePointSignatureHeader = "X-SharePoint-Signature"
)

// RefreshCache is the change webhook. A valid signature flushes the query
// cache and clears the index, then schedules a sync to repopulate it.
func (h *Handlers) RefreshCache(w http.ResponseWriter, r *http.Request) {
	signature := r.Header.Get(SignatureHeader)
	if signature == "" {
		signature = r.Header.Get(SharePointSignatureHeader)
	}

	if err := h.invalidator.Refresh(r.Context(), signature); err != nil {
		writeError(w, r, err, "Failed to refresh cache")
		return
	}

	if h.sync != nil {
		h.sync.TriggerIndex()
	} else {
		logging.Debug("Sync disabled, index stays empty until restart")
	}

	writeJSONOK(w, map[string]string{"message": "Cache refreshed successfully"})
}
