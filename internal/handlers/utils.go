package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gorilla/schema"

	"gallery-index/internal/apperr"
	"gallery-index/internal/logging"
)

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONOK writes v with status 200.
func writeJSONOK(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, v)
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, map[string]string{"error": message})
}

// writeError answers err with its mapped status. Client errors carry the
// public message; server errors carry fallback and are logged in full.
func writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logging.Error("%s %s: %v", r.Method, r.URL.Path, err)
		writeJSONError(w, fallback, status)
		return
	}

	logging.Debug("%s %s: %v", r.Method, r.URL.Path, err)
	writeJSONError(w, apperr.PublicMessage(err), status)
}

// decodeQuery fills dst from the query string. Conversion failures become a
// ValidationError naming the first offending parameter.
func (h *Handlers) decodeQuery(dst interface{}, r *http.Request) error {
	err := h.decoder.Decode(dst, r.URL.Query())
	if err == nil {
		return nil
	}

	var multi schema.MultiError
	if errors.As(err, &multi) && len(multi) > 0 {
		keys := make([]string, 0, len(multi))
		for k := range multi {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		return apperr.Invalid(keys[0], multi[keys[0]].Error())
	}
	return apperr.Invalid("query", err.Error())
}

// etagMatches reports whether an If-None-Match header matches etag.
func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
