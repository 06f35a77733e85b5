// Package streaming writes large response bodies with a per-chunk write
// deadline.
//
// Originals can run to hundreds of megabytes, so the HTTP server runs
// without a global WriteTimeout. [WriteBody] instead extends the
// connection's deadline through http.ResponseController before every chunk:
//
//	n, err := streaming.WriteBody(r.Context(), w, data, streaming.DefaultConfig())
//	if errors.Is(err, streaming.ErrWriteTimeout) {
//	    // the client stopped reading
//	}
//
// Middleware that wraps the ResponseWriter must implement Unwrap for the
// deadline to reach the connection.
package streaming
