package streaming

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"gallery-index/internal/logging"
	"gallery-index/internal/metrics"
)

// Sentinel errors for body writes.
var (
	// ErrWriteTimeout indicates that a chunk could not be written before its
	// deadline, typically because the client reads too slowly.
	ErrWriteTimeout = errors.New("write timeout exceeded")

	// ErrClientGone indicates that the request context ended before the body
	// was written.
	ErrClientGone = errors.New("client disconnected")
)

// Config configures body writes
type Config struct {
	// ChunkSize is the number of bytes written per deadline extension.
	ChunkSize int
	// WriteTimeout bounds each chunk write. Zero leaves the server's
	// deadline in place.
	WriteTimeout time.Duration
}

// DefaultConfig writes 64KB chunks with 30s per chunk.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    64 * 1024,
		WriteTimeout: 30 * time.Second,
	}
}

// WriteBody writes data in chunks, moving the connection's write deadline
// forward before each one. A client that keeps reading can take as long as
// it needs for a large original; one that stalls is cut off after a single
// WriteTimeout. Writers that do not support deadlines are written to
// directly.
func WriteBody(ctx context.Context, w http.ResponseWriter, data []byte, config Config) (int64, error) {
	rc := http.NewResponseController(w)
	deadlines := config.WriteTimeout > 0
	chunk := config.ChunkSize
	if chunk <= 0 {
		chunk = len(data)
	}

	var written int64
	for len(data) > 0 {
		if ctx.Err() != nil {
			return written, recordFailure(ErrClientGone)
		}

		if deadlines {
			if err := rc.SetWriteDeadline(time.Now().Add(config.WriteTimeout)); err != nil {
				deadlines = false
			}
		}

		n := min(chunk, len(data))
		m, err := w.Write(data[:n])
		written += int64(m)
		if err != nil {
			return written, recordFailure(classify(ctx, err))
		}
		data = data[n:]
	}

	if deadlines {
		// Later keep-alive requests get a fresh deadline from the server.
		_ = rc.SetWriteDeadline(time.Time{})
	}
	return written, nil
}

func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		return ErrWriteTimeout
	case ctx.Err() != nil:
		return ErrClientGone
	default:
		return err
	}
}

func recordFailure(err error) error {
	reason := "error"
	switch {
	case errors.Is(err, ErrWriteTimeout):
		reason = "timeout"
		logging.Warn("Response write timed out, dropping slow client")
	case errors.Is(err, ErrClientGone):
		reason = "client_gone"
	}
	metrics.ResponseWriteErrors.WithLabelValues(reason).Inc()
	return err
}
