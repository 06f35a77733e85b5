package filesystem

import (
	"context"
	"errors"
	"os"
	"syscall"
	"time"

	"gallery-index/internal/logging"
	"gallery-index/internal/metrics"
)

// RetryConfig configures retry behavior for filesystem operations
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns sensible defaults for NFS retry behavior
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

// isNFSStaleError checks if an error is an NFS stale file handle error
func isNFSStaleError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESTALE
	}
	return false
}

// Retry runs fn until it succeeds, fails with an error other than ESTALE,
// the retries are used up or ctx is done. op labels logs and metrics.
func Retry[T any](ctx context.Context, op, path string, config RetryConfig, fn func() (T, error)) (T, error) {
	start := time.Now()
	defer func() {
		metrics.FilesystemOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	backoff := config.InitialBackoff
	var zero T

	for attempt := 0; ; attempt++ {
		v, err := fn()
		if err == nil {
			if attempt > 0 {
				logging.Info("NFS %s succeeded on retry %d for %s", op, attempt, path)
				metrics.FilesystemRetries.WithLabelValues(op, "success").Inc()
			}
			return v, nil
		}
		if !isNFSStaleError(err) {
			return zero, err
		}

		metrics.FilesystemStaleErrors.WithLabelValues(op).Inc()
		if attempt >= config.MaxRetries {
			logging.Warn("NFS %s failed after %d retries for %s: %v", op, config.MaxRetries, path, err)
			metrics.FilesystemRetries.WithLabelValues(op, "failure").Inc()
			return zero, err
		}

		logging.Debug("NFS %s stale file handle for %s, retrying in %v (attempt %d/%d)",
			op, path, backoff, attempt+1, config.MaxRetries)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}

		backoff *= 2
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}
}

// Stat is os.Stat with NFS retry.
func Stat(ctx context.Context, path string) (os.FileInfo, error) {
	return Retry(ctx, "stat", path, DefaultRetryConfig(), func() (os.FileInfo, error) {
		return os.Stat(path)
	})
}

// ReadDir is os.ReadDir with NFS retry.
func ReadDir(ctx context.Context, path string) ([]os.DirEntry, error) {
	return Retry(ctx, "readdir", path, DefaultRetryConfig(), func() ([]os.DirEntry, error) {
		return os.ReadDir(path)
	})
}

// ReadFile is os.ReadFile with NFS retry.
func ReadFile(ctx context.Context, path string) ([]byte, error) {
	return Retry(ctx, "read", path, DefaultRetryConfig(), func() ([]byte, error) {
		return os.ReadFile(path)
	})
}

// Open is os.Open with NFS retry.
func Open(ctx context.Context, path string) (*os.File, error) {
	return Retry(ctx, "open", path, DefaultRetryConfig(), func() (*os.File, error) {
		return os.Open(path)
	})
}
