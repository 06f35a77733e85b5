package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"

	"gallery-index/internal/logging"
)

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
	vipsAvailable   bool
	vipsShutdown    bool
)

// vipsSeverity ranks libvips levels. The GLib values decrease with severity,
// so they cannot be compared directly.
func vipsSeverity(level vips.LogLevel) int {
	switch level {
	case vips.LogLevelCritical:
		return 4
	case vips.LogLevelError:
		return 3
	case vips.LogLevelWarning:
		return 2
	case vips.LogLevelMessage, vips.LogLevelInfo:
		return 1
	default:
		return 0
	}
}

// vipsLogSettings maps the application log level to the libvips level and a
// handler that forwards libvips messages to our logger.
func vipsLogSettings(appLevel logging.LogLevel) (vips.LogLevel, func(string, vips.LogLevel, string)) {
	var vipsLevel vips.LogLevel
	switch appLevel {
	case logging.LevelDebug:
		vipsLevel = vips.LogLevelInfo
	case logging.LevelWarn:
		vipsLevel = vips.LogLevelError
	case logging.LevelError:
		vipsLevel = vips.LogLevelCritical
	default:
		vipsLevel = vips.LogLevelWarning
	}

	minSeverity := vipsSeverity(vipsLevel)
	handler := func(domain string, level vips.LogLevel, msg string) {
		if vipsSeverity(level) < minSeverity {
			return
		}
		switch level {
		case vips.LogLevelError, vips.LogLevelCritical:
			logging.Error("[%s] %s", domain, msg)
		case vips.LogLevelWarning:
			logging.Warn("[%s] %s", domain, msg)
		default:
			logging.Debug("[%s] %s", domain, msg)
		}
	}
	return vipsLevel, handler
}

// InitVips initializes the libvips library. Safe to call more than once.
func InitVips() (err error) {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return nil
	}
	if vipsShutdown {
		return fmt.Errorf("libvips cannot be restarted after shutdown")
	}

	// vips.Startup panics when the shared library cannot be used
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("libvips startup failed: %v", r)
		}
	}()

	// Configure logging BEFORE Startup() so early messages respect LOG_LEVEL
	level, handler := vipsLogSettings(logging.GetLevel())
	vips.LoggingSettings(handler, level)

	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,                // Process one image at a time to control memory
		MaxCacheMem:      50 * 1024 * 1024, // 50MB cache
		MaxCacheSize:     100,
		ReportLeaks:      false,
		CacheTrace:       false,
		CollectStats:     false,
	})

	vipsInitialized = true
	vipsAvailable = true
	logging.Info("libvips initialized successfully (version: %s)", vips.Version)
	return nil
}

// ShutdownVips releases libvips resources. govips cannot be restarted in the
// same process once shut down.
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		vipsAvailable = false
		vipsShutdown = true
		logging.Info("libvips shutdown complete")
	}
}

// IsVipsAvailable returns whether libvips is initialized and available
func IsVipsAvailable() bool {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	return vipsAvailable
}

// VipsCodec resizes with libvips, which shrinks JPEGs during decode and is
// much lighter on memory than decoding the full image first.
type VipsCodec struct{}

// NewVipsCodec creates a VipsCodec. InitVips must have succeeded for it to
// report itself available.
func NewVipsCodec() *VipsCodec {
	return &VipsCodec{}
}

// Name implements Codec.
func (c *VipsCodec) Name() string { return "vips" }

// Available implements Codec.
func (c *VipsCodec) Available() bool { return IsVipsAvailable() }

// Resize implements Codec.
func (c *VipsCodec) Resize(ctx context.Context, data []byte, opts Options) ([]byte, error) {
	if !c.Available() {
		return nil, ErrCodecUnavailable
	}
	if err := checkPixels(data); err != nil {
		return nil, err
	}

	// default import params auto-rotate from EXIF orientation
	ref, err := vips.LoadImageFromBuffer(data, vips.NewImportParams())
	if err != nil {
		return nil, fmt.Errorf("vips failed to load image: %w", err)
	}
	defer ref.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if opts.Resizes() {
		logging.Debug("vips: resizing %dx%d into %dx%d box", ref.Width(), ref.Height(), opts.Width, opts.Height)
		if err := ref.ThumbnailWithSize(opts.Width, opts.Height, vips.InterestingNone, vips.SizeDown); err != nil {
			return nil, fmt.Errorf("vips resize failed: %w", err)
		}
	}

	out, _, err := ref.ExportJpeg(&vips.JpegExportParams{
		Quality:        clampQuality(opts.Quality),
		Interlace:      true,
		OptimizeCoding: true,
		StripMetadata:  false,
	})
	if err != nil {
		return nil, fmt.Errorf("vips export failed: %w", err)
	}
	return out, nil
}

var _ Codec = (*VipsCodec)(nil)
