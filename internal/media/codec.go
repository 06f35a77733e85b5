package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"

	// Decoders for DecodeConfig and the imaging codec.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/tiff" // TIFF format support
	_ "golang.org/x/image/webp" // WebP format support

	"gallery-index/internal/logging"
)

const (
	// MaxImagePixels is the largest source image (width * height) we decode.
	// A 50MP image would be ~50,000,000 pixels, which uses ~200MB in RGBA.
	MaxImagePixels = 60_000_000

	// JPEGContentType is the content type of every resized variant.
	JPEGContentType = "image/jpeg"
)

// ErrCodecUnavailable is returned by codecs whose backing library is not
// loaded.
var ErrCodecUnavailable = errors.New("image codec not available")

// Options describe one resize. A zero Width and Height means re-encode
// without resizing.
type Options struct {
	Width   int
	Height  int
	Quality int
}

// Resizes reports whether the options ask for a bounding box.
func (o Options) Resizes() bool {
	return o.Width > 0 && o.Height > 0
}

// Codec resizes images. Resize fits the image inside the Width x Height box
// preserving aspect ratio, never enlarges, honors EXIF orientation and
// encodes the result as JPEG at the requested quality.
type Codec interface {
	Name() string
	Available() bool
	Resize(ctx context.Context, data []byte, opts Options) ([]byte, error)
}

// NewCodec returns the best codec available: libvips when enabled and it
// starts, the pure-Go imaging codec otherwise.
func NewCodec(vipsEnabled bool) Codec {
	if vipsEnabled {
		if err := InitVips(); err != nil {
			logging.Warn("libvips unavailable, falling back to pure Go resizing: %v", err)
		} else {
			return NewVipsCodec()
		}
	}
	return NewImagingCodec()
}

// SniffContentType guesses the content type of raw image bytes.
func SniffContentType(data []byte) string {
	ct := http.DetectContentType(data)
	if ct == "application/octet-stream" && len(data) >= 4 {
		// TIFF is not in the sniffing table
		if bytes.HasPrefix(data, []byte("II*\x00")) || bytes.HasPrefix(data, []byte("MM\x00*")) {
			return "image/tiff"
		}
	}
	return ct
}

// Dimensions decodes only the image header.
func Dimensions(data []byte) (width, height int, format string, err error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, "", fmt.Errorf("decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, format, nil
}

// checkPixels rejects images too large to decode safely. Formats without a
// registered decoder pass through and are left to the codec.
func checkPixels(data []byte) error {
	w, h, _, err := Dimensions(data)
	if err != nil {
		return nil
	}
	if w*h > MaxImagePixels {
		return fmt.Errorf("image %dx%d exceeds %d pixel limit", w, h, MaxImagePixels)
	}
	return nil
}

// fitBox returns the size of a w x h image fitted inside a maxW x maxH box,
// never larger than the original.
func fitBox(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	// compare w/maxW with h/maxH without floats
	if w*maxH >= h*maxW {
		nh := h * maxW / w
		if nh < 1 {
			nh = 1
		}
		return maxW, nh
	}
	nw := w * maxH / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxH
}
