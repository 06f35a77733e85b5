package media

import (
	"bytes"
	"context"
	"fmt"

	"github.com/disintegration/imaging"

	"gallery-index/internal/logging"
)

// ImagingCodec is the pure-Go codec built on disintegration/imaging. It is
// always available.
type ImagingCodec struct{}

// NewImagingCodec creates an ImagingCodec.
func NewImagingCodec() *ImagingCodec {
	return &ImagingCodec{}
}

// Name implements Codec.
func (c *ImagingCodec) Name() string { return "imaging" }

// Available implements Codec.
func (c *ImagingCodec) Available() bool { return true }

// Resize implements Codec.
func (c *ImagingCodec) Resize(ctx context.Context, data []byte, opts Options) ([]byte, error) {
	if err := checkPixels(data); err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if opts.Resizes() {
		b := img.Bounds()
		w, h := fitBox(b.Dx(), b.Dy(), opts.Width, opts.Height)
		if w != b.Dx() || h != b.Dy() {
			logging.Debug("imaging: resizing %dx%d to %dx%d", b.Dx(), b.Dy(), w, h)
			img = imaging.Resize(img, w, h, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(clampQuality(opts.Quality))); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func clampQuality(q int) int {
	switch {
	case q <= 0:
		return 85
	case q > 100:
		return 100
	default:
		return q
	}
}

var _ Codec = (*ImagingCodec)(nil)
