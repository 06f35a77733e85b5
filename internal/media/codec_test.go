package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func solidPNG(t testing.TB, width, height int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 50, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestFitBox(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		w, h, maxW, maxH int
		wantW, wantH     int
	}{
		{"fits already", 100, 50, 300, 200, 100, 50},
		{"exact box", 300, 200, 300, 200, 300, 200},
		{"width bound", 3000, 1000, 300, 200, 300, 100},
		{"height bound", 1000, 2000, 1200, 800, 400, 800},
		{"same aspect", 6000, 4000, 1200, 800, 1200, 800},
		{"extreme panorama", 10000, 10, 300, 200, 300, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotW, gotH := fitBox(tt.w, tt.h, tt.maxW, tt.maxH)
			if gotW != tt.wantW || gotH != tt.wantH {
				t.Errorf("fitBox(%d, %d, %d, %d) = %dx%d, want %dx%d",
					tt.w, tt.h, tt.maxW, tt.maxH, gotW, gotH, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestImagingCodecResize(t *testing.T) {
	t.Parallel()

	codec := NewImagingCodec()
	if !codec.Available() || codec.Name() != "imaging" {
		t.Fatalf("unexpected codec identity %q available=%v", codec.Name(), codec.Available())
	}

	tests := []struct {
		name          string
		width, height int
		opts          Options
		wantW, wantH  int
	}{
		{"landscape into small box", 1200, 600, Options{Width: 600, Height: 400, Quality: 85}, 600, 300},
		{"portrait into thumbnail box", 400, 800, Options{Width: 300, Height: 200, Quality: 80}, 100, 200},
		{"never enlarges", 120, 80, Options{Width: 1200, Height: 800, Quality: 90}, 120, 80},
		{"original re-encodes only", 333, 222, Options{Quality: 100}, 333, 222},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := codec.Resize(context.Background(), solidPNG(t, tt.width, tt.height), tt.opts)
			if err != nil {
				t.Fatalf("Resize failed: %v", err)
			}

			cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
			if err != nil {
				t.Fatalf("output is not an image: %v", err)
			}
			if format != "jpeg" {
				t.Errorf("format = %s, want jpeg", format)
			}
			if cfg.Width != tt.wantW || cfg.Height != tt.wantH {
				t.Errorf("size = %dx%d, want %dx%d", cfg.Width, cfg.Height, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestImagingCodecQualityAffectsSize(t *testing.T) {
	t.Parallel()

	src := gradientJPEG(t, 800, 600)
	codec := NewImagingCodec()

	low, err := codec.Resize(context.Background(), src, Options{Width: 600, Height: 400, Quality: 10})
	if err != nil {
		t.Fatal(err)
	}
	high, err := codec.Resize(context.Background(), src, Options{Width: 600, Height: 400, Quality: 95})
	if err != nil {
		t.Fatal(err)
	}
	if len(low) >= len(high) {
		t.Errorf("quality 10 output (%d bytes) should be smaller than quality 95 (%d bytes)", len(low), len(high))
	}
}

func TestImagingCodecErrors(t *testing.T) {
	t.Parallel()

	codec := NewImagingCodec()
	if _, err := codec.Resize(context.Background(), []byte("definitely not an image"), Options{Width: 10, Height: 10}); err == nil {
		t.Error("expected error for garbage input")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := codec.Resize(ctx, solidPNG(t, 10, 10), Options{Width: 5, Height: 5}); err == nil {
		t.Error("expected error for canceled context")
	}
}

func TestClampQuality(t *testing.T) {
	t.Parallel()

	for in, want := range map[int]int{-5: 85, 0: 85, 1: 1, 80: 80, 100: 100, 250: 100} {
		if got := clampQuality(in); got != want {
			t.Errorf("clampQuality(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestSniffContentType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"png", solidPNG(t, 2, 2), "image/png"},
		{"jpeg", gradientJPEG(t, 8, 8), "image/jpeg"},
		{"tiff little endian", []byte("II*\x00\x08\x00\x00\x00"), "image/tiff"},
		{"tiff big endian", []byte("MM\x00*\x00\x00\x00\x08"), "image/tiff"},
		{"text", []byte("hello world"), "text/plain; charset=utf-8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SniffContentType(tt.data); got != tt.want {
				t.Errorf("SniffContentType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDimensions(t *testing.T) {
	t.Parallel()

	w, h, format, err := Dimensions(solidPNG(t, 37, 19))
	if err != nil {
		t.Fatal(err)
	}
	if w != 37 || h != 19 || format != "png" {
		t.Errorf("Dimensions() = %d, %d, %s", w, h, format)
	}

	if _, _, _, err := Dimensions([]byte{0x00, 0x01}); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestNewCodecWithoutVips(t *testing.T) {
	t.Parallel()

	if got := NewCodec(false).Name(); got != "imaging" {
		t.Errorf("NewCodec(false) = %s, want imaging", got)
	}
}
