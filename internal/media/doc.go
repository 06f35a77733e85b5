// Package media resizes images into size variants and extracts their
// descriptive metadata.
//
// Two Codec implementations are provided:
//   - VipsCodec: libvips through govips, shrinking during decode
//   - ImagingCodec: pure Go through disintegration/imaging
//
// Both fit the image inside the requested box without enlarging it, apply
// EXIF orientation and encode JPEG. ExtractMetadata reads dimensions with
// image.DecodeConfig and EXIF tags with goexif.
package media
