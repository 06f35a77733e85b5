// Package filename derives structured metadata from gallery folder names and
// image filenames.
//
// Canonical image filenames look like 20240502_303_OWL6042.jpg: an 8-digit
// capture date, a 3-digit signature and the camera's original name. Gallery
// folders carry an optional 8-digit date prefix followed by a description,
// for example "20240502 Barracca".
package filename

import (
	"path"
	"regexp"
	"strings"
	"time"

	"gallery-index/internal/mediatypes"
)

// UntitledGallery is the display name of a gallery whose folder name is only
// a date prefix.
const UntitledGallery = "Untitled Gallery"

var (
	canonicalPattern = regexp.MustCompile(`(?i)^(\d{8})_(\d{3})_(.+?)\.(jpg|jpeg|png|tiff|tif)$`)
	galleryPrefix    = regexp.MustCompile(`^(\d{8})\s*`)
)

// Metadata is the result of parsing an image filename. DateTaken and
// Signature are both set for canonical names and both nil otherwise.
type Metadata struct {
	DateTaken        *string
	Signature        *string
	OriginalFilename string
	DisplayName      string
	Extension        string
}

// Parse extracts metadata from name. It never fails: names that do not
// follow the canonical pattern fall back to the plain filename.
func Parse(name string) Metadata {
	if m := canonicalPattern.FindStringSubmatch(name); m != nil {
		dateStr, signature, rest, ext := m[1], m[2], m[3], m[4]
		return Metadata{
			DateTaken:        formatDate(dateStr),
			Signature:        &signature,
			OriginalFilename: rest + "." + ext,
			DisplayName:      rest,
			Extension:        strings.ToLower(ext),
		}
	}

	return Metadata{
		OriginalFilename: name,
		DisplayName:      trimExtension(name),
		Extension:        extension(name),
	}
}

// ParseGalleryName returns the display name and capture date of a gallery
// folder. The date is nil when the name has no 8-digit prefix or the prefix
// is not a real calendar date.
func ParseGalleryName(name string) (displayName string, captureDate *string) {
	m := galleryPrefix.FindStringSubmatch(name)
	if m == nil {
		if name == "" {
			return UntitledGallery, nil
		}
		return name, nil
	}

	displayName = name[len(m[0]):]
	if displayName == "" {
		displayName = UntitledGallery
	}

	if _, err := time.Parse("20060102", m[1]); err == nil {
		captureDate = formatDate(m[1])
	}
	return displayName, captureDate
}

// IsImage reports whether name has a supported image extension.
func IsImage(name string) bool {
	return mediatypes.GetFileType("."+extension(name)) == mediatypes.FileTypeImage
}

// IsHidden reports whether a folder or file name is hidden (dot-prefixed).
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// formatDate turns YYYYMMDD into YYYY-MM-DD. Anything that is not exactly
// eight characters yields nil.
func formatDate(s string) *string {
	if len(s) != 8 {
		return nil
	}
	d := s[0:4] + "-" + s[4:6] + "-" + s[6:8]
	return &d
}

func trimExtension(name string) string {
	ext := path.Ext(name)
	if len(ext) <= 1 {
		return name
	}
	return name[:len(name)-len(ext)]
}

func extension(name string) string {
	ext := path.Ext(name)
	if len(ext) <= 1 {
		return ""
	}
	return strings.ToLower(ext[1:])
}
