package mediatypes

import "strings"

// FileType represents the type of a remote drive item.
type FileType string

const (
	// FileTypeFolder represents a gallery folder.
	FileTypeFolder FileType = "folder"
	// FileTypeImage represents an image file.
	FileTypeImage FileType = "image"
	// FileTypeOther represents an unknown or unsupported file type.
	FileTypeOther FileType = "other"
)

// SortField specifies which field to sort gallery images by.
type SortField string

// SortOrder specifies the direction of sorting.
type SortOrder string

const (
	// SortByDate sorts by capture date, falling back to modification time.
	SortByDate SortField = "date"
	// SortByName sorts by filename.
	SortByName SortField = "name"
	// SortBySize sorts by file size.
	SortBySize SortField = "size"
	// SortByModified sorts by remote modification time.
	SortByModified SortField = "modified"

	// SortAsc sorts in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts in descending order.
	SortDesc SortOrder = "desc"
)

// ParseSortField returns the SortField for s, or SortByDate with ok=false
// when s is not a known field. An empty string is accepted as the default.
func ParseSortField(s string) (SortField, bool) {
	switch SortField(strings.ToLower(s)) {
	case "", SortByDate:
		return SortByDate, true
	case SortByName:
		return SortByName, true
	case SortBySize:
		return SortBySize, true
	case SortByModified:
		return SortByModified, true
	}
	return SortByDate, false
}

// ParseSortOrder returns the SortOrder for s. Empty means descending.
func ParseSortOrder(s string) (SortOrder, bool) {
	switch SortOrder(strings.ToLower(s)) {
	case "", SortDesc:
		return SortDesc, true
	case SortAsc:
		return SortAsc, true
	}
	return SortDesc, false
}

// ImageExtensions maps file extensions to whether they are supported image formats.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".tiff": true,
	".tif":  true,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
}

// GetFileType returns the FileType for a given file extension.
// The extension should be lowercase and include the leading dot (e.g., ".jpg").
func GetFileType(ext string) FileType {
	if ImageExtensions[ext] {
		return FileTypeImage
	}
	return FileTypeOther
}

// GetMimeType returns the MIME type for a given file extension.
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// SizePreset names a fixed output box for image variants.
type SizePreset string

const (
	PresetThumbnail SizePreset = "thumbnail"
	PresetSmall     SizePreset = "small"
	PresetMedium    SizePreset = "medium"
	PresetLarge     SizePreset = "large"
	PresetOriginal  SizePreset = "original"
)

// DefaultPreset is used when a request names no size.
const DefaultPreset = PresetMedium

// Preset is the target box and default JPEG quality of a size preset.
// Width and Height of zero mean "keep the original dimensions".
type Preset struct {
	Width   int
	Height  int
	Quality int
}

// Resizes reports whether the preset constrains dimensions.
func (p Preset) Resizes() bool {
	return p.Width > 0 && p.Height > 0
}

// Presets holds the named size presets.
var Presets = map[SizePreset]Preset{
	PresetThumbnail: {Width: 300, Height: 200, Quality: 80},
	PresetSmall:     {Width: 600, Height: 400, Quality: 85},
	PresetMedium:    {Width: 1200, Height: 800, Quality: 90},
	PresetLarge:     {Width: 2000, Height: 1333, Quality: 95},
	PresetOriginal:  {Quality: 100},
}

// LookupPreset returns the preset for name. An empty name selects DefaultPreset.
func LookupPreset(name string) (SizePreset, Preset, bool) {
	key := SizePreset(strings.ToLower(name))
	if key == "" {
		key = DefaultPreset
	}
	p, ok := Presets[key]
	return key, p, ok
}
