package gallery

import (
	"net/url"
	"sort"
	"strings"

	"gallery-index/internal/database"
	"gallery-index/internal/filename"
	"gallery-index/internal/media"
	"gallery-index/internal/mediatypes"
	"gallery-index/internal/remote"
)

// FromCollection builds a gallery from a remote folder. ok is false for
// hidden folders, which are never listed.
func FromCollection(c remote.Collection) (g database.Gallery, ok bool) {
	if filename.IsHidden(c.Name) {
		return database.Gallery{}, false
	}

	displayName, captureDate := filename.ParseGalleryName(c.Name)
	return database.Gallery{
		ID:           c.ID,
		Name:         c.Name,
		DisplayName:  displayName,
		CaptureDate:  captureDate,
		ItemCount:    c.ChildCount,
		LastModified: c.LastModified,
		WebURL:       c.WebURL,
	}, true
}

// ImageFromItem builds an image from a remote file. ok is false for folders
// and files without a supported image extension.
func ImageFromItem(galleryID string, it remote.Item) (img database.Image, ok bool) {
	if it.IsFolder || !filename.IsImage(it.Name) {
		return database.Image{}, false
	}

	md := filename.Parse(it.Name)
	img = database.Image{
		ID:               it.ID,
		GalleryID:        galleryID,
		Name:             it.Name,
		DisplayName:      md.DisplayName,
		DateTaken:        md.DateTaken,
		Signature:        md.Signature,
		OriginalFilename: md.OriginalFilename,
		Size:             it.Size,
		LastModified:     it.LastModified,
		DownloadURL:      it.DownloadURL,
		WebURL:           it.WebURL,
		Width:            it.Width,
		Height:           it.Height,
		Format:           md.Extension,
		Technical:        database.Technical{Orientation: 1},
		ThumbnailURL:     ThumbnailURL(it.ID),
	}

	if p := it.Photo; p != nil {
		img.Camera = database.Camera{Make: p.CameraMake, Model: p.CameraModel}
		img.Settings = database.Settings{
			FocalLength:  media.FormatFocalLength(p.FocalLength),
			Aperture:     media.FormatAperture(p.FNumber),
			ShutterSpeed: media.FormatShutterSpeed(p.ExposureTime()),
		}
		if p.ISO > 0 {
			iso := p.ISO
			img.Settings.ISO = &iso
		}
		if p.Orientation >= 1 && p.Orientation <= 8 {
			img.Technical.Orientation = p.Orientation
		}
		img.Technical.HasExif = true
	}
	return img, true
}

// ApplyMetadata fills the fields of img that the store did not report from
// metadata extracted from the file itself.
func ApplyMetadata(img *database.Image, md *media.Metadata) {
	if md == nil {
		return
	}
	mergeMetadata(img, &database.Image{
		Width:     md.Width,
		Height:    md.Height,
		Camera:    md.Camera,
		Settings:  md.Settings,
		Technical: md.Technical,
		Location:  md.Location,
	})
}

// CarryMetadata copies file metadata recorded for prev into img when img
// lacks it, so an unchanged file need not be downloaded again.
func CarryMetadata(img, prev *database.Image) {
	if prev == nil {
		return
	}
	mergeMetadata(img, prev)
}

func mergeMetadata(img, from *database.Image) {
	if img.Width == nil && img.Height == nil && from.Width != nil && from.Height != nil {
		img.Width, img.Height = from.Width, from.Height
	}

	fill(&img.Camera.Make, from.Camera.Make)
	fill(&img.Camera.Model, from.Camera.Model)
	fill(&img.Camera.Lens, from.Camera.Lens)

	fill(&img.Settings.FocalLength, from.Settings.FocalLength)
	fill(&img.Settings.Aperture, from.Settings.Aperture)
	fill(&img.Settings.ShutterSpeed, from.Settings.ShutterSpeed)
	fill(&img.Settings.Flash, from.Settings.Flash)
	fill(&img.Settings.WhiteBalance, from.Settings.WhiteBalance)
	if img.Settings.ISO == nil {
		img.Settings.ISO = from.Settings.ISO
	}

	fill(&img.Technical.ColorSpace, from.Technical.ColorSpace)
	if img.Technical.Orientation <= 1 && from.Technical.Orientation > 1 {
		img.Technical.Orientation = from.Technical.Orientation
	}
	img.Technical.HasExif = img.Technical.HasExif || from.Technical.HasExif

	if img.Location == nil {
		img.Location = from.Location
	}
}

func fill(dst *string, src string) {
	if *dst == "" {
		*dst = src
	}
}

// ThumbnailURL is the API path of an image's thumbnail variant.
func ThumbnailURL(imageID string) string {
	return "/api/images/" + url.PathEscape(imageID) + "?size=" + string(mediatypes.PresetThumbnail)
}

// SortGalleries orders galleries the way the index lists them: newest
// capture date first, undated galleries last, ties by name.
func SortGalleries(galleries []database.Gallery) {
	sort.SliceStable(galleries, func(i, j int) bool {
		a, b := galleries[i].CaptureDate, galleries[j].CaptureDate
		switch {
		case a != nil && b != nil && *a != *b:
			return *a > *b
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return strings.ToLower(galleries[i].Name) < strings.ToLower(galleries[j].Name)
	})
}

// sortImages orders images by field and direction, with the same tiebreaks
// the index applies.
func sortImages(images []database.Image, field mediatypes.SortField, order mediatypes.SortOrder) {
	desc := order != mediatypes.SortAsc

	sort.SliceStable(images, func(i, j int) bool {
		a, b := &images[i], &images[j]

		var cmp int
		switch field {
		case mediatypes.SortByName:
			cmp = strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		case mediatypes.SortBySize:
			cmp = compareInt64(a.Size, b.Size)
		case mediatypes.SortByModified:
			cmp = a.LastModified.Compare(b.LastModified)
		default:
			cmp = a.SortTime().Compare(b.SortTime())
		}
		if cmp != 0 {
			if desc {
				return cmp > 0
			}
			return cmp < 0
		}

		if field != mediatypes.SortByName {
			if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
				return c < 0
			}
		}
		return a.ID < b.ID
	})
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
