package database

import (
	"time"

	"gallery-index/internal/mediatypes"
)

// Gallery is one remote folder of images.
type Gallery struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	DisplayName  string    `json:"displayName"`
	CaptureDate  *string   `json:"captureDate"`
	ItemCount    int       `json:"itemCount"`
	LastModified time.Time `json:"lastModified"`
	WebURL       string    `json:"webUrl,omitempty"`
	ThumbnailID  string    `json:"thumbnailId,omitempty"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
}

// Camera describes the capturing device.
type Camera struct {
	Make  string `json:"make,omitempty"`
	Model string `json:"model,omitempty"`
	Lens  string `json:"lens,omitempty"`
}

// Settings holds exposure settings in display form ("50mm", "f/2.8", "1/250").
type Settings struct {
	FocalLength  string `json:"focalLength,omitempty"`
	Aperture     string `json:"aperture,omitempty"`
	ShutterSpeed string `json:"shutterSpeed,omitempty"`
	ISO          *int   `json:"iso,omitempty"`
	Flash        string `json:"flash,omitempty"`
	WhiteBalance string `json:"whiteBalance,omitempty"`
}

// Technical holds encoding details.
type Technical struct {
	ColorSpace  string `json:"colorSpace,omitempty"`
	Orientation int    `json:"orientation"`
	HasExif     bool   `json:"hasExif"`
}

// Location is a GPS position.
type Location struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
}

// Image is one image file inside a gallery.
type Image struct {
	ID               string    `json:"id"`
	GalleryID        string    `json:"galleryId"`
	Name             string    `json:"name"`
	DisplayName      string    `json:"displayName"`
	DateTaken        *string   `json:"dateTaken"`
	Signature        *string   `json:"signature"`
	OriginalFilename string    `json:"originalFilename"`
	Size             int64     `json:"size"`
	LastModified     time.Time `json:"lastModified"`
	DownloadURL      string    `json:"downloadUrl,omitempty"`
	WebURL           string    `json:"webUrl,omitempty"`
	Width            *int      `json:"width,omitempty"`
	Height           *int      `json:"height,omitempty"`
	Format           string    `json:"format,omitempty"`
	Camera           Camera    `json:"camera"`
	Settings         Settings  `json:"settings"`
	Technical        Technical `json:"technical"`
	Location         *Location `json:"location"`
	ThumbnailURL     string    `json:"thumbnailUrl,omitempty"`
}

// SortTime is the instant an image is ordered by: the capture date when
// known, otherwise the remote modification time.
func (img *Image) SortTime() time.Time {
	if img.DateTaken != nil {
		if t, err := time.Parse(time.DateOnly, *img.DateTaken); err == nil {
			return t
		}
	}
	return img.LastModified
}

type (
	SortField = mediatypes.SortField
	SortOrder = mediatypes.SortOrder
)

// ImageListOptions selects one page of a gallery's images.
type ImageListOptions struct {
	GalleryID string
	Page      int
	PageSize  int
	SortField SortField
	SortOrder SortOrder
}

// ImagePage is one page of images and the total across all pages.
type ImagePage struct {
	Images []Image
	Total  int
}

// FTSFilters narrows a full-text search. Empty fields are ignored.
type FTSFilters struct {
	GalleryIDs    []string
	StartDate     string
	EndDate       string
	IncludeCamera bool
}

// RowCounts reports table sizes, used to verify that the FTS shadow index
// tracks the images table.
type RowCounts struct {
	Galleries int `json:"galleries"`
	Images    int `json:"images"`
	FTSRows   int `json:"ftsRows"`
}
