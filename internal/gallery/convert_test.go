package gallery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gallery-index/internal/database"
	"gallery-index/internal/media"
	"gallery-index/internal/remote"
)

func TestImageFromItemPhotoFacet(t *testing.T) {
	w, h := 6000, 4000
	it := remote.Item{
		ID:           "i1",
		Name:         "20240502_303_OWL6042.jpg",
		Size:         2048,
		LastModified: time.Date(2024, 5, 3, 10, 0, 0, 0, time.UTC),
		Width:        &w,
		Height:       &h,
		Photo: &remote.Photo{
			CameraMake:          "NIKON CORPORATION",
			CameraModel:         "NIKON Z 8",
			FNumber:             2.8,
			FocalLength:         50,
			ExposureNumerator:   1,
			ExposureDenominator: 250,
			ISO:                 400,
			Orientation:         6,
		},
	}

	img, ok := ImageFromItem("g1", it)
	require.True(t, ok)
	assert.Equal(t, database.Camera{Make: "NIKON CORPORATION", Model: "NIKON Z 8"}, img.Camera)
	assert.Equal(t, "f/2.8", img.Settings.Aperture)
	assert.Equal(t, "50mm", img.Settings.FocalLength)
	assert.Equal(t, "1/250", img.Settings.ShutterSpeed)
	require.NotNil(t, img.Settings.ISO)
	assert.Equal(t, 400, *img.Settings.ISO)
	assert.Equal(t, 6, img.Technical.Orientation)
	assert.True(t, img.Technical.HasExif)
}

func TestImageFromItemWithoutFacet(t *testing.T) {
	img, ok := ImageFromItem("g1", remote.Item{ID: "i2", Name: "lisbon.png"})
	require.True(t, ok)
	assert.Equal(t, database.Camera{}, img.Camera)
	assert.Equal(t, database.Settings{}, img.Settings)
	assert.Equal(t, database.Technical{Orientation: 1}, img.Technical)
	assert.Nil(t, img.Location)
}

func TestApplyMetadataFillsGaps(t *testing.T) {
	iso := 400
	alt := -12.5
	w, h := 120, 80
	md := &media.Metadata{
		Width:  &w,
		Height: &h,
		Camera: database.Camera{Make: "exif make", Model: "exif model", Lens: "NIKKOR Z 24-70mm f/2.8 S"},
		Settings: database.Settings{
			Aperture: "f/4", ShutterSpeed: "1/60", ISO: &iso, Flash: "No Flash", WhiteBalance: "Auto",
		},
		Technical: database.Technical{ColorSpace: "sRGB", Orientation: 8, HasExif: true},
		Location:  &database.Location{Latitude: 38.71, Longitude: -9.14, Altitude: &alt},
	}

	img, ok := ImageFromItem("g1", remote.Item{
		ID:    "i1",
		Name:  "owl.jpg",
		Photo: &remote.Photo{CameraMake: "NIKON CORPORATION", FNumber: 2.8},
	})
	require.True(t, ok)

	ApplyMetadata(&img, md)

	assert.Equal(t, "NIKON CORPORATION", img.Camera.Make, "store values win")
	assert.Equal(t, "exif model", img.Camera.Model)
	assert.Equal(t, "NIKKOR Z 24-70mm f/2.8 S", img.Camera.Lens)
	assert.Equal(t, "f/2.8", img.Settings.Aperture, "store values win")
	assert.Equal(t, "1/60", img.Settings.ShutterSpeed)
	assert.Equal(t, &iso, img.Settings.ISO)
	assert.Equal(t, "No Flash", img.Settings.Flash)
	assert.Equal(t, "sRGB", img.Technical.ColorSpace)
	assert.Equal(t, 8, img.Technical.Orientation)
	assert.True(t, img.Technical.HasExif)
	require.NotNil(t, img.Location)
	assert.Equal(t, -12.5, *img.Location.Altitude)
	require.NotNil(t, img.Width)
	assert.Equal(t, 120, *img.Width)

	ApplyMetadata(&img, nil)
	assert.Equal(t, "exif model", img.Camera.Model)
}

func TestCarryMetadata(t *testing.T) {
	prev := database.Image{
		Camera:    database.Camera{Lens: "35mm f/1.4"},
		Technical: database.Technical{Orientation: 3, HasExif: true},
		Location:  &database.Location{Latitude: 1, Longitude: 2},
	}

	img, ok := ImageFromItem("g1", remote.Item{ID: "i1", Name: "owl.jpg"})
	require.True(t, ok)

	CarryMetadata(&img, &prev)
	assert.Equal(t, "35mm f/1.4", img.Camera.Lens)
	assert.Equal(t, 3, img.Technical.Orientation)
	assert.True(t, img.Technical.HasExif)
	assert.Equal(t, prev.Location, img.Location)

	CarryMetadata(&img, nil)
	assert.Equal(t, "35mm f/1.4", img.Camera.Lens)
}
