package media

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"gallery-index/internal/database"
	"gallery-index/internal/logging"
)

// Metadata is the descriptive information extracted from an image file.
type Metadata struct {
	Width     *int               `json:"width"`
	Height    *int               `json:"height"`
	Format    *string            `json:"format"`
	FileSize  *int64             `json:"fileSize"`
	Camera    database.Camera    `json:"camera"`
	Settings  database.Settings  `json:"settings"`
	DateTaken *string            `json:"dateTaken"`
	Location  *database.Location `json:"location"`
	Technical database.Technical `json:"technical"`
}

// flashModes translates the EXIF Flash tag.
var flashModes = map[int]string{
	0:  "No Flash",
	1:  "Flash Fired",
	5:  "Flash Fired, Return not detected",
	7:  "Flash Fired, Return detected",
	9:  "Flash Fired, Compulsory",
	13: "Flash Fired, Compulsory, Return not detected",
	15: "Flash Fired, Compulsory, Return detected",
	16: "No Flash, Compulsory",
	24: "No Flash, Auto",
	25: "Flash Fired, Auto",
	29: "Flash Fired, Auto, Return not detected",
	31: "Flash Fired, Auto, Return detected",
	32: "No Flash Available",
	65: "Flash Fired, Red-eye reduction",
	69: "Flash Fired, Red-eye reduction, Return not detected",
	71: "Flash Fired, Red-eye reduction, Return detected",
	73: "Flash Fired, Compulsory, Red-eye reduction",
	77: "Flash Fired, Compulsory, Red-eye reduction, Return not detected",
	79: "Flash Fired, Compulsory, Red-eye reduction, Return detected",
	89: "Flash Fired, Auto, Red-eye reduction",
	93: "Flash Fired, Auto, Red-eye reduction, Return not detected",
	95: "Flash Fired, Auto, Red-eye reduction, Return detected",
}

var whiteBalanceModes = map[int]string{
	0: "Auto",
	1: "Manual",
}

var colorSpaces = map[int]string{
	1:     "sRGB",
	2:     "Adobe RGB",
	65535: "Uncalibrated",
}

// FormatFlash renders an EXIF flash value.
func FormatFlash(v int) string {
	if s, ok := flashModes[v]; ok {
		return s
	}
	return fmt.Sprintf("Flash Mode %d", v)
}

// FormatShutterSpeed renders an exposure time in seconds as "Ns" for one
// second and longer, "1/N" otherwise.
func FormatShutterSpeed(seconds float64) string {
	if seconds <= 0 {
		return ""
	}
	if seconds >= 1 {
		return formatNumber(seconds) + "s"
	}
	return fmt.Sprintf("1/%d", int(math.Round(1/seconds)))
}

// FormatFocalLength renders a focal length in millimetres ("50mm").
func FormatFocalLength(mm float64) string {
	if mm <= 0 {
		return ""
	}
	return formatNumber(mm) + "mm"
}

// FormatAperture renders an f-number ("f/2.8").
func FormatAperture(f float64) string {
	if f <= 0 {
		return ""
	}
	return "f/" + formatNumber(f)
}

// formatNumber prints at most two decimals and drops trailing zeros.
func formatNumber(f float64) string {
	return strconv.FormatFloat(math.Round(f*100)/100, 'f', -1, 64)
}

// emptyMetadata is returned when nothing can be decoded.
func emptyMetadata() *Metadata {
	return &Metadata{Technical: database.Technical{Orientation: 1}}
}

// ExtractMetadata reads dimensions and EXIF data from image bytes. It never
// fails: undecodable input yields an object of nulls with hasExif false.
func ExtractMetadata(data []byte) *Metadata {
	w, h, format, err := Dimensions(data)
	if err != nil {
		logging.Debug("metadata: %v", err)
		return emptyMetadata()
	}

	size := int64(len(data))
	md := &Metadata{
		Width:     &w,
		Height:    &h,
		Format:    &format,
		FileSize:  &size,
		Technical: database.Technical{Orientation: 1},
	}

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		logging.Debug("metadata: no EXIF data: %v", err)
		return md
	}
	md.Technical.HasExif = true

	md.Camera = database.Camera{
		Make:  exifString(x, exif.Make),
		Model: exifString(x, exif.Model),
		Lens:  exifString(x, exif.LensModel),
	}

	if v, ok := exifFloat(x, exif.FocalLength); ok {
		md.Settings.FocalLength = FormatFocalLength(v)
	}
	if v, ok := exifFloat(x, exif.FNumber); ok {
		md.Settings.Aperture = FormatAperture(v)
	}
	if v, ok := exifFloat(x, exif.ExposureTime); ok {
		md.Settings.ShutterSpeed = FormatShutterSpeed(v)
	}
	if v, ok := exifInt(x, exif.ISOSpeedRatings); ok && v > 0 {
		md.Settings.ISO = &v
	}
	if v, ok := exifInt(x, exif.Flash); ok {
		md.Settings.Flash = FormatFlash(v)
	}
	if v, ok := exifInt(x, exif.WhiteBalance); ok {
		md.Settings.WhiteBalance = whiteBalanceModes[v]
	}

	if v, ok := exifInt(x, exif.ColorSpace); ok {
		md.Technical.ColorSpace = colorSpaces[v]
	}
	if v, ok := exifInt(x, exif.Orientation); ok && v >= 1 && v <= 8 {
		md.Technical.Orientation = v
	}

	md.DateTaken = dateTaken(x)
	md.Location = location(x)
	return md
}

func exifString(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil || tag.Format() != tiff.StringVal {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}

func exifInt(x *exif.Exif, name exif.FieldName) (int, bool) {
	tag, err := x.Get(name)
	if err != nil || tag.Format() != tiff.IntVal {
		return 0, false
	}
	v, err := tag.Int(0)
	if err != nil {
		return 0, false
	}
	return v, true
}

func exifFloat(x *exif.Exif, name exif.FieldName) (float64, bool) {
	tag, err := x.Get(name)
	if err != nil {
		return 0, false
	}
	switch tag.Format() {
	case tiff.RatVal:
		num, den, err := tag.Rat2(0)
		if err != nil || den == 0 {
			return 0, false
		}
		return float64(num) / float64(den), true
	case tiff.FloatVal:
		v, err := tag.Float(0)
		return v, err == nil
	case tiff.IntVal:
		v, err := tag.Int(0)
		return float64(v), err == nil
	default:
		return 0, false
	}
}

// dateTaken prefers DateTimeOriginal, then DateTime, then DateTimeDigitized.
// EXIF dates carry no zone; they are reported as UTC.
func dateTaken(x *exif.Exif) *string {
	for _, name := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTime, exif.DateTimeDigitized} {
		s := exifString(x, name)
		if s == "" {
			continue
		}
		t, err := time.Parse("2006:01:02 15:04:05", s)
		if err != nil {
			logging.Debug("metadata: invalid date format in %s: %q", name, s)
			continue
		}
		out := t.UTC().Format(time.RFC3339)
		return &out
	}
	return nil
}

func location(x *exif.Exif) *database.Location {
	lat, long, err := x.LatLong()
	if err != nil || math.IsNaN(lat) || math.IsNaN(long) {
		return nil
	}
	loc := &database.Location{Latitude: lat, Longitude: long}

	if alt, ok := exifFloat(x, exif.GPSAltitude); ok {
		if ref, ok := exifInt(x, exif.GPSAltitudeRef); ok && ref == 1 {
			alt = -alt
		}
		loc.Altitude = &alt
	}
	return loc
}
