package media

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

// tiffEntry is one IFD entry; data holds the big-endian value bytes.
type tiffEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

func asciiEntry(tag uint16, s string) tiffEntry {
	b := append([]byte(s), 0)
	return tiffEntry{tag, 2, uint32(len(b)), b}
}

func byteEntry(tag uint16, v uint8) tiffEntry {
	return tiffEntry{tag, 1, 1, []byte{v}}
}

func shortEntry(tag uint16, v uint16) tiffEntry {
	return tiffEntry{tag, 3, 1, binary.BigEndian.AppendUint16(nil, v)}
}

func longEntry(tag uint16, v uint32) tiffEntry {
	return tiffEntry{tag, 4, 1, binary.BigEndian.AppendUint32(nil, v)}
}

func rationalEntry(tag uint16, pairs ...uint32) tiffEntry {
	var b []byte
	for _, v := range pairs {
		b = binary.BigEndian.AppendUint32(b, v)
	}
	return tiffEntry{tag, 5, uint32(len(pairs) / 2), b}
}

func ifdSize(n int) uint32 { return uint32(2 + 12*n + 4) }

// buildTIFF lays out IFD0, the EXIF IFD and the GPS IFD back to back,
// followed by the values that do not fit in an entry.
func buildTIFF(ifd0, exifIFD, gpsIFD []tiffEntry) []byte {
	off0 := uint32(8)
	offExif := off0 + ifdSize(len(ifd0)+2)
	offGPS := offExif + ifdSize(len(exifIFD))
	dataStart := offGPS + ifdSize(len(gpsIFD))

	ifd0 = append(ifd0, longEntry(0x8769, offExif), longEntry(0x8825, offGPS))

	var head, data bytes.Buffer
	head.WriteString("MM\x00\x2a")
	_ = binary.Write(&head, binary.BigEndian, off0)

	for _, entries := range [][]tiffEntry{ifd0, exifIFD, gpsIFD} {
		_ = binary.Write(&head, binary.BigEndian, uint16(len(entries)))
		for _, e := range entries {
			_ = binary.Write(&head, binary.BigEndian, e.tag)
			_ = binary.Write(&head, binary.BigEndian, e.typ)
			_ = binary.Write(&head, binary.BigEndian, e.count)
			if len(e.data) <= 4 {
				value := make([]byte, 4)
				copy(value, e.data)
				head.Write(value)
				continue
			}
			_ = binary.Write(&head, binary.BigEndian, dataStart+uint32(data.Len()))
			data.Write(e.data)
			if data.Len()%2 == 1 {
				data.WriteByte(0)
			}
		}
		_ = binary.Write(&head, binary.BigEndian, uint32(0))
	}

	return append(head.Bytes(), data.Bytes()...)
}

// exifJPEG returns a width x height JPEG carrying an APP1 EXIF segment built
// from the given IFDs.
func exifJPEG(t testing.TB, width, height int, ifd0, exifIFD, gpsIFD []tiffEntry) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 90, B: 160, A: 255})
		}
	}
	var enc bytes.Buffer
	if err := jpeg.Encode(&enc, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	raw := enc.Bytes()

	payload := append([]byte("Exif\x00\x00"), buildTIFF(ifd0, exifIFD, gpsIFD)...)

	var out bytes.Buffer
	out.Write(raw[:2]) // SOI
	out.Write([]byte{0xFF, 0xE1})
	_ = binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write(raw[2:])
	return out.Bytes()
}

// nikonJPEG is a 120x80 JPEG with a full set of camera, exposure and GPS
// tags: Lisbon, 12.5m below sea level.
func nikonJPEG(t testing.TB) []byte {
	return exifJPEG(t, 120, 80,
		[]tiffEntry{
			asciiEntry(0x010F, "NIKON CORPORATION"),
			asciiEntry(0x0110, "NIKON Z 8"),
			shortEntry(0x0112, 6),
		},
		[]tiffEntry{
			rationalEntry(0x829A, 1, 250),
			rationalEntry(0x829D, 28, 10),
			shortEntry(0x8827, 400),
			asciiEntry(0x9003, "2024:05:02 14:30:00"),
			shortEntry(0x9209, 25),
			rationalEntry(0x920A, 50, 1),
			shortEntry(0xA001, 1),
			shortEntry(0xA403, 0),
			asciiEntry(0xA434, "NIKKOR Z 24-70mm f/2.8 S"),
		},
		[]tiffEntry{
			asciiEntry(0x0001, "N"),
			rationalEntry(0x0002, 38, 1, 42, 1, 36, 1),
			asciiEntry(0x0003, "W"),
			rationalEntry(0x0004, 9, 1, 8, 1, 24, 1),
			byteEntry(0x0005, 1),
			rationalEntry(0x0006, 125, 10),
		},
	)
}
