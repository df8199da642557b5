package exif

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/lumapix/darkroom/pkg/schema"
)

const exifDateLayout = "2006:01:02 15:04:05"

// Record flattens decoded tag values into the structured record persisted
// on the photo. Individual fields that fail to convert are simply absent.
func (d *Data) Record() *schema.ExifRecord {
	rec := &schema.ExifRecord{
		CameraMake:  stringField(d.Image, "Make"),
		CameraModel: stringField(d.Image, "Model"),
	}
	if d.Photo != nil {
		rec.LensModel = stringField(d.Photo, "LensModel")
		rec.Aperture = floatField(d.Photo, "FNumber")
		rec.ISO = intField(d.Photo, "ISOSpeedRatings")
		rec.FocalLength = floatField(d.Photo, "FocalLength")
		rec.ShutterSpeed = shutterSpeed(d.Photo["ExposureTime"])
		rec.WhiteBalance = lookupField(d.Photo, "WhiteBalance", whiteBalanceModes)
		rec.MeteringMode = lookupField(d.Photo, "MeteringMode", meteringModes)
		rec.Flash = flashField(d.Photo)
		rec.TakenAt = dateField(d.Photo, "DateTimeOriginal")
		if rec.TakenAt == nil {
			rec.TakenAt = dateField(d.Photo, "DateTimeDigitized")
		}
	}
	if rec.TakenAt == nil {
		rec.TakenAt = dateField(d.Image, "DateTime")
	}
	return rec
}

// Extract reads a JPEG or bare TIFF file and returns its camera metadata,
// or nil when the file has no parsable EXIF block. It never fails the
// caller: unparsable metadata is not a processing error.
func Extract(path string) *schema.ExifRecord {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	block, err := rawBlock(data)
	if err != nil {
		return nil
	}
	decoded, err := Decode(block)
	if err != nil {
		return nil
	}
	return decoded.Record()
}

// rawBlock locates the EXIF byte block: either the file is a bare TIFF, or
// a JPEG whose APP1 segment carries the Exif\0\0 payload.
func rawBlock(data []byte) ([]byte, error) {
	if len(data) >= 4 && (data[0] == 'I' && data[1] == 'I' || data[0] == 'M' && data[1] == 'M') {
		return data, nil
	}
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil, fmt.Errorf("exif: not a JPEG or TIFF container")
	}

	i := 2
	for i+4 <= len(data) {
		if data[i] != 0xFF {
			return nil, fmt.Errorf("exif: corrupt JPEG marker stream")
		}
		marker := data[i+1]
		// standalone markers carry no length
		if marker == 0x01 || (marker >= 0xD0 && marker <= 0xD9) {
			i += 2
			continue
		}
		size := int(binary.BigEndian.Uint16(data[i+2 : i+4]))
		if size < 2 || i+2+size > len(data) {
			return nil, fmt.Errorf("exif: truncated JPEG segment")
		}
		payload := data[i+4 : i+2+size]
		// APP1 also carries XMP; only the Exif payload is wanted
		if marker == 0xE1 && bytes.HasPrefix(payload, exifPrefix) {
			return payload, nil
		}
		if marker == 0xDA {
			// start of scan, no metadata past this point
			break
		}
		i += 2 + size
	}
	return nil, fmt.Errorf("exif: no APP1 segment")
}

func stringField(dir map[string]any, name string) *string {
	if dir == nil {
		return nil
	}
	s, ok := dir[name].(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

func floatField(dir map[string]any, name string) *float64 {
	v, ok := numeric(dir[name])
	if !ok {
		return nil
	}
	return &v
}

func intField(dir map[string]any, name string) *int {
	v, ok := numeric(dir[name])
	if !ok {
		return nil
	}
	n := int(v)
	return &n
}

func dateField(dir map[string]any, name string) *time.Time {
	if dir == nil {
		return nil
	}
	s, ok := dir[name].(string)
	if !ok {
		return nil
	}
	t, err := time.Parse(exifDateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}

func lookupField(dir map[string]any, name string, table map[int64]string) *string {
	v, ok := numeric(dir[name])
	if !ok {
		return nil
	}
	s, ok := table[int64(v)]
	if !ok {
		return nil
	}
	return &s
}

func flashField(dir map[string]any) *string {
	v, ok := numeric(dir["Flash"])
	if !ok {
		return nil
	}
	code := int64(v)
	if s, ok := flashModes[code]; ok {
		return &s
	}
	// unknown code: fall back to the fired bit
	s := "Did not fire"
	if code&0x1 != 0 {
		s = "Fired"
	}
	return &s
}

// shutterSpeed renders an exposure time as "2s" when at or above one
// second, otherwise as the conventional "1/n" fraction.
func shutterSpeed(v any) *string {
	t, ok := numeric(v)
	if !ok || t <= 0 {
		return nil
	}
	var s string
	if t >= 1 {
		s = fmt.Sprintf("%gs", t)
	} else {
		s = fmt.Sprintf("1/%d", int(math.Round(1/t)))
	}
	return &s
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case []int64:
		if len(n) > 0 {
			return float64(n[0]), true
		}
	case []float64:
		if len(n) > 0 {
			return n[0], true
		}
	}
	return 0, false
}
