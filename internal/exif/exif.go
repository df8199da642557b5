// internal/exif/exif.go

// Package exif decodes the binary TIFF/EXIF metadata block embedded in an
// image into named tag values. The decoder is deliberately forgiving about
// entry-level damage: any out-of-range offset or length drops that one
// entry, while a structurally broken header fails the whole decode.
package exif

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// ErrMalformed reports an EXIF block with no usable TIFF header.
var ErrMalformed = errors.New("exif: malformed header")

var exifPrefix = []byte("Exif\x00\x00")

// TIFF entry value types.
const (
	typeByte      = 1
	typeASCII     = 2
	typeShort     = 3
	typeLong      = 4
	typeRational  = 5
	typeSByte     = 6
	typeUndefined = 7
	typeSShort    = 8
	typeSLong     = 9
	typeSRational = 10
)

var typeSizes = map[uint16]uint32{
	typeByte:      1,
	typeASCII:     1,
	typeShort:     2,
	typeLong:      4,
	typeRational:  8,
	typeSByte:     1,
	typeUndefined: 1,
	typeSShort:    2,
	typeSLong:     4,
	typeSRational: 8,
}

// Data holds decoded tag values grouped by sub-directory. Values are
// string, int64, float64, []byte, or slices of those for multi-count tags.
type Data struct {
	Image map[string]any
	Photo map[string]any
	GPS   map[string]any
	Iop   map[string]any
}

type decoder struct {
	buf   []byte
	order binary.ByteOrder
}

// Decode parses a raw EXIF byte block, optionally prefixed with the
// "Exif\0\0" container header.
func Decode(buf []byte) (*Data, error) {
	if bytes.HasPrefix(buf, exifPrefix) {
		buf = buf[len(exifPrefix):]
	}
	if len(buf) < 8 {
		return nil, ErrMalformed
	}

	var order binary.ByteOrder
	switch {
	case buf[0] == 'I' && buf[1] == 'I':
		order = binary.LittleEndian
	case buf[0] == 'M' && buf[1] == 'M':
		order = binary.BigEndian
	default:
		return nil, ErrMalformed
	}
	if order.Uint16(buf[2:4]) != 0x002A {
		return nil, ErrMalformed
	}

	d := &decoder{buf: buf, order: order}
	data := &Data{}
	data.Image = d.parseIFD(d.order.Uint32(buf[4:8]), imageTags)

	if off, ok := pointerValue(data.Image, "ExifTag"); ok {
		data.Photo = d.parseIFD(off, photoTags)
		delete(data.Image, "ExifTag")
	}
	if off, ok := pointerValue(data.Image, "GPSTag"); ok {
		data.GPS = d.parseIFD(off, gpsTags)
		delete(data.Image, "GPSTag")
	}
	if data.Photo != nil {
		if off, ok := pointerValue(data.Photo, "InteroperabilityTag"); ok {
			data.Iop = d.parseIFD(off, iopTags)
			delete(data.Photo, "InteroperabilityTag")
		}
	}
	return data, nil
}

func pointerValue(dir map[string]any, name string) (uint32, bool) {
	v, ok := dir[name].(int64)
	if !ok || v < 0 {
		return 0, false
	}
	return uint32(v), true
}

// parseIFD walks one directory of 12-byte entries. Entries that point
// outside the buffer are skipped rather than failing the decode.
func (d *decoder) parseIFD(offset uint32, table map[uint16]string) map[string]any {
	out := make(map[string]any)
	end := uint64(offset) + 2
	if end > uint64(len(d.buf)) {
		return out
	}
	count := uint64(d.order.Uint16(d.buf[offset : offset+2]))

	for i := uint64(0); i < count; i++ {
		entry := uint64(offset) + 2 + i*12
		if entry+12 > uint64(len(d.buf)) {
			break
		}
		e := d.buf[entry : entry+12]
		tagID := d.order.Uint16(e[0:2])
		name, known := table[tagID]
		if !known {
			continue
		}
		typ := d.order.Uint16(e[2:4])
		n := d.order.Uint32(e[4:8])

		unit, ok := typeSizes[typ]
		if !ok || n == 0 {
			continue
		}
		size := uint64(unit) * uint64(n)

		var value []byte
		if size <= 4 {
			value = e[8 : 8+size]
		} else {
			valOff := uint64(d.order.Uint32(e[8:12]))
			if valOff+size > uint64(len(d.buf)) {
				continue
			}
			value = d.buf[valOff : valOff+size]
		}

		if v, ok := d.decodeValue(typ, n, value); ok {
			out[name] = v
		}
	}
	return out
}

func (d *decoder) decodeValue(typ uint16, count uint32, raw []byte) (any, bool) {
	switch typ {
	case typeASCII:
		return string(bytes.TrimRight(raw, "\x00")), true
	case typeUndefined:
		v := make([]byte, len(raw))
		copy(v, raw)
		return v, true
	}

	ints := make([]int64, 0, count)
	floats := make([]float64, 0, count)
	unit := typeSizes[typ]
	for i := uint32(0); i < count; i++ {
		v := raw[uint32(unit)*i : uint32(unit)*(i+1)]
		switch typ {
		case typeByte:
			ints = append(ints, int64(v[0]))
		case typeSByte:
			ints = append(ints, int64(int8(v[0])))
		case typeShort:
			ints = append(ints, int64(d.order.Uint16(v)))
		case typeSShort:
			ints = append(ints, int64(int16(d.order.Uint16(v))))
		case typeLong:
			ints = append(ints, int64(d.order.Uint32(v)))
		case typeSLong:
			ints = append(ints, int64(int32(d.order.Uint32(v))))
		case typeRational:
			num := d.order.Uint32(v[0:4])
			den := d.order.Uint32(v[4:8])
			if den == 0 {
				return nil, false
			}
			floats = append(floats, float64(num)/float64(den))
		case typeSRational:
			num := int32(d.order.Uint32(v[0:4]))
			den := int32(d.order.Uint32(v[4:8]))
			if den == 0 {
				return nil, false
			}
			floats = append(floats, float64(num)/float64(den))
		default:
			return nil, false
		}
	}

	if len(floats) > 0 {
		if len(floats) == 1 {
			return floats[0], true
		}
		return floats, true
	}
	if len(ints) == 1 {
		return ints[0], true
	}
	return ints, true
}
