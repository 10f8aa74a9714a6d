// Package extrafield decodes and encodes the TLV (tag, length, value) records packed into a zip local or central
// directory file header's "extra field" blob. Only the two records zipstream cares about are modelled: the ZIP64
// record (tag 0x0001) and the extended timestamp record (tag 0x5455); every other tag is skipped over and
// preserved verbatim by Decode's Unknown field so callers that only care about these two never lose the rest.
package extrafield

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidExtraField is returned when a TLV record's declared length runs past the end of the extra field blob,
// or a record recognized by tag has a length inconsistent with its own fixed layout.
var ErrInvalidExtraField = errors.New("extrafield: invalid extra field record")

const (
	tagZip64      uint16 = 0x0001
	tagTimestamps uint16 = 0x5455
)

// Zip64 is the decoded form of the ZIP64 extended information extra field (tag 0x0001).
//
// Per the format, only the fields that overflowed their 32-bit counterpart in the fixed header are present, and
// they appear in a fixed order: UncompressedSize, then CompressedSize, then LocalHeaderOffset. Decode surfaces
// exactly the fields that were present; a zero value for a field the record did not carry is indistinguishable
// from an explicit zero, so callers must consult the surrounding header's 32-bit fields to know which apply.
type Zip64 struct {
	UncompressedSize  *uint64
	CompressedSize    *uint64
	LocalHeaderOffset *uint64
}

// Timestamps is the decoded form of the extended timestamp extra field (tag 0x5455) as commonly written by Info-
// ZIP. Each field is nil if the corresponding flag bit was not set in the record.
type Timestamps struct {
	Modify *time.Time
	Access *time.Time
	Create *time.Time
}

// Fields is the result of decoding an extra field blob.
type Fields struct {
	Zip64      *Zip64
	Timestamps *Timestamps
	// Unknown holds every TLV record whose tag was not recognized, in encounter order, each value still framed as
	// tag+length+data so a writer that round-trips an entry's extra field can reproduce it byte for byte.
	Unknown [][]byte
}

// Decode parses data (the raw extra field blob of a local or central directory file header) into Fields.
//
// want tells Decode which ZIP64 fields to expect, matching the convention that a ZIP64 record omits
// any field whose 32-bit counterpart in the fixed header was not already the 0xFFFFFFFF sentinel. Pass
// Zip64Fields with exactly the sentinel-valued fields set to true.
func Decode(data []byte, want Zip64Fields) (Fields, error) {
	var fields Fields

	for len(data) >= 4 {
		tag := binary.LittleEndian.Uint16(data[0:2])
		size := binary.LittleEndian.Uint16(data[2:4])
		if int(size) > len(data)-4 {
			return fields, fmt.Errorf("%w: tag 0x%04x declares length %d past end of blob", ErrInvalidExtraField, tag, size)
		}

		record := data[4 : 4+int(size)]
		raw := data[0 : 4+int(size)]

		switch tag {
		case tagZip64:
			z, err := decodeZip64(record, want)
			if err != nil {
				return fields, err
			}
			fields.Zip64 = z
		case tagTimestamps:
			ts, err := decodeTimestamps(record)
			if err != nil {
				return fields, err
			}
			fields.Timestamps = ts
		default:
			fields.Unknown = append(fields.Unknown, append([]byte(nil), raw...))
		}

		data = data[4+int(size):]
	}

	return fields, nil
}

// Zip64Fields tells Decode which ZIP64 fields are present (EncodeZip64 instead writes whichever Zip64 fields are
// non-nil), mirroring which of the fixed header's
// 32-bit counterparts were set to the 0xFFFFFFFF sentinel.
type Zip64Fields struct {
	UncompressedSize  bool
	CompressedSize    bool
	LocalHeaderOffset bool
}

// Any reports whether at least one field is requested.
func (f Zip64Fields) Any() bool {
	return f.UncompressedSize || f.CompressedSize || f.LocalHeaderOffset
}

func decodeZip64(record []byte, want Zip64Fields) (*Zip64, error) {
	need := 0
	if want.UncompressedSize {
		need += 8
	}
	if want.CompressedSize {
		need += 8
	}
	if want.LocalHeaderOffset {
		need += 8
	}
	if len(record) < need {
		return nil, fmt.Errorf("%w: zip64 record too short: got %d bytes, need at least %d", ErrInvalidExtraField, len(record), need)
	}

	z := &Zip64{}
	r := bytes.NewReader(record)

	if want.UncompressedSize {
		var v uint64
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidExtraField, err)
		}
		z.UncompressedSize = &v
	}
	if want.CompressedSize {
		var v uint64
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidExtraField, err)
		}
		z.CompressedSize = &v
	}
	if want.LocalHeaderOffset {
		var v uint64
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidExtraField, err)
		}
		z.LocalHeaderOffset = &v
	}

	return z, nil
}

func decodeTimestamps(record []byte) (*Timestamps, error) {
	if len(record) < 1 {
		return nil, fmt.Errorf("%w: timestamps record missing flag byte", ErrInvalidExtraField)
	}

	flags := record[0]
	rest := record[1:]
	ts := &Timestamps{}

	readOne := func() (*time.Time, error) {
		if len(rest) < 4 {
			return nil, fmt.Errorf("%w: timestamps record truncated", ErrInvalidExtraField)
		}
		var secs int32
		if err := binary.Read(bytes.NewReader(rest[:4]), binary.LittleEndian, &secs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidExtraField, err)
		}
		rest = rest[4:]
		t := time.Unix(int64(secs), 0).UTC()
		return &t, nil
	}

	var err error
	if flags&0x1 != 0 {
		if ts.Modify, err = readOne(); err != nil {
			return nil, err
		}
	}
	if flags&0x2 != 0 {
		if ts.Access, err = readOne(); err != nil {
			return nil, err
		}
	}
	if flags&0x4 != 0 {
		if ts.Create, err = readOne(); err != nil {
			return nil, err
		}
	}

	return ts, nil
}

// EncodeZip64 serializes z back into a tag 0x0001 TLV record, writing only the fields that are non-nil, in the
// fixed order UncompressedSize, CompressedSize, LocalHeaderOffset.
func EncodeZip64(z Zip64) []byte {
	var body bytes.Buffer
	if z.UncompressedSize != nil {
		_ = binary.Write(&body, binary.LittleEndian, *z.UncompressedSize)
	}
	if z.CompressedSize != nil {
		_ = binary.Write(&body, binary.LittleEndian, *z.CompressedSize)
	}
	if z.LocalHeaderOffset != nil {
		_ = binary.Write(&body, binary.LittleEndian, *z.LocalHeaderOffset)
	}

	return encodeRecord(tagZip64, body.Bytes())
}

// EncodeTimestamps serializes ts back into a tag 0x5455 TLV record, setting only the flag bits for non-nil fields.
func EncodeTimestamps(ts Timestamps) []byte {
	var flags byte
	var body bytes.Buffer

	if ts.Modify != nil {
		flags |= 0x1
	}
	if ts.Access != nil {
		flags |= 0x2
	}
	if ts.Create != nil {
		flags |= 0x4
	}
	body.WriteByte(flags)

	for _, t := range []*time.Time{ts.Modify, ts.Access, ts.Create} {
		if t != nil {
			_ = binary.Write(&body, binary.LittleEndian, int32(t.Unix()))
		}
	}

	return encodeRecord(tagTimestamps, body.Bytes())
}

func encodeRecord(tag uint16, body []byte) []byte {
	out := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint16(out[0:2], tag)
	binary.LittleEndian.PutUint16(out[2:4], uint16(len(body)))
	copy(out[4:], body)
	return out
}
