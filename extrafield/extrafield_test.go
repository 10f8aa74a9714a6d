package extrafield

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestZip64_RoundTrip(t *testing.T) {
	us, cs := uint64(1<<33), uint64(1<<32)
	z := Zip64{UncompressedSize: &us, CompressedSize: &cs}

	encoded := EncodeZip64(z)

	fields, err := Decode(encoded, Zip64Fields{UncompressedSize: true, CompressedSize: true})
	assert.NoError(t, err)
	assert.NotNil(t, fields.Zip64)
	assert.Equal(t, us, *fields.Zip64.UncompressedSize)
	assert.Equal(t, cs, *fields.Zip64.CompressedSize)
}

func TestTimestamps_RoundTrip(t *testing.T) {
	m := time.Unix(1700000000, 0).UTC()
	ts := Timestamps{Modify: &m}

	encoded := EncodeTimestamps(ts)

	fields, err := Decode(encoded, Zip64Fields{})
	assert.NoError(t, err)
	assert.NotNil(t, fields.Timestamps)
	assert.Equal(t, m, *fields.Timestamps.Modify)
	assert.Nil(t, fields.Timestamps.Access)
	assert.Nil(t, fields.Timestamps.Create)
}

func TestDecode_PreservesUnknownRecords(t *testing.T) {
	unknown := encodeRecord(0x9999, []byte{1, 2, 3})
	m := time.Unix(1700000000, 0).UTC()
	ts := EncodeTimestamps(Timestamps{Modify: &m})

	blob := append(append([]byte{}, unknown...), ts...)

	fields, err := Decode(blob, Zip64Fields{})
	assert.NoError(t, err)
	assert.NotNil(t, fields.Timestamps)
	assert.Len(t, fields.Unknown, 1)
	assert.Equal(t, unknown, fields.Unknown[0])
}

func TestDecode_TruncatedRecord(t *testing.T) {
	_, err := Decode([]byte{0x01, 0x00, 0xFF, 0x00}, Zip64Fields{})
	assert.ErrorIs(t, err, ErrInvalidExtraField)
}

func TestDecode_Zip64TooShort(t *testing.T) {
	blob := encodeRecord(tagZip64, []byte{1, 2, 3})
	_, err := Decode(blob, Zip64Fields{UncompressedSize: true})
	assert.ErrorIs(t, err, ErrInvalidExtraField)
}

func TestDecode_TrailingPaddingUnderFourBytes(t *testing.T) {
	unknown := encodeRecord(0x9999, []byte{1, 2, 3})
	blob := append(append([]byte{}, unknown...), 0x00, 0x00, 0x00)

	fields, err := Decode(blob, Zip64Fields{})
	assert.NoError(t, err)
	assert.Len(t, fields.Unknown, 1)
	assert.Equal(t, unknown, fields.Unknown[0])
}
