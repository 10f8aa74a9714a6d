// Package deflateraw adapts a raw DEFLATE byte stream (as stored in a zip entry's body, method 8, with no
// surrounding container) into the gzip framing that compress/gzip expects, so a caller that only knows how to
// consume gzip streams can still decode zip-flavored DEFLATE data. The zip format and the gzip format both wrap
// the same raw DEFLATE bitstream, the only difference being the 10-byte header and 8-byte trailer compress/gzip
// insists on.
package deflateraw

import (
	"bytes"
	"encoding/binary"
	"io"
)

const (
	gzipHeaderSize  = 10
	gzipTrailerSize = 8
)

var gzipHeader = [gzipHeaderSize]byte{0x1f, 0x8b, 8, 0, 0, 0, 0, 0, 0, 0xff}

// GzipReader wraps body (a raw DEFLATE byte stream) with a synthetic gzip header and trailer, so that
// compress/gzip.NewReader can decode it. crc32 and size are the entry's already-known CRC-32 checksum and
// uncompressed size, taken verbatim from the zip header or data descriptor, since deflateraw has no way to compute
// them ahead of the unread body.
func GzipReader(body io.Reader, crc32 uint32, size uint64) io.Reader {
	trailer := make([]byte, gzipTrailerSize)
	binary.LittleEndian.PutUint32(trailer[0:4], crc32)
	binary.LittleEndian.PutUint32(trailer[4:8], uint32(size))

	return io.MultiReader(
		bytes.NewReader(gzipHeader[:]),
		body,
		bytes.NewReader(trailer),
	)
}
