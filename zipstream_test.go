package zipstream

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"github.com/nguyengg/zipstream/extrafield"
	"github.com/stretchr/testify/assert"
)

func TestWriterReader_RoundTrip_StoredAndDeflated(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	ctx := context.Background()

	storedContent := []byte("hello, stored world")
	assert.NoError(t, w.WriteEntry(ctx, WriteFileEntry{
		Name: "stored.txt",
		Body: StoredBody{
			Size:   uint64(len(storedContent)),
			CRC32:  crc32Of(storedContent),
			Reader: bytes.NewReader(storedContent),
		},
	}))

	deflatedContent, compressed := deflateBytes(t, []byte("hello, deflated world, repeated repeated repeated"))
	assert.NoError(t, w.WriteEntry(ctx, WriteFileEntry{
		Name: "deflated.txt",
		Body: DeflatedBody{
			UncompressedSize: uint64(len(deflatedContent)),
			CompressedSize:   uint64(len(compressed)),
			CRC32:            crc32Of(deflatedContent),
			Reader:           bytes.NewReader(compressed),
		},
	}))

	assert.NoError(t, w.WriteEntry(ctx, WriteDirectoryEntry{Name: "subdir"}))

	assert.NoError(t, w.Close(ctx))

	r := NewReader(bytes.NewReader(buf.Bytes()))

	var names []string
	for entry, err := range r.Entries(ctx) {
		assert.NoError(t, err)
		switch e := entry.(type) {
		case FileEntry:
			names = append(names, e.Name)
			body, err := e.Body.Stream(ctx)
			assert.NoError(t, err)
			got, err := io.ReadAll(body)
			assert.NoError(t, err)
			switch e.Name {
			case "stored.txt":
				assert.Equal(t, storedContent, got)
			case "deflated.txt":
				assert.Equal(t, deflatedContent, got)
			}
		case DirectoryEntry:
			names = append(names, e.Name)
			assert.Equal(t, "subdir/", e.Name)
		}
	}

	assert.Equal(t, []string{"stored.txt", "deflated.txt", "subdir/"}, names)
}

func TestReader_ErrBodyNotConsumed(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	ctx := context.Background()

	content := []byte("some content")
	assert.NoError(t, w.WriteEntry(ctx, WriteFileEntry{
		Name: "a.txt",
		Body: StoredBody{Size: uint64(len(content)), CRC32: crc32Of(content), Reader: bytes.NewReader(content)},
	}))
	assert.NoError(t, w.WriteEntry(ctx, WriteFileEntry{
		Name: "b.txt",
		Body: StoredBody{Size: uint64(len(content)), CRC32: crc32Of(content), Reader: bytes.NewReader(content)},
	}))
	assert.NoError(t, w.Close(ctx))

	r := NewReader(bytes.NewReader(buf.Bytes()))

	count := 0
	var lastErr error
	for _, err := range r.Entries(ctx) {
		count++
		lastErr = err
		if err != nil {
			break
		}
		// Deliberately never touch entry.Body.
	}

	assert.Equal(t, 2, count)
	assert.ErrorIs(t, lastErr, ErrBodyNotConsumed)
}

func TestReader_Autodrain(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	ctx := context.Background()

	content := []byte("drain me")
	assert.NoError(t, w.WriteEntry(ctx, WriteFileEntry{
		Name: "a.txt",
		Body: StoredBody{Size: uint64(len(content)), CRC32: crc32Of(content), Reader: bytes.NewReader(content)},
	}))
	assert.NoError(t, w.Close(ctx))

	r := NewReader(bytes.NewReader(buf.Bytes()))

	for entry, err := range r.Entries(ctx) {
		assert.NoError(t, err)
		fe := entry.(FileEntry)
		assert.NoError(t, fe.Body.Autodrain(ctx))
	}
}

func TestWriter_OmitCentralDirectory(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, WithOmitCentralDirectory())
	ctx := context.Background()

	content := []byte("no central directory here")
	assert.NoError(t, w.WriteEntry(ctx, WriteFileEntry{
		Name: "a.txt",
		Body: StoredBody{Size: uint64(len(content)), CRC32: crc32Of(content), Reader: bytes.NewReader(content)},
	}))
	assert.NoError(t, w.Close(ctx))

	// no central directory signature should appear anywhere in the output.
	assert.False(t, bytes.Contains(buf.Bytes(), []byte{0x50, 0x4b, 0x01, 0x02}))

	r := NewReader(bytes.NewReader(buf.Bytes()))
	var got []byte
	for entry, err := range r.Entries(ctx) {
		assert.NoError(t, err)
		fe := entry.(FileEntry)
		body, err := fe.Body.Stream(ctx)
		assert.NoError(t, err)
		got, err = io.ReadAll(body)
		assert.NoError(t, err)
	}
	assert.Equal(t, content, got)
}

func TestWriter_FilenameTooLong(t *testing.T) {
	w := NewWriter(&bytes.Buffer{})
	longName := strings.Repeat("x", 1<<16)
	err := w.WriteEntry(context.Background(), WriteDirectoryEntry{Name: longName})
	assert.ErrorIs(t, err, ErrFilenameTooLong)
}

func TestReader_CentralDirectoryStopsIterationCleanly(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	ctx := context.Background()
	assert.NoError(t, w.WriteEntry(ctx, WriteDirectoryEntry{Name: "only"}))
	assert.NoError(t, w.Close(ctx))

	r := NewReader(bytes.NewReader(buf.Bytes()))
	var gotErr error
	count := 0
	for _, err := range r.Entries(ctx) {
		count++
		gotErr = err
	}
	assert.Equal(t, 1, count)
	assert.NoError(t, gotErr)
}

func TestReader_BadSignature(t *testing.T) {
	garbage := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29}
	r := NewReader(bytes.NewReader(garbage))

	var gotErr error
	for _, err := range r.Entries(context.Background()) {
		gotErr = err
	}
	assert.ErrorIs(t, gotErr, ErrBadSignature)
}

// rawEntryBytes hand-assembles one local file header plus name, ZIP64 extra field, and body, bypassing Writer
// entirely since WriteBody only ever emits method 0 or 8: this is the only way to get an unrecognized method onto
// the wire for a test.
func rawEntryBytes(name string, method uint16, content []byte) []byte {
	uncompressedSize, compressedSize := uint64(len(content)), uint64(len(content))
	extra := buildExtraField(extrafield.Zip64{UncompressedSize: &uncompressedSize, CompressedSize: &compressedSize}, nil, false)

	var out []byte
	out = append(out, marshalLocalHeader(method, crc32Of(content), len(name), len(extra))...)
	out = append(out, []byte(name)...)
	out = append(out, extra...)
	out = append(out, content...)
	return out
}

func TestReader_UnknownCompressionMethodYieldsEntryAndAutodrains(t *testing.T) {
	content := []byte("not stored, not deflated")
	raw := rawEntryBytes("odd.bin", 99, content)

	r := NewReader(bytes.NewReader(raw))

	count := 0
	for entry, err := range r.Entries(context.Background()) {
		assert.NoError(t, err)
		fe := entry.(FileEntry)
		assert.Equal(t, uint16(99), fe.Method)
		assert.NoError(t, fe.Body.Autodrain(context.Background()))
		count++
	}
	assert.Equal(t, 1, count)
}

func TestReader_UnknownCompressionMethodStreamFails(t *testing.T) {
	content := []byte("not stored, not deflated")
	raw := rawEntryBytes("odd.bin", 99, content)

	r := NewReader(bytes.NewReader(raw))

	for entry, err := range r.Entries(context.Background()) {
		assert.NoError(t, err)
		fe := entry.(FileEntry)
		_, err = fe.Body.Stream(context.Background())
		assert.ErrorIs(t, err, ErrUnknownCompressionMethod)
	}
}

// TestReader_Zip64WantsBothSizesWhenOnlyOneFixedFieldIsSentinel covers a third-party writer that only sets the
// 32-bit sentinel on one of the two size fields while still writing a ZIP64 record carrying both actual sizes
// together, as real archives in the wild do.
func TestReader_Zip64WantsBothSizesWhenOnlyOneFixedFieldIsSentinel(t *testing.T) {
	name := "asym.txt"
	content := []byte("only compressed size field is sentineled")
	uncompressedSize, compressedSize := uint64(len(content)), uint64(len(content))

	extra := buildExtraField(extrafield.Zip64{UncompressedSize: &uncompressedSize, CompressedSize: &compressedSize}, nil, false)

	h := make([]byte, localFileHeaderSize)
	binary.LittleEndian.PutUint32(h[0:4], sigLocalFileHeader)
	binary.LittleEndian.PutUint16(h[4:6], versionNeeded)
	binary.LittleEndian.PutUint16(h[6:8], 0)
	binary.LittleEndian.PutUint16(h[8:10], methodStored)
	binary.LittleEndian.PutUint16(h[10:12], 0)
	binary.LittleEndian.PutUint16(h[12:14], 0)
	binary.LittleEndian.PutUint32(h[14:18], crc32Of(content))
	// Only CompressedSize carries the ZIP64 sentinel; UncompressedSize holds the real (small) value directly.
	binary.LittleEndian.PutUint32(h[18:22], 0xffffffff)
	binary.LittleEndian.PutUint32(h[22:26], uint32(len(content)))
	binary.LittleEndian.PutUint16(h[26:28], uint16(len(name)))
	binary.LittleEndian.PutUint16(h[28:30], uint16(len(extra)))

	var raw []byte
	raw = append(raw, h...)
	raw = append(raw, []byte(name)...)
	raw = append(raw, extra...)
	raw = append(raw, content...)

	r := NewReader(bytes.NewReader(raw))

	for entry, err := range r.Entries(context.Background()) {
		assert.NoError(t, err)
		fe := entry.(FileEntry)
		assert.Equal(t, uncompressedSize, fe.UncompressedSize)
		assert.Equal(t, compressedSize, fe.CompressedSize)
		assert.NoError(t, fe.Body.Autodrain(context.Background()))
	}
}
