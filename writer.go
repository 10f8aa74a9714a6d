package zipstream

import (
	"context"
	"fmt"
	"io"

	"github.com/nguyengg/zipstream/exactbytes"
	"github.com/nguyengg/zipstream/extrafield"
)

// Option customises a Writer constructed by NewWriter.
type Option func(*Writer)

// WithOmitCentralDirectory skips accumulating and emitting central-directory-header byte blocks entirely: only
// local file headers and bodies are written. The result remains decodable by Reader but not by a random-access
// decoder, since there is no central directory or end-of-central-directory record to locate entries from.
func WithOmitCentralDirectory() Option {
	return func(w *Writer) {
		w.omitCentralDirectory = true
	}
}

// cdThunk produces, once invoked at Close time, the bytes of one entry's central directory file header (including
// its filename and extra field).
type cdThunk func() []byte

// Writer consumes a sequence of WriteEntry values and produces a byte stream with local headers, bodies, and
// (unless WithOmitCentralDirectory is set) a trailing central directory plus ZIP64 end-of-central-directory
// records. Writer never closes dst itself: whoever opened dst is responsible for closing it, matching this
// repo's convention elsewhere that a component which only writes to a sink does not own its lifecycle.
type Writer struct {
	dst                  io.Writer
	omitCentralDirectory bool
	written              int64
	entryCount           uint64
	thunks               []cdThunk
	err                  error
	closed               bool
}

// NewWriter returns a Writer that writes to dst.
func NewWriter(dst io.Writer, opts ...Option) *Writer {
	w := &Writer{dst: dst}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Writer) fail(err error) error {
	if w.err == nil {
		w.err = err
	}
	return w.err
}

func (w *Writer) write(b []byte) error {
	n, err := w.dst.Write(b)
	w.written += int64(n)
	if err != nil {
		return w.fail(fmt.Errorf("zipstream: write error: %w", err))
	}
	return nil
}

// WriteEntry writes one entry's local file header, filename, extra field, and (for a file) body to dst.
func (w *Writer) WriteEntry(ctx context.Context, entry WriteEntry) error {
	if w.err != nil {
		return w.err
	}
	if w.closed {
		return w.fail(ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		return w.fail(err)
	}

	switch e := entry.(type) {
	case WriteDirectoryEntry:
		return w.writeDirectoryEntry(e)
	case WriteFileEntry:
		return w.writeFileEntry(ctx, e)
	default:
		return w.fail(fmt.Errorf("zipstream: unknown WriteEntry type %T", entry))
	}
}

func (w *Writer) writeDirectoryEntry(e WriteDirectoryEntry) error {
	name := ensureTrailingSlash(e.Name)
	if len(name) >= 1<<16 {
		return w.fail(fmt.Errorf("zipstream: %q: %w", name, ErrFilenameTooLong))
	}

	extra := buildExtraField(extrafield.Zip64{UncompressedSize: u64ptr(0), CompressedSize: u64ptr(0)}, e.Timestamps, false)

	localOffset := w.written
	if err := w.write(marshalLocalHeader(methodStored, 0, len(name), len(extra))); err != nil {
		return err
	}
	if err := w.write([]byte(name)); err != nil {
		return err
	}
	if err := w.write(extra); err != nil {
		return err
	}

	w.entryCount++
	if !w.omitCentralDirectory {
		w.thunks = append(w.thunks, cdThunkFor(name, methodStored, 0, 0, 0, uint64(localOffset), e.Timestamps))
	}
	return nil
}

func (w *Writer) writeFileEntry(ctx context.Context, e WriteFileEntry) error {
	name := e.Name
	if len(name) >= 1<<16 {
		return w.fail(fmt.Errorf("zipstream: %q: %w", name, ErrFilenameTooLong))
	}

	body := e.Body
	method := body.method()
	crc32 := body.crc32()
	uncompressedSize := body.uncompressedSize()
	compressedSize := body.compressedSize()

	extra := buildExtraField(extrafield.Zip64{UncompressedSize: &uncompressedSize, CompressedSize: &compressedSize}, e.Timestamps, false)

	localOffset := w.written
	if err := w.write(marshalLocalHeader(method, crc32, len(name), len(extra))); err != nil {
		return err
	}
	if err := w.write([]byte(name)); err != nil {
		return err
	}
	if err := w.write(extra); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return w.fail(err)
	}

	exact := exactbytes.New(body.reader(), int64(compressedSize))
	n, err := io.Copy(w.dst, exact)
	w.written += n
	if err != nil {
		return w.fail(fmt.Errorf("zipstream: write body error: %w", err))
	}

	w.entryCount++
	if !w.omitCentralDirectory {
		w.thunks = append(w.thunks, cdThunkFor(name, method, crc32, uncompressedSize, compressedSize, uint64(localOffset), e.Timestamps))
	}
	return nil
}

func cdThunkFor(name string, method uint16, crc32 uint32, uncompressedSize, compressedSize, localOffset uint64, ts *extrafield.Timestamps) cdThunk {
	return func() []byte {
		extra := buildExtraField(extrafield.Zip64{
			UncompressedSize:  &uncompressedSize,
			CompressedSize:    &compressedSize,
			LocalHeaderOffset: &localOffset,
		}, ts, true)

		var out []byte
		out = append(out, marshalCDHeader(method, crc32, len(name), len(extra))...)
		out = append(out, []byte(name)...)
		out = append(out, extra...)
		return out
	}
}

// buildExtraField writes the ZIP64 record first, then the extended-timestamp record if any field is set, matching
// this package's fixed write-side ordering.
func buildExtraField(z extrafield.Zip64, ts *extrafield.Timestamps, central bool) []byte {
	var out []byte
	if !central {
		z.LocalHeaderOffset = nil
	}
	out = append(out, extrafield.EncodeZip64(z)...)
	if ts != nil && (ts.Modify != nil || ts.Access != nil || ts.Create != nil) {
		out = append(out, extrafield.EncodeTimestamps(*ts)...)
	}
	return out
}

func ensureTrailingSlash(name string) string {
	if len(name) == 0 || name[len(name)-1] != '/' {
		return name + "/"
	}
	return name
}

func u64ptr(v uint64) *uint64 { return &v }

// Close finalizes the archive: if the central directory is not omitted, it writes every buffered central directory
// header followed by the ZIP64 end-of-central-directory record, its locator, and the plain end-of-central-directory
// record. Close never closes dst.
func (w *Writer) Close(ctx context.Context) error {
	if w.err != nil {
		return w.err
	}
	if w.closed {
		return nil
	}
	w.closed = true

	if w.omitCentralDirectory {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return w.fail(err)
	}

	cdOffset := w.written
	var cdSize int64
	for _, thunk := range w.thunks {
		b := thunk()
		if err := w.write(b); err != nil {
			return err
		}
		cdSize += int64(len(b))
	}

	zip64EOCDROffset := w.written
	if err := w.write(marshalZip64EOCDR(w.entryCount, uint64(cdSize), uint64(cdOffset))); err != nil {
		return err
	}
	if err := w.write(marshalZip64EOCDL(uint64(zip64EOCDROffset))); err != nil {
		return err
	}
	if err := w.write(marshalEOCD()); err != nil {
		return err
	}

	return nil
}
