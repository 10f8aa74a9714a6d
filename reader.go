package zipstream

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/nguyengg/zipstream/extrafield"
	"github.com/nguyengg/zipstream/partial"
)

// Reader drives a *partial.Reader to parse an archive as a forward-only sequence of entries. It holds no
// archive-wide state beyond the *partial.Reader and the context.Context passed to Entries.
type Reader struct {
	pr *partial.Reader
}

// NewReader wraps src into a fresh *partial.Reader and returns a Reader over it.
func NewReader(src io.Reader) *Reader {
	return &Reader{pr: partial.FromStream(src)}
}

// NewReaderFromPartial accepts a *partial.Reader directly, e.g. one already shared across other byte-precise
// readers, or one built from a BYOB-capable source.
func NewReaderFromPartial(pr *partial.Reader) *Reader {
	return &Reader{pr: pr}
}

// Entries returns a lazy, pull-driven sequence of the archive's entries using a Go range-over-func iterator, the
// idiomatic analogue of an asynchronous sequence: range drives it synchronously, but any step below may block on
// an upstream read.
//
// Each yielded FileEntry's Body must be resolved (Body.Stream run to completion, or Body.Autodrain called) before
// the next iteration; otherwise the iterator yields ErrBodyNotConsumed and stops.
func (r *Reader) Entries(ctx context.Context) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		var pendingBody *Body

		fail := func(err error) {
			r.pr.Cancel(err)
			yield(nil, err)
		}

		for {
			if pendingBody != nil {
				switch {
				case !pendingBody.used:
					fail(fmt.Errorf("zipstream: %w", ErrBodyNotConsumed))
					return
				case pendingBody.sub == nil || !pendingBody.sub.IsDone():
					fail(fmt.Errorf("zipstream: body stream left unfinished: %w", ErrBodyNotConsumed))
					return
				}
				pendingBody = nil
			}

			if err := ctx.Err(); err != nil {
				fail(err)
				return
			}

			header, err := r.pr.ReadAmount(ctx, localFileHeaderSize)
			if err != nil {
				if errors.Is(err, partial.ErrReentrant) {
					err = fmt.Errorf("zipstream: %w", ErrBodyNotConsumed)
				} else {
					err = fmt.Errorf("zipstream: read local file header error: %w", err)
				}
				fail(err)
				return
			}
			if len(header) == 0 {
				return
			}
			if len(header) < localFileHeaderSize {
				fail(fmt.Errorf("zipstream: %w", partial.ErrUnexpectedEnd))
				return
			}

			sig := binary.LittleEndian.Uint32(header[0:4])
			switch sig {
			case sigLocalFileHeader:
			case sigCentralDirectory:
				return
			default:
				fail(fmt.Errorf("zipstream: signature 0x%08x: %w", sig, ErrBadSignature))
				return
			}

			lfh, err := unmarshalLocalHeader(header)
			if err != nil {
				fail(err)
				return
			}
			if err = lfh.validate(); err != nil {
				fail(err)
				return
			}

			name, err := r.pr.ReadAmountStrict(ctx, int(lfh.FileNameLength))
			if err != nil {
				fail(fmt.Errorf("zipstream: read filename error: %w", err))
				return
			}

			extra, err := r.pr.ReadAmountStrict(ctx, int(lfh.ExtraFieldLength))
			if err != nil {
				fail(fmt.Errorf("zipstream: read extra field error: %w", err))
				return
			}

			anySentinel := lfh.UncompressedSize == 0xffffffff || lfh.CompressedSize == 0xffffffff
			want := extrafield.Zip64Fields{
				UncompressedSize: anySentinel,
				CompressedSize:   anySentinel,
			}
			fields, err := extrafield.Decode(extra, want)
			if err != nil {
				fail(err)
				return
			}

			uncompressedSize := uint64(lfh.UncompressedSize)
			compressedSize := uint64(lfh.CompressedSize)
			if fields.Zip64 != nil {
				if fields.Zip64.UncompressedSize != nil {
					uncompressedSize = *fields.Zip64.UncompressedSize
				}
				if fields.Zip64.CompressedSize != nil {
					compressedSize = *fields.Zip64.CompressedSize
				}
			}

			entryName := string(name)

			if strings.HasSuffix(entryName, "/") {
				if err = r.pr.SkipAmount(ctx, int(compressedSize)); err != nil {
					fail(fmt.Errorf("zipstream: drain directory entry error: %w", err))
					return
				}
				if !yield(DirectoryEntry{Name: entryName, Timestamps: fields.Timestamps}, nil) {
					r.pr.Cancel(context.Canceled)
					return
				}
				continue
			}

			body := &Body{
				pr:               r.pr,
				method:           lfh.Method,
				crc32:            lfh.CRC32,
				uncompressedSize: uncompressedSize,
				compressedSize:   compressedSize,
			}
			pendingBody = body

			if !yield(FileEntry{
				Name:             entryName,
				Timestamps:       fields.Timestamps,
				UncompressedSize: uncompressedSize,
				CompressedSize:   compressedSize,
				CRC32:            lfh.CRC32,
				Method:           lfh.Method,
				Body:             body,
			}, nil) {
				r.pr.Cancel(context.Canceled)
				return
			}
		}
	}
}
