package zipstream

import (
	"compress/flate"
	"context"
	"fmt"
	"io"

	"github.com/nguyengg/zipstream/deflateraw"
	"github.com/nguyengg/zipstream/exactbytes"
	"github.com/nguyengg/zipstream/partial"
)

// Body is the handle a FileEntry carries for its compressed body. Exactly one of Stream or Autodrain must be
// called before the reader's parse loop advances to the next entry; the second call on either method fails with
// ErrBodyAlreadyUsed.
type Body struct {
	pr               *partial.Reader
	method           uint16
	crc32            uint32
	uncompressedSize uint64
	compressedSize   uint64

	used bool
	sub  *partial.Substream
}

// Stream opens the decoded body: method 0 (stored) is returned pass-through, method 8 (deflate) is wrapped in
// compress/flate. Any other method fails with ErrUnknownCompressionMethod after the body's bytes have been skipped,
// so the next Entries iteration can proceed. The returned io.Reader must be read to io.EOF (or the Body abandoned via its substream's own
// cancellation, which this package does not expose directly — callers that want to bail out early should simply
// stop reading and let the next Entries iteration report ErrBodyNotConsumed) before the next entry is requested.
func (b *Body) Stream(ctx context.Context) (io.Reader, error) {
	if b.used {
		return nil, ErrBodyAlreadyUsed
	}
	b.used = true

	sub, err := b.pr.StreamAmount(ctx, int64(b.compressedSize))
	if err != nil {
		return nil, fmt.Errorf("zipstream: open body error: %w", err)
	}
	b.sub = sub

	exact := exactbytes.New(sub, int64(b.compressedSize))

	switch b.method {
	case methodStored:
		return exact, nil
	case methodDeflate:
		return flate.NewReader(exact), nil
	default:
		if err = sub.Cancel(ctx); err != nil {
			return nil, fmt.Errorf("zipstream: drain body error: %w", err)
		}
		return nil, fmt.Errorf("zipstream: method %d: %w", b.method, ErrUnknownCompressionMethod)
	}
}

// StreamGzipFramed behaves like Stream for a deflated entry, except the raw-DEFLATE bytes are wrapped in a
// synthetic gzip header and trailer (via deflateraw.GzipReader) instead of being decompressed, for a downstream
// consumer that only speaks gzip framing. It fails with ErrUnknownCompressionMethod for a stored entry, which has
// no DEFLATE bitstream to frame.
func (b *Body) StreamGzipFramed(ctx context.Context) (io.Reader, error) {
	if b.used {
		return nil, ErrBodyAlreadyUsed
	}
	if b.method != methodDeflate {
		return nil, fmt.Errorf("zipstream: method %d: %w", b.method, ErrUnknownCompressionMethod)
	}
	b.used = true

	sub, err := b.pr.StreamAmount(ctx, int64(b.compressedSize))
	if err != nil {
		return nil, fmt.Errorf("zipstream: open body error: %w", err)
	}
	b.sub = sub

	exact := exactbytes.New(sub, int64(b.compressedSize))
	return deflateraw.GzipReader(exact, b.crc32, b.uncompressedSize), nil
}

// Autodrain discards the body without decoding it.
func (b *Body) Autodrain(ctx context.Context) error {
	if b.used {
		return ErrBodyAlreadyUsed
	}
	b.used = true

	sub, err := b.pr.StreamAmount(ctx, int64(b.compressedSize))
	if err != nil {
		return fmt.Errorf("zipstream: autodrain error: %w", err)
	}
	b.sub = sub
	return sub.Cancel(ctx)
}

// done returns a channel that closes once the body has resolved: consumed to completion by Stream/StreamGzipFramed,
// or discarded by Autodrain. It is nil (treated as "never done") until one of those is called.
func (b *Body) done() <-chan struct{} {
	if b.sub == nil {
		return nil
	}
	return b.sub.Done()
}
