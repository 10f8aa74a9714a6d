package partial

import (
	"context"
	"io"

	"github.com/valyala/bytebufferpool"
)

// defaultChunkSize is how much the Default variant asks its upstream io.Reader for on each underlying Read call,
// independent of what the caller asked LimitedRead for. Sized the same as s3reader's buffered GetObject window so
// an S3-backed source and a plain io.Reader source behave similarly under the hood.
const defaultChunkSize = 64 * 1024

// defaultVariant adapts a plain io.Reader. Since io.Reader.Read may return fewer bytes than requested even when
// more are available, defaultVariant buffers one chunk at a time and serves LimitedRead calls out of that chunk,
// issuing a new upstream Read only once the chunk is exhausted. This keeps the number of upstream Read calls
// bounded regardless of how small individual LimitedRead requests are.
type defaultVariant struct {
	src io.Reader
	buf *bytebufferpool.ByteBuffer
	pos int
	eof bool
	err error
}

func newDefaultVariant(src io.Reader) *defaultVariant {
	return &defaultVariant{src: src}
}

func (v *defaultVariant) limitedRead(_ context.Context, max int) ([]byte, error) {
	if v.buf != nil && v.pos < len(v.buf.B) {
		return v.takeFromBuffer(max), nil
	}
	v.releaseBuffer()

	if v.eof {
		if v.err != nil {
			return nil, v.err
		}
		return nil, io.EOF
	}

	size := defaultChunkSize
	if max > size {
		size = max
	}

	buf := getBuffer()
	if cap(buf.B) < size {
		buf.B = make([]byte, size)
	} else {
		buf.B = buf.B[:size]
	}

	n, err := v.src.Read(buf.B)
	buf.B = buf.B[:n]

	if n == 0 {
		putBuffer(buf)
		if err == nil {
			return nil, io.ErrNoProgress
		}
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, err
	}

	v.buf, v.pos = buf, 0
	if err != nil && err != io.EOF {
		// Upstream delivered bytes alongside a non-EOF error. Hand the bytes back now; the error resurfaces on the
		// next call once this chunk is drained.
		v.eof, v.err = true, err
	} else if err == io.EOF {
		v.eof = true
	}

	return v.takeFromBuffer(max), nil
}

func (v *defaultVariant) takeFromBuffer(max int) []byte {
	remaining := v.buf.B[v.pos:]
	if len(remaining) > max {
		remaining = remaining[:max]
	}
	v.pos += len(remaining)
	return remaining
}

func (v *defaultVariant) releaseBuffer() {
	if v.buf != nil && v.pos >= len(v.buf.B) {
		putBuffer(v.buf)
		v.buf = nil
		v.pos = 0
	}
}

func (v *defaultVariant) skipAmount(ctx context.Context, n int) error {
	for n > 0 {
		b, err := v.limitedRead(ctx, n)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		n -= len(b)
	}
	return nil
}

func (v *defaultVariant) cancel(error) {
	if v.buf != nil {
		putBuffer(v.buf)
		v.buf = nil
	}
	if c, ok := v.src.(io.Closer); ok {
		_ = c.Close()
	}
}
