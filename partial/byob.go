package partial

import (
	"context"
	"io"
)

// byobVariant adapts a source that implements byobSource. Since ReadInto is already bounded to the caller's
// buffer, there is no chunk larger than requested to retain between calls, so byobVariant carries no leftover
// state at all: every LimitedRead is exactly one ReadInto call against a freshly sized slice.
type byobVariant struct {
	src byobSource
}

func newByobVariant(src byobSource) *byobVariant {
	return &byobVariant{src: src}
}

func (v *byobVariant) limitedRead(_ context.Context, max int) ([]byte, error) {
	p := make([]byte, max)
	n, err := v.src.ReadInto(p)
	if n == 0 {
		if err == nil {
			return nil, io.ErrNoProgress
		}
		return nil, err
	}
	p = p[:n]
	if err != nil && err != io.EOF {
		return p, err
	}
	return p, nil
}

// skipScratchSize bounds the pooled buffer skipAmount recycles across calls: small enough that skipping never
// costs more than this much memory regardless of n, unlike limitedRead's per-call allocation sized to the caller's
// own request.
const skipScratchSize = 2048

func (v *byobVariant) skipAmount(_ context.Context, n int) error {
	buf := getBuffer()
	defer putBuffer(buf)

	if cap(buf.B) < skipScratchSize {
		buf.B = make([]byte, skipScratchSize)
	} else {
		buf.B = buf.B[:skipScratchSize]
	}

	for n > 0 {
		chunk := skipScratchSize
		if chunk > n {
			chunk = n
		}

		m, err := v.src.ReadInto(buf.B[:chunk])
		n -= m
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if m == 0 {
			return io.ErrNoProgress
		}
	}
	return nil
}

func (v *byobVariant) cancel(error) {
	if c, ok := v.src.(io.Closer); ok {
		_ = c.Close()
	}
}
