// Package exactbytes provides a pass-through io.Reader that enforces a declared byte count against what its
// upstream actually produces, surfacing a mismatch as an error instead of silently truncating or padding.
package exactbytes

import (
	"errors"
	"fmt"
	"io"
)

// ErrByteCountMismatch is returned once the number of bytes actually read from upstream is known to differ from
// the declared size: either upstream ended early, or it kept producing bytes past the declared size.
var ErrByteCountMismatch = errors.New("exactbytes: actual byte count does not match declared size")

// Reader wraps an io.Reader with a declared size. Read behaves like the wrapped reader's Read until either the
// declared size is reached or upstream ends before it. Once the declared size is reached, the next Read probes
// upstream for one more byte: it returns io.EOF if upstream is at its end, and ErrByteCountMismatch if upstream still
// has bytes. If upstream ends before the declared size, Read returns ErrByteCountMismatch instead of upstream's
// io.EOF.
type Reader struct {
	src      io.Reader
	size     int64
	read     int64
	overflow bool
}

// New wraps src, enforcing that exactly size bytes can be read from it.
func New(src io.Reader, size int64) *Reader {
	return &Reader{src: src, size: size}
}

// N reports the number of bytes read so far.
func (r *Reader) N() int64 { return r.read }

// Size reports the declared size.
func (r *Reader) Size() int64 { return r.size }

func (r *Reader) Read(p []byte) (int, error) {
	if r.overflow {
		return 0, fmt.Errorf("%w: read more than declared %d bytes", ErrByteCountMismatch, r.size)
	}

	remaining := r.size - r.read
	if remaining <= 0 {
		// Declared size already satisfied. Probe upstream for one more byte to detect overflow; a well-formed
		// source should be at its own boundary here and return io.EOF immediately.
		var probe [1]byte
		if n, err := r.src.Read(probe[:]); n > 0 {
			r.overflow = true
			return 0, fmt.Errorf("%w: read more than declared %d bytes", ErrByteCountMismatch, r.size)
		} else if err != nil && err != io.EOF {
			return 0, err
		}
		return 0, io.EOF
	}

	if int64(len(p)) > remaining {
		p = p[:remaining]
	}

	n, err := r.src.Read(p)
	r.read += int64(n)

	if err == io.EOF && r.read < r.size {
		return n, fmt.Errorf("%w: got %d bytes, expected %d", ErrByteCountMismatch, r.read, r.size)
	}

	return n, err
}
