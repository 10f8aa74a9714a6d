// Package partial converts a chunk-granular upstream byte source into the byte-precise read primitives that the
// zipstream engine needs: read exactly N bytes, read up to N bytes, skip N bytes, and hand the next N bytes to a
// downstream consumer as its own io.Reader.
//
// A Reader owns exactly one upstream handle. It is not safe for concurrent use: callers must not issue a second
// LimitedRead, ReadAmount, ReadAmountStrict, SkipAmount, or StreamAmount call while a previous one (or the
// *Substream it returned) has not resolved.
package partial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"
)

// ErrUnexpectedEnd is returned by ReadAmountStrict when upstream ends before the requested number of bytes is
// delivered.
var ErrUnexpectedEnd = errors.New("unexpected end of stream")

// ErrReentrant is returned (detected via the Reader's "busy" flag; it never panics) when a second operation is
// issued on a Reader while a prior one has not resolved. This is always a caller bug.
var ErrReentrant = errors.New("partial: reentrant call on Reader")

// ErrCanceled is the default reason recorded by Cancel when none is given.
var ErrCanceled = errors.New("partial: reader canceled")

// byobSource is the capability a source can implement to avoid the Default variant's leftover-buffering: instead of
// an uncontrolled-length io.Reader.Read, ReadInto fills at most len(p) bytes, so the Reader never receives more than
// it asked for and never needs to retain a leftover.
type byobSource interface {
	io.Reader
	// ReadInto reads at most len(p) bytes into p, behaving like io.Reader.Read otherwise.
	ReadInto(p []byte) (int, error)
}

// Reader is the byte-precise adapter described in the package doc. The zero value is not usable; construct with
// FromStream.
type Reader struct {
	impl   variant
	busy   atomic.Bool
	err    error
	closed bool
}

// variant is the part of the contract that differs between the Default and BYOB implementations.
type variant interface {
	limitedRead(ctx context.Context, max int) ([]byte, error)
	skipAmount(ctx context.Context, n int) error
	cancel(reason error)
}

// FromStream returns a Reader wrapping src.
//
// Construction is lazy: no I/O is performed until the first operation. If src additionally implements the
// unexported byobSource capability (ReadInto), the BYOB variant is used since it can bound each upstream read to
// exactly the caller's request and never needs to retain a leftover slice. Otherwise the Default variant is used.
func FromStream(src io.Reader) *Reader {
	if b, ok := src.(byobSource); ok {
		return &Reader{impl: newByobVariant(b)}
	}
	return &Reader{impl: newDefaultVariant(src)}
}

// enter marks the Reader busy for the duration of a single operation. The returned func must be deferred to release
// it. It returns the recorded reason if the Reader was canceled or has failed, and ErrReentrant if already busy.
func (r *Reader) enter() (func(), error) {
	if r.err != nil {
		return func() {}, r.err
	}
	if !r.busy.CompareAndSwap(false, true) {
		return func() {}, ErrReentrant
	}
	return func() { r.busy.Store(false) }, nil
}

// LimitedRead delivers the next available bytes capped at max. It returns (nil, io.EOF) at a clean end, and never
// returns an empty non-nil slice otherwise.
func (r *Reader) LimitedRead(ctx context.Context, max int) ([]byte, error) {
	if max <= 0 {
		return nil, fmt.Errorf("partial: LimitedRead: max (%d) must be positive", max)
	}

	done, err := r.enter()
	defer done()
	if err != nil {
		return nil, err
	}

	if err = ctx.Err(); err != nil {
		r.fail(err)
		return nil, err
	}

	b, err := r.impl.limitedRead(ctx, max)
	if err != nil && !errors.Is(err, io.EOF) {
		r.fail(err)
	}
	return b, err
}

// ReadAmount loops LimitedRead until n is filled or upstream ends, returning the short prefix (and a nil error) on
// early end. When the first LimitedRead call already satisfies n, that slice is returned directly without copying
// into a freshly allocated n-byte buffer.
func (r *Reader) ReadAmount(ctx context.Context, n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}

	first, err := r.LimitedRead(ctx, n)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	if len(first) == n {
		return first, nil
	}

	out := make([]byte, len(first), n)
	copy(out, first)

	for len(out) < n {
		b, err := r.LimitedRead(ctx, n-len(out))
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		out = append(out, b...)
	}

	return out, nil
}

// ReadAmountStrict behaves like ReadAmount but fails with ErrUnexpectedEnd when fewer than n bytes are available.
func (r *Reader) ReadAmountStrict(ctx context.Context, n int) ([]byte, error) {
	b, err := r.ReadAmount(ctx, n)
	if err != nil {
		return nil, err
	}
	if len(b) < n {
		err = fmt.Errorf("read %d bytes, expected %d: %w", len(b), n, ErrUnexpectedEnd)
		r.fail(err)
		return nil, err
	}
	return b, nil
}

// SkipAmount reads and discards up to n bytes, stopping early (without error) if upstream ends first.
func (r *Reader) SkipAmount(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}

	done, err := r.enter()
	defer done()
	if err != nil {
		return err
	}

	if err = ctx.Err(); err != nil {
		r.fail(err)
		return err
	}

	if err = r.impl.skipAmount(ctx, n); err != nil {
		r.fail(err)
		return err
	}
	return nil
}

// Cancel releases the upstream handle, recording reason (defaulting to ErrCanceled) as the cause of every
// subsequent operation.
func (r *Reader) Cancel(reason error) {
	if reason == nil {
		reason = ErrCanceled
	}
	if r.err != nil {
		return
	}
	r.err = reason
	r.impl.cancel(reason)
}

// fail records err as the terminal state of the Reader, same as Cancel(err), unless already failed.
func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = err
		r.impl.cancel(err)
	}
}

// getBuffer and putBuffer centralize the package's pooled buffers so both the Default variant's chunk (leftover)
// slot and the BYOB variant's skipAmount scratch buffer share the same pool (grounded on zipper/cdscanner.go's use
// of bytebufferpool for its own fixed-size header reads).
var bufPool bytebufferpool.Pool

func getBuffer() *bytebufferpool.ByteBuffer { return bufPool.Get() }
func putBuffer(b *bytebufferpool.ByteBuffer) { bufPool.Put(b) }
