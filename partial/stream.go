package partial

import (
	"context"
	"fmt"
	"io"
)

// Substream is an io.Reader over exactly the next N bytes of a Reader's upstream, as produced by StreamAmount. The
// parent Reader is busy (rejecting every other operation with ErrReentrant) for as long as a Substream it produced
// has not resolved.
//
// A Substream resolves when the consumer reads it to io.EOF, when the consumer calls Cancel, which drains whatever
// bytes remain unread so the parent Reader's upstream position lands exactly where the next entry begins, or when a
// Read fails (upstream ended early or errored), in which case the parent Reader fails with that error too.
type Substream struct {
	r         *Reader
	release   func()
	remaining int64
	done      chan struct{}
}

// StreamAmount reserves the next n bytes of upstream for exclusive, streaming consumption by the returned
// Substream. No bytes are read until the first call to Substream.Read.
func (r *Reader) StreamAmount(ctx context.Context, n int64) (*Substream, error) {
	if n < 0 {
		return nil, fmt.Errorf("partial: StreamAmount: n (%d) must not be negative", n)
	}

	release, err := r.enter()
	if err != nil {
		return nil, err
	}

	if err = ctx.Err(); err != nil {
		release()
		r.fail(err)
		return nil, err
	}

	s := &Substream{r: r, release: release, remaining: n, done: make(chan struct{})}
	if n == 0 {
		s.resolve()
	}
	return s, nil
}

// Read implements io.Reader, never delivering more than the reserved byte count and returning io.EOF once it is
// exhausted.
func (s *Substream) Read(p []byte) (int, error) {
	if s.remaining == 0 {
		s.resolve()
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	max := int64(len(p))
	if max > s.remaining {
		max = s.remaining
	}

	b, err := s.r.impl.limitedRead(context.Background(), int(max))
	if err != nil {
		if err == io.EOF {
			err = fmt.Errorf("partial: Substream: %w", ErrUnexpectedEnd)
		}
		s.r.fail(err)
		s.resolve()
		return 0, err
	}

	n := copy(p, b)
	s.remaining -= int64(n)
	if s.remaining == 0 {
		s.resolve()
		return n, io.EOF
	}
	return n, nil
}

// Done returns a channel that closes once the Substream has resolved: read to completion, canceled, or failed.
func (s *Substream) Done() <-chan struct{} {
	return s.done
}

// IsDone reports, without blocking, whether the Substream has already resolved.
func (s *Substream) IsDone() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Cancel drains any unread reserved bytes from upstream and releases the parent Reader for its next operation. It
// is a no-op if the Substream already resolved.
func (s *Substream) Cancel(ctx context.Context) error {
	if s.IsDone() {
		return nil
	}

	err := s.r.impl.skipAmount(ctx, int(s.remaining))
	s.remaining = 0
	s.resolve()
	if err != nil {
		s.r.fail(err)
		return err
	}
	return nil
}

func (s *Substream) resolve() {
	if s.IsDone() {
		return
	}
	close(s.done)
	if s.release != nil {
		s.release()
		s.release = nil
	}
}
