package partial

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadAmount(t *testing.T) {
	tests := []struct {
		name string
		data string
		n    int
		want string
	}{
		{name: "exact", data: "hello world", n: 11, want: "hello world"},
		{name: "short read", data: "hello", n: 10, want: "hello"},
		{name: "zero", data: "hello", n: 0, want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := FromStream(bytes.NewReader([]byte(tc.data)))
			got, err := r.ReadAmount(context.Background(), tc.n)
			assert.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}
}

func TestReadAmountStrict_UnexpectedEnd(t *testing.T) {
	r := FromStream(bytes.NewReader([]byte("hi")))
	_, err := r.ReadAmountStrict(context.Background(), 10)
	assert.ErrorIs(t, err, ErrUnexpectedEnd)
}

func TestReadAmountStrict_Exact(t *testing.T) {
	r := FromStream(bytes.NewReader([]byte("hello")))
	got, err := r.ReadAmountStrict(context.Background(), 5)
	assert.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestSkipAmount(t *testing.T) {
	r := FromStream(bytes.NewReader([]byte("0123456789")))
	assert.NoError(t, r.SkipAmount(context.Background(), 5))
	got, err := r.ReadAmountStrict(context.Background(), 5)
	assert.NoError(t, err)
	assert.Equal(t, "56789", string(got))
}

func TestSkipAmount_PastEnd(t *testing.T) {
	r := FromStream(bytes.NewReader([]byte("abc")))
	assert.NoError(t, r.SkipAmount(context.Background(), 100))
	_, err := r.ReadAmount(context.Background(), 1)
	assert.NoError(t, err)
}

func TestLimitedRead_ManySmallChunksFromOneUnderlyingRead(t *testing.T) {
	src := &countingReader{Reader: bytes.NewReader(bytes.Repeat([]byte("x"), 1000))}
	r := FromStream(src)

	total := 0
	for i := 0; i < 1000; i++ {
		b, err := r.LimitedRead(context.Background(), 1)
		assert.NoError(t, err)
		total += len(b)
	}
	assert.Equal(t, 1000, total)
	assert.Less(t, src.reads, 1000, "expected chunking to reduce the number of upstream Read calls")
}

func TestStreamAmount_ReadToEOF(t *testing.T) {
	r := FromStream(bytes.NewReader([]byte("abcdefghij")))

	sub, err := r.StreamAmount(context.Background(), 5)
	assert.NoError(t, err)

	b, err := io.ReadAll(sub)
	assert.NoError(t, err)
	assert.Equal(t, "abcde", string(b))
	assert.True(t, sub.IsDone())

	rest, err := r.ReadAmountStrict(context.Background(), 5)
	assert.NoError(t, err)
	assert.Equal(t, "fghij", string(rest))
}

func TestStreamAmount_CancelDrainsRemaining(t *testing.T) {
	r := FromStream(bytes.NewReader([]byte("abcdefghij")))

	sub, err := r.StreamAmount(context.Background(), 5)
	assert.NoError(t, err)

	buf := make([]byte, 2)
	n, err := sub.Read(buf)
	assert.NoError(t, err)
	assert.Equal(t, "ab", string(buf[:n]))

	assert.NoError(t, sub.Cancel(context.Background()))
	assert.True(t, sub.IsDone())

	rest, err := r.ReadAmountStrict(context.Background(), 5)
	assert.NoError(t, err)
	assert.Equal(t, "fghij", string(rest))
}

func TestStreamAmount_ShortUpstreamIsUnexpectedEnd(t *testing.T) {
	r := FromStream(bytes.NewReader([]byte("ab")))

	sub, err := r.StreamAmount(context.Background(), 5)
	assert.NoError(t, err)

	_, err = io.ReadAll(sub)
	assert.ErrorIs(t, err, ErrUnexpectedEnd)
}

func TestReentrantCallRejected(t *testing.T) {
	r := FromStream(bytes.NewReader([]byte("abcdefghij")))

	sub, err := r.StreamAmount(context.Background(), 5)
	assert.NoError(t, err)
	assert.NotNil(t, sub)

	_, err = r.ReadAmount(context.Background(), 1)
	assert.ErrorIs(t, err, ErrReentrant)
}

func TestCancel_FailsSubsequentOperations(t *testing.T) {
	r := FromStream(bytes.NewReader([]byte("abcdefghij")))
	sentinel := errors.New("boom")
	r.Cancel(sentinel)

	_, err := r.ReadAmount(context.Background(), 1)
	assert.ErrorIs(t, err, sentinel)
}

func TestLimitedRead_UpstreamErrorPropagatesPastBufferedChunk(t *testing.T) {
	sentinel := errors.New("disk fell off")
	src := &errAfterDataReader{data: []byte("abc"), err: sentinel}
	r := FromStream(src)

	got, err := r.LimitedRead(context.Background(), 10)
	assert.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	_, err = r.LimitedRead(context.Background(), 10)
	assert.ErrorIs(t, err, sentinel)
}

func TestFromStream_BYOBCapability(t *testing.T) {
	src := &byobSourceStub{data: []byte("0123456789")}
	r := FromStream(src)

	got, err := r.ReadAmountStrict(context.Background(), 4)
	assert.NoError(t, err)
	assert.Equal(t, "0123", string(got))
	assert.True(t, src.usedReadInto)
}

func TestByobVariant_SkipAmount(t *testing.T) {
	src := &byobSourceStub{data: []byte("0123456789")}
	r := FromStream(src)

	assert.NoError(t, r.SkipAmount(context.Background(), 5))
	got, err := r.ReadAmountStrict(context.Background(), 5)
	assert.NoError(t, err)
	assert.Equal(t, "56789", string(got))
}

// TestByobVariant_SkipAmount_LargerThanScratchBuffer forces more than one scratch-buffer-sized ReadInto call,
// exercising the loop in skipAmount rather than just a single pooled read.
func TestByobVariant_SkipAmount_LargerThanScratchBuffer(t *testing.T) {
	data := bytes.Repeat([]byte("x"), skipScratchSize*3+17)
	data = append(data, []byte("end")...)
	src := &byobSourceStub{data: data}
	r := FromStream(src)

	assert.NoError(t, r.SkipAmount(context.Background(), len(data)-len("end")))
	got, err := r.ReadAmountStrict(context.Background(), 3)
	assert.NoError(t, err)
	assert.Equal(t, "end", string(got))
}

func TestByobVariant_SkipAmount_PastEnd(t *testing.T) {
	src := &byobSourceStub{data: []byte("abc")}
	r := FromStream(src)

	assert.NoError(t, r.SkipAmount(context.Background(), 100))
	_, err := r.ReadAmount(context.Background(), 1)
	assert.NoError(t, err)
}

// errAfterDataReader returns its data alongside a non-EOF error on the single Read call, exercising the legal
// io.Reader contract where bytes and a terminal error arrive together.
type errAfterDataReader struct {
	data []byte
	err  error
	done bool
}

func (e *errAfterDataReader) Read(p []byte) (int, error) {
	if e.done {
		return 0, e.err
	}
	e.done = true
	n := copy(p, e.data)
	return n, e.err
}

type countingReader struct {
	*bytes.Reader
	reads int
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.reads++
	return c.Reader.Read(p)
}

type byobSourceStub struct {
	data         []byte
	pos          int
	usedReadInto bool
}

func (b *byobSourceStub) Read(p []byte) (int, error) {
	return b.ReadInto(p)
}

func (b *byobSourceStub) ReadInto(p []byte) (int, error) {
	b.usedReadInto = true
	if b.pos >= len(b.data) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += n
	return n, nil
}
