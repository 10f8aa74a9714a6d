// Package s3reader adapts ranged S3 GetObject calls into a plain io.Reader, the shape zipstream.NewReader expects
// as its upstream source when the CLI is pointed at an s3:// archive.
package s3reader

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Reader is a sequential io.Reader backed by ranged GetObject calls against one S3 object.
type Reader interface {
	io.Reader
	io.ReaderAt
}

// ReaderClient abstracts the S3 API needed to implement Reader.
type ReaderClient interface {
	GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Options customises NewReader.
type Options struct {
	// CtxFn returns the context.Context used with every GetObject call.
	//
	// Defaults to context.Background.
	CtxFn func() context.Context

	// ModifyGetObjectInput can be used to modify the GetObject input, e.g. to set ExpectedBucketOwner.
	ModifyGetObjectInput func(*s3.GetObjectInput) *s3.GetObjectInput

	// BufferSize is the minimum number of bytes requested per GetObject call, so that a string of small Reads
	// doesn't turn into a string of small requests.
	//
	// Defaults to DefaultBufferSize.
	BufferSize int
}

// DefaultBufferSize is the default value of Options.BufferSize.
const DefaultBufferSize = 64 * 1024

// NewReader returns a Reader that streams the given bucket and key.
func NewReader(client ReaderClient, bucket, key string, optFns ...func(*Options)) Reader {
	opts := &Options{
		CtxFn: context.Background,
		ModifyGetObjectInput: func(input *s3.GetObjectInput) *s3.GetObjectInput {
			return input
		},
		BufferSize: DefaultBufferSize,
	}
	for _, fn := range optFns {
		fn(opts)
	}

	return &reader{
		client:               client,
		bucket:               bucket,
		key:                  key,
		ctxFn:                opts.CtxFn,
		modifyGetObjectInput: opts.ModifyGetObjectInput,
		bufferSize:           opts.BufferSize,
	}
}

// reader implements Reader.
type reader struct {
	client               ReaderClient
	bucket, key          string
	ctxFn                func() context.Context
	modifyGetObjectInput func(*s3.GetObjectInput) *s3.GetObjectInput
	bufferSize           int
	off                  int64
	buf                  bytes.Buffer
}

func (r *reader) Read(p []byte) (n int, err error) {
	m := len(p)
	if m == 0 {
		return 0, nil
	}

	if r.buf.Len() > 0 {
		n, _ = r.buf.Read(p)
		r.off += int64(n)
		if n == m {
			return n, nil
		}
		p = p[n:]
	}

	rangeStart := r.off
	rangeEnd := rangeStart + int64(max(m-n, r.bufferSize)) - 1
	getObjectOutput, err := r.client.GetObject(r.ctxFn(), r.modifyGetObjectInput(&s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", rangeStart, rangeEnd)),
	}))
	if err != nil {
		if n > 0 {
			return n, nil
		}
		return 0, fmt.Errorf("get object error: %w", err)
	}

	_, err = r.buf.ReadFrom(getObjectOutput.Body)
	_ = getObjectOutput.Body.Close()
	if err != nil {
		return n, err
	}

	m2, _ := r.buf.Read(p)
	r.off += int64(m2)
	if n+m2 == 0 {
		// the ranged GetObject returned no bytes: the object has been read to its end.
		return 0, io.EOF
	}
	return n + m2, nil
}

// ReadInto behaves exactly like Read: it never fills more of p than len(p) bytes, so partial.FromStream recognizes
// Reader as a BYOB source and skips its own leftover-buffering for this source.
func (r *reader) ReadInto(p []byte) (int, error) {
	return r.Read(p)
}

func (r *reader) ReadAt(p []byte, off int64) (n int, err error) {
	m := int64(len(p))
	if m == 0 {
		return 0, nil
	}

	getObjectOutput, err := r.client.GetObject(r.ctxFn(), r.modifyGetObjectInput(&s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, off+(m-1))),
	}))
	if err != nil {
		return 0, fmt.Errorf("get object error: %w", err)
	}

	n, err = io.ReadFull(getObjectOutput.Body, p)
	_ = getObjectOutput.Body.Close()
	return n, err
}
