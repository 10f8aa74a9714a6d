package s3reader

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
)

type testClient struct {
	data []byte

	mu    sync.Mutex
	calls []s3.GetObjectInput
}

func randomTestClient(n int) *testClient {
	data := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, data); err != nil {
		panic(err)
	}
	return &testClient{data: data}
}

func (c *testClient) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	c.mu.Lock()
	c.calls = append(c.calls, *input)
	c.mu.Unlock()

	var start, end int
	if _, err := fmt.Sscanf(aws.ToString(input.Range), "bytes=%d-%d", &start, &end); err != nil {
		return nil, err
	}
	if end >= len(c.data) {
		end = len(c.data) - 1
	}

	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(c.data[start : end+1])),
	}, nil
}

func TestReader_Read(t *testing.T) {
	tc := randomTestClient(1024)
	r := NewReader(tc, "bucket", "key", func(opts *Options) { opts.BufferSize = 100 })

	got, err := io.ReadAll(r)
	assert.NoError(t, err)
	assert.Equal(t, tc.data, got)
}

func TestReader_ReadAt(t *testing.T) {
	tc := randomTestClient(1024)
	r := NewReader(tc, "bucket", "key")

	buf := make([]byte, 4)
	n, err := r.ReadAt(buf, 1020)
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, tc.data[1020:], buf)
}

func TestReader_Read_SmallBuffersCoalesceIntoFewerGetObjectCalls(t *testing.T) {
	tc := randomTestClient(1024)
	r := NewReader(tc, "bucket", "key", func(opts *Options) { opts.BufferSize = 256 })

	buf := make([]byte, 4)
	n, err := io.ReadFull(r, buf)
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, tc.data[:4], buf)
	assert.Equal(t, 1, len(tc.calls))
}
