package zipstream

import (
	"bytes"
	"compress/flate"
	"hash/crc32"
	"testing"
)

func crc32Of(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

func deflateBytes(t *testing.T, content []byte) ([]byte, []byte) {
	t.Helper()
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = fw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err = fw.Close(); err != nil {
		t.Fatal(err)
	}
	return content, buf.Bytes()
}
