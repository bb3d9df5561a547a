package capture

import (
	"bytes"
	"math"
	"net/http"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func zlibBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func zstdBytes(t *testing.T, s string) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll([]byte(s), nil)
}

func TestDecodeContent(t *testing.T) {
	const plain = `{"a":1}`

	tests := []struct {
		name     string
		encoding string
		raw      []byte
		limit    int64
		want     string
		wantErr  bool
	}{
		{"no encoding", "", []byte(plain), 100, plain, false},
		{"identity", "identity", []byte(plain), 100, plain, false},
		{"gzip", "gzip", gzipBytes(t, plain), 100, plain, false},
		{"x-gzip mixed case", " X-Gzip ", gzipBytes(t, plain), 100, plain, false},
		{"deflate", "deflate", zlibBytes(t, plain), 100, plain, false},
		{"zstd", "zstd", zstdBytes(t, plain), 100, plain, false},
		{"decoded exactly at limit", "gzip", gzipBytes(t, plain), int64(len(plain)), plain, false},
		{"unbounded limit", "gzip", gzipBytes(t, plain), math.MaxInt64, plain, false},
		{"truncated gzip", "gzip", gzipBytes(t, plain)[:12], 100, "", true},
		{"unsupported", "br", []byte{0x1}, 100, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.encoding != "" {
				header.Set("Content-Encoding", tt.encoding)
			}

			got, err := decodeContent(header, tt.raw, tt.limit)
			if tt.wantErr {
				require.Error(t, err)
				assert.NotErrorIs(t, err, errDecodedTooLarge)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestDecodeContent_EnforcesLimitOnDecodedSize(t *testing.T) {
	raw := gzipBytes(t, `{"a":1}`)
	_, err := decodeContent(http.Header{"Content-Encoding": {"gzip"}}, raw, 6)
	assert.ErrorIs(t, err, errDecodedTooLarge)
}

func TestDecodeContent_EmptyBodyIgnoresEncoding(t *testing.T) {
	got, err := decodeContent(http.Header{"Content-Encoding": {"gzip"}}, nil, 100)
	require.NoError(t, err)
	assert.Empty(t, got)
}
