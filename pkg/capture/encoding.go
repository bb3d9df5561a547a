package capture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// errDecodedTooLarge is returned when a compressed body inflates past the
// body limit.
var errDecodedTooLarge = errors.New("decoded body exceeds limit")

// decodeContent reverses the Content-Encoding of a captured body so the
// transformer sees the bytes the client will eventually read. At most limit
// decoded bytes are kept.
func decodeContent(header http.Header, raw []byte, limit int64) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(header.Get("Content-Encoding")))
	if len(raw) == 0 || encoding == "" || encoding == "identity" {
		return raw, nil
	}

	var r io.Reader
	switch encoding {
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	case "deflate":
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		defer zr.Close()
		r = zr
	case "zstd":
		zr, err := zstd.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer zr.Close()
		r = zr
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}

	n := limit
	if n < math.MaxInt64 {
		n++
	}
	decoded, err := io.ReadAll(io.LimitReader(r, n))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", encoding, err)
	}
	if int64(len(decoded)) > limit {
		return nil, errDecodedTooLarge
	}
	return decoded, nil
}
