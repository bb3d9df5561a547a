package httpcapture

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCaptureWriter(t *testing.T) {
	t.Run("implicit 200 and bounded copy", func(t *testing.T) {
		rec := httptest.NewRecorder()
		cw := newCaptureWriter(rec, 4, DefaultStreamingDetector)

		_, _ = cw.Write([]byte("ab"))
		_, _ = cw.Write([]byte("cd"))

		assert.Equal(t, http.StatusOK, cw.status)
		assert.Equal(t, "abcd", string(cw.buf.Bytes()))
		assert.Equal(t, "abcd", rec.Body.String())

		_, _ = cw.Write([]byte("e"))
		assert.Nil(t, cw.buf.Bytes())
		assert.Equal(t, "abcde", rec.Body.String())
		assert.Equal(t, int64(5), cw.meta().Size)
	})

	t.Run("first status wins", func(t *testing.T) {
		rec := httptest.NewRecorder()
		cw := newCaptureWriter(rec, 10, DefaultStreamingDetector)

		cw.WriteHeader(http.StatusNotFound)
		cw.WriteHeader(http.StatusOK)

		assert.Equal(t, http.StatusNotFound, cw.status)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("flush marks streaming", func(t *testing.T) {
		rec := httptest.NewRecorder()
		cw := newCaptureWriter(rec, 10, DefaultStreamingDetector)

		_, _ = cw.Write([]byte("x"))
		cw.Flush()

		assert.True(t, cw.flushed)
		assert.True(t, cw.streaming)
		assert.True(t, rec.Flushed)
		assert.Nil(t, cw.buf.Bytes())
	})

	t.Run("flush left to detector", func(t *testing.T) {
		rec := httptest.NewRecorder()
		cw := newCaptureWriter(rec, 10, ContentTypeStreamingDetector)
		cw.Header().Set("Content-Type", "application/json")

		_, _ = cw.Write([]byte(`{"a":`))
		cw.Flush()
		_, _ = cw.Write([]byte(`1}`))

		assert.True(t, cw.flushed)
		assert.False(t, cw.streaming)
		assert.True(t, rec.Flushed)
		assert.Equal(t, `{"a":1}`, string(cw.buf.Bytes()))
	})

	t.Run("unwrap", func(t *testing.T) {
		rec := httptest.NewRecorder()
		cw := newCaptureWriter(rec, 10, DefaultStreamingDetector)
		assert.Same(t, rec, cw.Unwrap())
	})
}
