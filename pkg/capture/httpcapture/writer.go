package httpcapture

import (
	"net/http"

	"mercator-hq/tap/pkg/capture"
)

// captureWriter tees the response body into a bounded buffer while passing
// every byte to the client.
type captureWriter struct {
	http.ResponseWriter
	buf         *capture.BoundedBuffer
	detect      StreamingDetector
	status      int
	wroteHeader bool
	flushed     bool
	streaming   bool
}

func newCaptureWriter(w http.ResponseWriter, limit int64, detect StreamingDetector) *captureWriter {
	return &captureWriter{
		ResponseWriter: w,
		buf:            capture.NewBoundedBuffer(limit),
		detect:         detect,
		status:         http.StatusOK,
	}
}

// WriteHeader records the final status code. Informational codes pass
// through without being recorded.
func (cw *captureWriter) WriteHeader(code int) {
	if code >= 100 && code < 200 {
		cw.ResponseWriter.WriteHeader(code)
		return
	}
	if cw.wroteHeader {
		return
	}
	cw.status = code
	cw.wroteHeader = true
	if cw.detect(code, cw.Header(), false) {
		cw.markStreaming()
	}
	cw.ResponseWriter.WriteHeader(code)
}

// Write sends b to the client and keeps a bounded copy.
func (cw *captureWriter) Write(b []byte) (int, error) {
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
	n, err := cw.ResponseWriter.Write(b)
	if n > 0 {
		_, _ = cw.buf.Write(b[:n])
	}
	return n, err
}

// Flush flushes the underlying writer. Whether the flush makes the response
// streaming is left to the detector.
func (cw *captureWriter) Flush() {
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
	cw.flushed = true
	if !cw.streaming && cw.detect(cw.status, cw.Header(), true) {
		cw.markStreaming()
	}
	_ = http.NewResponseController(cw.ResponseWriter).Flush()
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (cw *captureWriter) Unwrap() http.ResponseWriter {
	return cw.ResponseWriter
}

func (cw *captureWriter) markStreaming() {
	if !cw.streaming {
		cw.streaming = true
		cw.buf.Disable()
	}
}

func (cw *captureWriter) meta() capture.ResponseMeta {
	return capture.ResponseMeta{
		Status: cw.status,
		Header: cw.Header().Clone(),
		Size:   cw.buf.Total(),
	}
}
