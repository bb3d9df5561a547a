package capture

import (
	"bytes"
	"io"
)

// Decision is the outcome of a size check.
type Decision int

const (
	// Capture means the payload fits within the limit.
	Capture Decision = iota
	// Skip means the payload exceeds the limit and is not kept.
	Skip
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case Capture:
		return "capture"
	case Skip:
		return "skip"
	default:
		return "unknown"
	}
}

// Admit reports whether a payload of n bytes may be captured under limit.
// A payload exactly at the limit is captured.
func Admit(n, limit int64) Decision {
	if n > limit {
		return Skip
	}
	return Capture
}

// PeekBody reads enough of body to decide whether it fits within limit and
// returns a replay reader that yields every byte of the original stream.
//
// When contentLength is known (>= 0) and already over the limit, nothing is
// read. Otherwise at most limit+1 bytes are buffered; the returned data is
// nil unless the decision is Capture.
//
// A read error is returned together with a replay reader that yields the bytes
// read so far and then the same error, so the handler observes the failure
// exactly where it happened.
func PeekBody(body io.Reader, contentLength, limit int64) (data []byte, decision Decision, replay io.Reader, err error) {
	if body == nil {
		return nil, Capture, body, nil
	}
	if limit < 0 {
		limit = 0
	}
	if contentLength >= 0 && Admit(contentLength, limit) == Skip {
		return nil, Skip, body, nil
	}

	peek := limit + 1
	if peek < 0 {
		peek = limit
	}
	prefix, err := io.ReadAll(io.LimitReader(body, peek))
	if err != nil {
		return nil, Skip, io.MultiReader(bytes.NewReader(prefix), &errReader{err: err}), err
	}

	replay = io.MultiReader(bytes.NewReader(prefix), body)
	if Admit(int64(len(prefix)), limit) == Skip {
		return nil, Skip, replay, nil
	}
	return prefix, Capture, replay, nil
}

type errReader struct {
	err error
}

func (r *errReader) Read([]byte) (int, error) {
	return 0, r.err
}

// BoundedBuffer is an io.Writer that keeps a copy of at most limit bytes.
// Once more than limit bytes have been written the copy is released and every
// further write is only counted. Writes never fail.
type BoundedBuffer struct {
	limit      int64
	buf        bytes.Buffer
	total      int64
	overflowed bool
	disabled   bool
}

// NewBoundedBuffer returns a buffer holding at most limit bytes.
func NewBoundedBuffer(limit int64) *BoundedBuffer {
	if limit < 0 {
		limit = 0
	}
	return &BoundedBuffer{limit: limit}
}

// Write records p. It always reports len(p) bytes written.
func (b *BoundedBuffer) Write(p []byte) (int, error) {
	b.total += int64(len(p))
	if b.disabled || b.overflowed {
		return len(p), nil
	}
	if b.total > b.limit {
		b.overflowed = true
		b.buf = bytes.Buffer{}
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

// Disable stops buffering and releases anything held so far. Byte counting
// continues. Used once a response turns out to be streamed.
func (b *BoundedBuffer) Disable() {
	b.disabled = true
	b.buf = bytes.Buffer{}
}

// Bytes returns the buffered copy, or nil when it overflowed or was disabled.
func (b *BoundedBuffer) Bytes() []byte {
	if b.overflowed || b.disabled {
		return nil
	}
	return b.buf.Bytes()
}

// Total returns the number of bytes written, including those not kept.
func (b *BoundedBuffer) Total() int64 {
	return b.total
}

// Overflowed reports whether more than limit bytes were written.
func (b *BoundedBuffer) Overflowed() bool {
	return b.overflowed
}

// Decision applies Admit to the bytes written so far.
func (b *BoundedBuffer) Decision() Decision {
	return Admit(b.total, b.limit)
}
