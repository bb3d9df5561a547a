package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// State is a position in the session lifecycle.
type State int

const (
	StateOpen State = iota
	StateRequestCaptured
	StateHandlerRunning
	StateResponseCaptured
	StateFinalized
	StateAborted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateRequestCaptured:
		return "request_captured"
	case StateHandlerRunning:
		return "handler_running"
	case StateResponseCaptured:
		return "response_captured"
	case StateFinalized:
		return "finalized"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateFinalized || s == StateAborted
}

// RequestMeta carries the request attributes a session records.
type RequestMeta struct {
	Method        string
	URL           string
	RoutePath     string
	RemoteAddr    string
	Header        http.Header
	Query         url.Values
	ContentLength int64
	RequestID     string
	TraceID       string
	SpanID        string
}

// ResponseMeta carries the response attributes a session records.
type ResponseMeta struct {
	Status int
	Header http.Header
	Size   int64
}

// Session tracks one request/response exchange. A Session is used by the
// goroutine serving the request and is not safe for concurrent use.
type Session struct {
	cfg      *Config
	reporter Reporter
	observer Observer
	logger   *slog.Logger
	now      func() time.Time

	state  State
	start  time.Time
	record *Record
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithReporter sets the reporter that receives the finalized record.
func WithReporter(r Reporter) SessionOption {
	return func(s *Session) {
		s.reporter = r
	}
}

// WithObserver sets the observer notified of capture outcomes.
func WithObserver(o Observer) SessionOption {
	return func(s *Session) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSession opens a session using cfg. A nil cfg uses the defaults.
func NewSession(cfg *Config, opts ...SessionOption) *Session {
	if cfg == nil {
		cfg = MustConfig()
	}

	s := &Session{
		cfg:      cfg,
		observer: nopObserver{},
		logger:   slog.Default().With("component", "capture.session"),
		now:      time.Now,
		state:    StateOpen,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.start = s.now()
	s.record = &Record{
		ID:        uuid.New().String(),
		Timestamp: s.start.UTC(),
		Server:    DetectServerInfo(),
		Language:  CurrentLanguage(),
		Errors:    []ErrorEntry{},
	}
	return s
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// Config returns the Config snapshot the session was opened with.
func (s *Session) Config() *Config { return s.cfg }

// Record returns the record being built. It is complete once the session is
// finalized.
func (s *Session) Record() *Record { return s.record }

func (s *Session) transition(from, to State) error {
	if s.state != from {
		return fmt.Errorf("%w: %s → %s (current %s)", ErrInvalidTransition, from, to, s.state)
	}
	s.state = to
	return nil
}

// CaptureRequest records the request metadata and gates, transforms and masks
// its body. It returns the reader the handler must use in place of body; that
// reader yields every original byte.
//
// On ErrInvalidTransition body is returned untouched.
func (s *Session) CaptureRequest(meta RequestMeta, body io.Reader) (io.Reader, error) {
	if s.state != StateOpen {
		return body, s.transition(StateOpen, StateRequestCaptured)
	}

	if !s.guard("capture request metadata", func() { s.captureRequestMeta(meta) }) {
		return body, nil
	}

	data, decision, replay, err := PeekBody(body, meta.ContentLength, s.cfg.maxBodyBytes)
	if err != nil {
		s.logger.Debug("request body read failed", "error", err)
	}

	// Size is -1 when the body was skipped without a declared length.
	req := &s.record.Request
	switch {
	case meta.ContentLength >= 0:
		req.Size = meta.ContentLength
	case decision == Capture:
		req.Size = int64(len(data))
	default:
		req.Size = -1
	}

	if decision == Skip {
		req.Body = Body{Status: BodySkipped}
		s.logger.Debug("request body exceeds limit, skipping",
			"limit", s.cfg.maxBodyBytes,
			"content_length", meta.ContentLength,
		)
	} else {
		req.Body = s.sanitizeBody(DirectionRequest, data, s.cfg.requestTransformer, s.cfg.customRequest)
	}
	s.observer.ObserveBody(DirectionRequest, req.Body.Status, req.Size)

	s.state = StateRequestCaptured
	return replay, nil
}

func (s *Session) captureRequestMeta(meta RequestMeta) {
	s.record.RequestID = meta.RequestID
	s.record.TraceID = meta.TraceID
	s.record.SpanID = meta.SpanID

	req := &s.record.Request
	req.Timestamp = s.record.Timestamp
	req.Method = meta.Method
	req.URL = meta.URL
	req.RoutePath = meta.RoutePath
	req.ClientIP = ClientIP(meta.Header, meta.RemoteAddr)
	req.UserAgent = meta.Header.Get("User-Agent")
	req.Headers = s.cfg.maskHeaders(meta.Header)
	req.Query = s.cfg.maskQuery(meta.Query)
}

// BeginHandler marks the start of the application handler.
func (s *Session) BeginHandler() error {
	return s.transition(StateRequestCaptured, StateHandlerRunning)
}

// SetRoutePath records the matched route pattern. Routers usually resolve the
// pattern while the handler runs, so it may be set after the request was
// captured. An empty path is ignored.
func (s *Session) SetRoutePath(path string) {
	if path != "" && !s.state.Terminal() {
		s.record.Request.RoutePath = path
	}
}

// RecordError appends an error entry to the record.
func (s *Session) RecordError(errType, message string) {
	if s.state.Terminal() {
		return
	}
	s.record.Errors = append(s.record.Errors, ErrorEntry{
		Source:  ErrorSourceOnError,
		Type:    errType,
		Message: message,
	})
}

// RecordPanic appends an error entry for a recovered handler panic.
func (s *Session) RecordPanic(v any) {
	errType := "panic"
	if err, ok := v.(error); ok {
		errType = fmt.Sprintf("%T", err)
	}
	s.RecordError(errType, fmt.Sprint(v))
}

// CaptureResponse records a fully buffered response. body holds the bytes the
// handler wrote and meta.Size the total written; when meta.Size exceeds the
// response limit the body is skipped and body is ignored. Compressed bodies
// are decoded per Content-Encoding before the transformer runs, and the
// decoded size is held to the same limit.
func (s *Session) CaptureResponse(meta ResponseMeta, body []byte) error {
	if s.state != StateHandlerRunning {
		return s.transition(StateHandlerRunning, StateResponseCaptured)
	}

	if !s.guard("capture response metadata", func() { s.captureResponseMeta(meta) }) {
		return nil
	}

	resp := &s.record.Response
	limit := s.cfg.maxResponseBodyBytes
	if Admit(meta.Size, limit) == Skip {
		s.skipResponseBody(meta.Size, limit)
	} else if decoded, err := decodeContent(meta.Header, body, limit); errors.Is(err, errDecodedTooLarge) {
		s.skipResponseBody(meta.Size, limit)
	} else if err != nil {
		resp.Body = Body{Status: BodyParseFailed}
		s.logger.Debug("response body could not be decoded", "error", err)
	} else {
		resp.Body = s.sanitizeBody(DirectionResponse, decoded, s.cfg.responseTransformer, s.cfg.customResponse)
	}
	s.observer.ObserveBody(DirectionResponse, resp.Body.Status, resp.Size)

	s.state = StateResponseCaptured
	return nil
}

// skipResponseBody marks the response body skipped and records the overflow
// as an error entry.
func (s *Session) skipResponseBody(size, limit int64) {
	s.record.Response.Body = Body{Status: BodySkipped}
	s.logger.Debug("response body exceeds limit, skipping", "limit", limit, "size", size)
	s.RecordError("SizeExceeded", fmt.Sprintf("response body is over the %d byte limit", limit))
}

// CaptureStreamingResponse records a response that was produced
// incrementally. The body is marked streaming; neither the size limit nor the
// response transformer is applied.
func (s *Session) CaptureStreamingResponse(meta ResponseMeta) error {
	if s.state != StateHandlerRunning {
		return s.transition(StateHandlerRunning, StateResponseCaptured)
	}

	if !s.guard("capture response metadata", func() { s.captureResponseMeta(meta) }) {
		return nil
	}

	s.record.Response.Body = Body{Status: BodyStreaming}
	s.observer.ObserveBody(DirectionResponse, BodyStreaming, meta.Size)

	s.state = StateResponseCaptured
	return nil
}

func (s *Session) captureResponseMeta(meta ResponseMeta) {
	resp := &s.record.Response
	resp.Status = meta.Status
	resp.Headers = s.cfg.maskHeaders(meta.Header)
	resp.Size = meta.Size
	resp.LoadTimeMS = float64(s.now().Sub(s.start).Microseconds()) / 1000
}

// Finalize completes the record and hands it to the reporter. The record is
// returned for callers that need it directly.
func (s *Session) Finalize(ctx context.Context) (*Record, error) {
	if err := s.transition(StateResponseCaptured, StateFinalized); err != nil {
		return nil, err
	}
	s.observer.ObserveSession(StateFinalized)

	if s.reporter != nil {
		s.guard("report record", func() { s.reporter.Report(ctx, s.record) })
	}
	return s.record, nil
}

// Abort discards the session. No record is reported. Aborting a finished
// session is a no-op.
func (s *Session) Abort(reason string) {
	if s.state.Terminal() {
		return
	}
	s.logger.Debug("capture session aborted",
		"reason", reason,
		"state", s.state.String(),
		"record_id", s.record.ID,
	)
	s.state = StateAborted
	s.observer.ObserveSession(StateAborted)
}

// guard runs fn and aborts the session if it panics. It reports whether fn
// completed.
func (s *Session) guard(op string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("capture internal fault",
				"operation", op,
				"panic", fmt.Sprint(r),
			)
			s.Abort(op + " panicked")
			ok = false
		}
	}()
	fn()
	return true
}

// sanitizeBody turns raw bytes into a masked body. Failures are contained
// here and degrade the body to parse-failed.
func (s *Session) sanitizeBody(dir Direction, raw []byte, fn Transformer, custom bool) (body Body) {
	if len(raw) == 0 {
		return Body{Status: BodyCaptured}
	}

	defer func() {
		if r := recover(); r != nil {
			s.transformFailed(dir, NewTransformError(dir, true, fmt.Errorf("%v", r)))
			body = Body{Status: BodyParseFailed}
		}
	}()

	v, err := transform(dir, raw, fn, custom)
	if err != nil {
		if custom {
			s.transformFailed(dir, err)
		} else {
			s.logger.Debug("body is not valid JSON",
				"direction", string(dir),
				"error", err,
			)
		}
		return Body{Status: BodyParseFailed}
	}

	return Body{Status: BodyCaptured, Value: s.cfg.masker.Mask(v)}
}

func (s *Session) transformFailed(dir Direction, err error) {
	var te *TransformError
	errType := "TransformError"
	if errors.As(err, &te) && te.Panicked {
		errType = "TransformPanic"
	}

	s.logger.Error("body transformer failed",
		"record_id", s.record.ID,
		"direction", string(dir),
		"error", err,
	)
	s.RecordError(errType, err.Error())
	s.observer.ObserveTransformFailure(dir)
}
