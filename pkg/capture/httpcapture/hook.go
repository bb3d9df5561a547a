package httpcapture

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/tap/pkg/capture"
)

// LifecycleHook is the pair of integration points a capture needs from an
// HTTP framework.
type LifecycleHook interface {
	// OnRequestStart runs before the handler. It returns the writer and
	// request the handler must be served with.
	OnRequestStart(w http.ResponseWriter, r *http.Request) (http.ResponseWriter, *http.Request)

	// OnResponseReady runs after the handler returned, with the values
	// OnRequestStart produced.
	OnResponseReady(w http.ResponseWriter, r *http.Request)
}

// PanicObserver is implemented by hooks that want to see handler panics
// before they are re-raised.
type PanicObserver interface {
	OnHandlerPanic(w http.ResponseWriter, r *http.Request, v any)
}

// StreamingDetector reports whether a response is streamed. flushed is true
// once the handler has flushed the response.
type StreamingDetector func(status int, header http.Header, flushed bool) bool

// DefaultStreamingDetector treats flushed responses, server-sent events and
// newline-delimited JSON as streaming.
func DefaultStreamingDetector(status int, header http.Header, flushed bool) bool {
	return flushed || ContentTypeStreamingDetector(status, header, flushed)
}

// ContentTypeStreamingDetector decides from the Content-Type alone and
// ignores flushes. It suits handlers that flush for transport reasons, such
// as httputil.ReverseProxy relaying a chunked reply.
func ContentTypeStreamingDetector(_ int, header http.Header, _ bool) bool {
	mediaType, _, err := mime.ParseMediaType(header.Get("Content-Type"))
	if err != nil {
		return false
	}
	switch mediaType {
	case "text/event-stream", "application/x-ndjson", "application/stream+json":
		return true
	}
	return false
}

// RouteResolver returns the route pattern that matched r, or "" if unknown.
type RouteResolver func(r *http.Request) string

// RequestIDFunc returns the request ID to attach to a record.
type RequestIDFunc func(r *http.Request) string

// Hook is the net/http LifecycleHook.
type Hook struct {
	source       capture.ConfigSource
	reporter     capture.Reporter
	observer     capture.Observer
	logger       *slog.Logger
	isStreaming  StreamingDetector
	resolveRoute RouteResolver
	requestID    RequestIDFunc
}

// Option configures a Hook.
type Option func(*Hook)

// WithObserver sets the observer passed to every session.
func WithObserver(o capture.Observer) Option {
	return func(h *Hook) {
		h.observer = o
	}
}

// WithLogger sets the hook logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hook) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithStreamingDetector replaces DefaultStreamingDetector.
func WithStreamingDetector(d StreamingDetector) Option {
	return func(h *Hook) {
		if d != nil {
			h.isStreaming = d
		}
	}
}

// WithRouteResolver sets how the route pattern is resolved. It is called
// after the handler returned.
func WithRouteResolver(fn RouteResolver) Option {
	return func(h *Hook) {
		h.resolveRoute = fn
	}
}

// WithRequestID sets how request IDs are obtained.
func WithRequestID(fn RequestIDFunc) Option {
	return func(h *Hook) {
		if fn != nil {
			h.requestID = fn
		}
	}
}

// NewHook returns a hook that opens sessions with the Config currently served
// by source and reports finalized records to reporter.
func NewHook(source capture.ConfigSource, reporter capture.Reporter, opts ...Option) *Hook {
	h := &Hook{
		source:      source,
		reporter:    reporter,
		logger:      slog.Default().With("component", "capture.http"),
		isStreaming: DefaultStreamingDetector,
		requestID:   headerRequestID,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func headerRequestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.New().String()
}

type sessionKey struct{}

type exchange struct {
	session *capture.Session
	writer  *captureWriter
}

// SessionFromContext returns the capture session serving the request, if any.
func SessionFromContext(ctx context.Context) (*capture.Session, bool) {
	ex, ok := ctx.Value(sessionKey{}).(*exchange)
	if !ok {
		return nil, false
	}
	return ex.session, true
}

// OnRequestStart opens a session and captures the request. When capture is
// disabled w and r are returned unchanged.
func (h *Hook) OnRequestStart(w http.ResponseWriter, r *http.Request) (http.ResponseWriter, *http.Request) {
	cfg := h.source.Current()
	if cfg == nil || !cfg.Enabled() {
		return w, r
	}

	session := capture.NewSession(cfg,
		capture.WithReporter(h.reporter),
		capture.WithObserver(h.observer),
		capture.WithLogger(h.logger),
	)

	meta := capture.RequestMeta{
		Method:        r.Method,
		URL:           requestURL(r),
		RoutePath:     r.URL.Path,
		RemoteAddr:    r.RemoteAddr,
		Header:        r.Header,
		Query:         r.URL.Query(),
		ContentLength: r.ContentLength,
		RequestID:     h.callRequestID(r),
	}
	if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
		meta.TraceID = sc.TraceID().String()
		meta.SpanID = sc.SpanID().String()
	}

	orig := r.Body
	var body io.Reader
	if orig != nil && orig != http.NoBody {
		body = orig
	}
	replay, err := session.CaptureRequest(meta, body)
	if err != nil {
		h.logger.Warn("request capture skipped", "error", err)
	}

	ex := &exchange{
		session: session,
		writer:  newCaptureWriter(w, cfg.MaxResponseBodyBytes(), h.detectStreaming),
	}
	r = r.WithContext(context.WithValue(r.Context(), sessionKey{}, ex))
	if body != nil && replay != nil {
		r.Body = &replayBody{Reader: replay, closer: orig}
	}

	if err := session.BeginHandler(); err != nil {
		h.logger.Debug("capture session not started", "error", err)
	}
	return ex.writer, r
}

// OnResponseReady captures the response and finalizes the session.
func (h *Hook) OnResponseReady(w http.ResponseWriter, r *http.Request) {
	ex, ok := r.Context().Value(sessionKey{}).(*exchange)
	if !ok {
		return
	}
	session := ex.session
	if session.State().Terminal() {
		return
	}

	if err := r.Context().Err(); err != nil {
		session.Abort("request context done: " + err.Error())
		return
	}

	if h.resolveRoute != nil {
		session.SetRoutePath(h.callRouteResolver(r))
	}

	cw := ex.writer
	meta := cw.meta()

	var err error
	if cw.streaming || h.detectStreaming(meta.Status, meta.Header, cw.flushed) {
		err = session.CaptureStreamingResponse(meta)
	} else {
		err = session.CaptureResponse(meta, cw.buf.Bytes())
	}
	if err != nil {
		h.logger.Debug("response capture skipped", "error", err)
		return
	}

	if _, err := session.Finalize(context.WithoutCancel(r.Context())); err != nil {
		h.logger.Debug("capture session not finalized", "error", err)
	}
}

// OnHandlerPanic records a handler panic on the session and finalizes it.
// http.ErrAbortHandler aborts the session instead.
func (h *Hook) OnHandlerPanic(w http.ResponseWriter, r *http.Request, v any) {
	ex, ok := r.Context().Value(sessionKey{}).(*exchange)
	if !ok {
		return
	}
	if v == http.ErrAbortHandler {
		ex.session.Abort("handler aborted")
		return
	}

	ex.session.RecordPanic(v)
	if !ex.writer.wroteHeader {
		ex.writer.status = http.StatusInternalServerError
	}
	h.OnResponseReady(w, r)
}

// The callbacks below come from the host application. A panic in one is
// logged and replaced with a fallback so it never reaches the exchange.

func (h *Hook) detectStreaming(status int, header http.Header, flushed bool) (streaming bool) {
	defer func() {
		if v := recover(); v != nil {
			h.logger.Error("streaming detector panicked", "panic", fmt.Sprint(v))
			streaming = flushed
		}
	}()
	return h.isStreaming(status, header, flushed)
}

func (h *Hook) callRouteResolver(r *http.Request) (route string) {
	defer func() {
		if v := recover(); v != nil {
			h.logger.Error("route resolver panicked", "panic", fmt.Sprint(v))
			route = ""
		}
	}()
	return h.resolveRoute(r)
}

func (h *Hook) callRequestID(r *http.Request) (id string) {
	defer func() {
		if v := recover(); v != nil {
			h.logger.Error("request ID func panicked", "panic", fmt.Sprint(v))
			id = uuid.New().String()
		}
	}()
	return h.requestID(r)
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// replayBody serves the replayed request bytes and closes the original body.
type replayBody struct {
	io.Reader
	closer io.Closer
}

func (b *replayBody) Close() error {
	return b.closer.Close()
}
