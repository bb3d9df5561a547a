package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/tap/pkg/capture"
	"mercator-hq/tap/pkg/capture/httpcapture"
	"mercator-hq/tap/pkg/config"
	"mercator-hq/tap/pkg/proxy/middleware"
	"mercator-hq/tap/pkg/telemetry/health"
	"mercator-hq/tap/pkg/telemetry/metrics"
)

type recordSink struct {
	mu      sync.Mutex
	records []*capture.Record
}

func (s *recordSink) Report(_ context.Context, rec *capture.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

func (s *recordSink) all() []*capture.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*capture.Record(nil), s.records...)
}

func newHook(sink *recordSink, cfg *config.ServerConfig) *httpcapture.Hook {
	capCfg := capture.MustConfig(capture.WithHiddenKeys("password", "api_key"))
	return httpcapture.NewHook(capCfg, sink, HookOptions(cfg)...)
}

func newTestServer(t *testing.T, cfg *config.ServerConfig, opts ...Option) (*Server, *recordSink) {
	t.Helper()
	if cfg == nil {
		cfg = &config.NewDefaultConfig().Server
	}
	sink := &recordSink{}
	srv, err := New(cfg, newHook(sink, cfg), opts...)
	require.NoError(t, err)
	return srv, sink
}

func do(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func bodyJSON(t *testing.T, b capture.Body) string {
	t.Helper()
	out, err := json.Marshal(b)
	require.NoError(t, err)
	return string(out)
}

func TestNew_RequiresConfigAndHook(t *testing.T) {
	_, err := New(nil, newHook(&recordSink{}, nil))
	assert.Error(t, err)

	_, err = New(&config.ServerConfig{}, nil)
	assert.Error(t, err)
}

func TestNew_InvalidUpstream(t *testing.T) {
	_, err := New(&config.ServerConfig{Upstream: "http://[::1"}, newHook(&recordSink{}, nil))
	assert.Error(t, err)
}

func TestOperationalEndpointsAreNotCaptured(t *testing.T) {
	srv, sink := newTestServer(t, nil, WithVersion(health.NewVersionInfo("1.2.3", "abc", "")))

	for _, path := range []string{"/health", "/ready", "/version"} {
		resp := do(srv, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, resp.Code, path)
		assert.NotEmpty(t, resp.Header().Get(middleware.RequestIDHeader), path)
	}

	resp := do(srv, httptest.NewRequest(http.MethodGet, "/version", nil))
	assert.Contains(t, resp.Body.String(), `"version":"1.2.3"`)
	assert.Empty(t, sink.all())
}

func TestReadyReportsFailingChecks(t *testing.T) {
	checker := health.New(time.Second)
	checker.Register("storage", func(context.Context) error { return assert.AnError })
	srv, _ := newTestServer(t, nil, WithHealth(checker))

	resp := do(srv, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestHello_IsCapturedWithRoutePattern(t *testing.T) {
	srv, sink := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/hello?name=tap", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	resp := do(srv, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"message":"hello, tap"}`, resp.Body.String())

	records := sink.all()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "req-42", rec.RequestID)
	assert.Equal(t, "/hello", rec.Request.RoutePath)
	assert.Equal(t, http.MethodGet, rec.Request.Method)
	assert.Equal(t, http.StatusOK, rec.Response.Status)
	assert.JSONEq(t, `{"message":"hello, tap"}`, bodyJSON(t, rec.Response.Body))
}

func TestUser_MasksCapturedResponseOnly(t *testing.T) {
	srv, sink := newTestServer(t, nil)

	resp := do(srv, httptest.NewRequest(http.MethodGet, "/users/7", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "hunter2", "client response must be unchanged")

	records := sink.all()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "/users/{id}", rec.Request.RoutePath)

	captured := bodyJSON(t, rec.Response.Body)
	assert.NotContains(t, captured, "hunter2")
	assert.NotContains(t, captured, "sk-demo-7")
	assert.Contains(t, captured, `"password":"***"`)
	assert.Contains(t, captured, `"email":"user7@example.com"`)
}

func TestEcho_CapturesRequestAndStillServesBody(t *testing.T) {
	srv, sink := newTestServer(t, nil)

	body := `{"user":"ada","password":"secret"}`
	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer abc123")
	resp := do(srv, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, body, resp.Body.String())
	assert.Equal(t, "application/json", resp.Header().Get("Content-Type"))

	records := sink.all()
	require.Len(t, records, 1)
	rec := records[0]
	assert.JSONEq(t, `{"user":"ada","password":"***"}`, bodyJSON(t, rec.Request.Body))
	assert.NotContains(t, rec.Request.Headers["Authorization"], "abc123")
}

func TestEcho_MethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp := do(srv, httptest.NewRequest(http.MethodGet, "/echo", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, resp.Code)
}

func TestStream_RecordsStreamingMarker(t *testing.T) {
	srv, sink := newTestServer(t, nil)

	resp := do(srv, httptest.NewRequest(http.MethodGet, "/stream?count=2", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 2, strings.Count(resp.Body.String(), "data: "))
	assert.True(t, resp.Flushed)

	records := sink.all()
	require.Len(t, records, 1)
	assert.Equal(t, capture.BodyStreaming, records[0].Response.Body.Status)
}

func TestStream_InvalidCount(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp := do(srv, httptest.NewRequest(http.MethodGet, "/stream?count=0", nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "invalid_request")
}

func TestPanic_RecordedThenRecovered(t *testing.T) {
	srv, sink := newTestServer(t, nil)

	resp := do(srv, httptest.NewRequest(http.MethodGet, "/panic", nil))
	require.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Contains(t, resp.Body.String(), "server_error")

	records := sink.all()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, http.StatusInternalServerError, rec.Response.Status)
	require.Len(t, rec.Errors, 1)
	assert.Equal(t, "demo handler panic", rec.Errors[0].Message)
}

func TestMetrics(t *testing.T) {
	collector := metrics.NewCollector(&metrics.Config{Enabled: true}, prometheus.NewRegistry())
	srv, _ := newTestServer(t, nil, WithMetrics(collector, "/internal/metrics"))

	do(srv, httptest.NewRequest(http.MethodGet, "/users/1", nil))

	resp := do(srv, httptest.NewRequest(http.MethodGet, "/internal/metrics", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `tap_requests_total{code="200",method="GET",route="/users/{id}"} 1`)
}

func TestReverseProxy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"path":      r.URL.Path,
			"forwarded": r.Header.Get("X-Forwarded-For"),
			"body":      string(body),
			"password":  "upstream-secret",
		})
	}))
	defer upstream.Close()

	srv, sink := newTestServer(t, &config.ServerConfig{Upstream: upstream.URL})

	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(`{"id":1}`))
	req.Header.Set("Content-Type", "application/json")
	resp := do(srv, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	var got map[string]string
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	assert.Equal(t, "/api/orders", got["path"])
	assert.Equal(t, `{"id":1}`, got["body"])
	assert.NotEmpty(t, got["forwarded"])
	assert.Equal(t, "upstream-secret", got["password"])

	records := sink.all()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "/*", rec.Request.RoutePath)
	assert.Equal(t, http.StatusCreated, rec.Response.Status)
	assert.Equal(t, capture.BodyCaptured, rec.Response.Body.Status)
	assert.NotContains(t, bodyJSON(t, rec.Response.Body), "upstream-secret")
	assert.Contains(t, bodyJSON(t, rec.Response.Body), `"password":"***"`)
}

func TestReverseProxy_ChunkedReplyIsCaptured(t *testing.T) {
	items := make([]string, 200)
	for i := range items {
		items[i] = fmt.Sprintf("item-%03d", i)
	}
	payload, err := json.Marshal(map[string]any{"items": items, "password": "upstream-secret"})
	require.NoError(t, err)
	require.Greater(t, len(payload), 2048)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		half := len(payload) / 2
		_, _ = w.Write(payload[:half])
		w.(http.Flusher).Flush()
		_, _ = w.Write(payload[half:])
	}))
	defer upstream.Close()

	srv, sink := newTestServer(t, &config.ServerConfig{Upstream: upstream.URL})

	resp := do(srv, httptest.NewRequest(http.MethodGet, "/api/items", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, string(payload), resp.Body.String())

	records := sink.all()
	require.Len(t, records, 1)
	body := records[0].Response.Body
	require.Equal(t, capture.BodyCaptured, body.Status)
	assert.Contains(t, bodyJSON(t, body), `"password":"***"`)
	assert.Contains(t, bodyJSON(t, body), "item-199")
	assert.Equal(t, int64(len(payload)), records[0].Response.Size)
}

func TestReverseProxy_EventStreamStaysStreaming(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: one\n\n")
		w.(http.Flusher).Flush()
		_, _ = io.WriteString(w, "data: two\n\n")
	}))
	defer upstream.Close()

	srv, sink := newTestServer(t, &config.ServerConfig{Upstream: upstream.URL})

	resp := do(srv, httptest.NewRequest(http.MethodGet, "/events", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "data: one\n\ndata: two\n\n", resp.Body.String())

	records := sink.all()
	require.Len(t, records, 1)
	assert.Equal(t, capture.BodyStreaming, records[0].Response.Body.Status)
}

func TestReverseProxy_GzipReplyIsDecodedForCapture(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		_, _ = io.WriteString(zw, `{"user":"a","password":"upstream-secret"}`)
		_ = zw.Close()
	}))
	defer upstream.Close()

	srv, sink := newTestServer(t, &config.ServerConfig{Upstream: upstream.URL})

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	resp := do(srv, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "gzip", resp.Header().Get("Content-Encoding"), "the client receives the upstream encoding")
	zr, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.JSONEq(t, `{"user":"a","password":"upstream-secret"}`, string(plain))

	records := sink.all()
	require.Len(t, records, 1)
	body := records[0].Response.Body
	require.Equal(t, capture.BodyCaptured, body.Status)
	assert.Equal(t, `{"user":"a","password":"***"}`, bodyJSON(t, body))
}

func TestReverseProxy_UpstreamUnavailable(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	url := upstream.URL
	upstream.Close()

	srv, sink := newTestServer(t, &config.ServerConfig{Upstream: url})

	resp := do(srv, httptest.NewRequest(http.MethodGet, "/anything", nil))
	assert.Equal(t, http.StatusBadGateway, resp.Code)
	assert.Contains(t, resp.Body.String(), "upstream_error")

	records := sink.all()
	require.Len(t, records, 1)
	assert.Equal(t, http.StatusBadGateway, records[0].Response.Status)
}

func TestRoutePattern_FallsBackToPath(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/unrouted", nil)
	assert.Equal(t, "/unrouted", RoutePattern(req))
}

func TestStartAndShutdown(t *testing.T) {
	cfg := &config.ServerConfig{
		ListenAddress:   "127.0.0.1:0",
		ShutdownTimeout: time.Second,
	}
	srv, _ := newTestServer(t, cfg)
	assert.False(t, srv.IsRunning())
	assert.NoError(t, srv.Shutdown(context.Background()), "shutdown before start is a no-op")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	require.Eventually(t, srv.IsRunning, 2*time.Second, 10*time.Millisecond)
	assert.Error(t, srv.Start(ctx), "second Start must fail")

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return after the context was cancelled")
	}
	assert.False(t, srv.IsRunning())
}

func TestStart_ListenError(t *testing.T) {
	srv, _ := newTestServer(t, &config.ServerConfig{ListenAddress: "256.0.0.1:bad"})
	assert.Error(t, srv.Start(context.Background()))
	assert.False(t, srv.IsRunning())
}
