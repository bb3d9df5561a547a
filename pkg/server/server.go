package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"

	"github.com/go-chi/chi/v5"

	"mercator-hq/tap/pkg/capture/httpcapture"
	"mercator-hq/tap/pkg/config"
	"mercator-hq/tap/pkg/proxy/middleware"
	"mercator-hq/tap/pkg/telemetry/health"
	"mercator-hq/tap/pkg/telemetry/metrics"
	"mercator-hq/tap/pkg/telemetry/tracing"
)

// Server is the tap HTTP server.
type Server struct {
	config      *config.ServerConfig
	hook        httpcapture.LifecycleHook
	collector   *metrics.Collector
	metricsPath string
	tracer      *tracing.Tracer
	checker     *health.Checker
	version     health.VersionInfo
	upstream    *url.URL
	logger      *slog.Logger

	handler    http.Handler
	httpServer *http.Server
	listener   net.Listener
	mu         sync.RWMutex
	isRunning  bool
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics serves the collector's registry on path and records every
// request through it.
func WithMetrics(c *metrics.Collector, path string) Option {
	return func(s *Server) {
		s.collector = c
		if path != "" {
			s.metricsPath = path
		}
	}
}

// WithTracer starts a server span per request and propagates it upstream.
func WithTracer(t *tracing.Tracer) Option {
	return func(s *Server) {
		s.tracer = t
	}
}

// WithHealth sets the checker behind /health and /ready.
func WithHealth(c *health.Checker) Option {
	return func(s *Server) {
		if c != nil {
			s.checker = c
		}
	}
}

// WithVersion sets the build information served on /version.
func WithVersion(info health.VersionInfo) Option {
	return func(s *Server) {
		s.version = info
	}
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New builds a server for cfg. Requests outside the operational endpoints are
// captured through hook.
func New(cfg *config.ServerConfig, hook httpcapture.LifecycleHook, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config is required")
	}
	if hook == nil {
		return nil, errors.New("capture hook is required")
	}

	s := &Server{
		config:      cfg,
		hook:        hook,
		metricsPath: config.DefaultMetricsPath,
		checker:     health.New(0),
		version:     health.NewVersionInfo("dev", "", ""),
		logger:      slog.Default().With("component", "server"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.Upstream != "" {
		u, err := url.Parse(cfg.Upstream)
		if err != nil {
			return nil, fmt.Errorf("invalid upstream %q: %w", cfg.Upstream, err)
		}
		s.upstream = u
	}

	s.handler = s.setupRoutes()
	return s, nil
}

// RoutePattern returns the chi route pattern that matched r, or the URL path
// when no route matched.
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// HookOptions returns the capture hook options for cfg. In proxy mode flushes
// come from httputil.ReverseProxy relaying chunked replies, so only the
// Content-Type marks a response as streaming.
func HookOptions(cfg *config.ServerConfig) []httpcapture.Option {
	opts := []httpcapture.Option{
		httpcapture.WithRouteResolver(RoutePattern),
		httpcapture.WithRequestID(middleware.RequestIDFromRequest),
	}
	if cfg != nil && cfg.Upstream != "" {
		opts = append(opts, httpcapture.WithStreamingDetector(httpcapture.ContentTypeStreamingDetector))
	}
	return opts
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// setupRoutes builds the router and middleware chain.
func (s *Server) setupRoutes() http.Handler {
	r := chi.NewRouter()

	// Recovery is outermost so it sees panics re-raised by the capture layer.
	r.Use(middleware.RecoveryMiddleware)
	r.Use(middleware.RequestIDMiddleware)
	if s.tracer != nil {
		r.Use(s.tracer.Middleware)
	}
	r.Use(middleware.LoggingMiddleware)
	if s.collector != nil {
		r.Use(middleware.MetricsMiddleware(s.collector, RoutePattern))
	}

	r.Handle("/health", s.checker.LivenessHandler())
	r.Handle("/ready", s.checker.ReadinessHandler())
	r.Handle("/version", health.VersionHandler(s.version))
	if s.collector != nil {
		r.Handle(s.metricsPath, s.collector.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(httpcapture.Middleware(s.hook))
		if s.upstream != nil {
			r.Handle("/*", s.newReverseProxy())
			return
		}
		registerDemoRoutes(r)
	})

	return r
}

func (s *Server) newReverseProxy() *httputil.ReverseProxy {
	target := s.upstream
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			if s.tracer != nil {
				s.tracer.Inject(pr.In.Context(), pr.Out.Header)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			s.logger.WarnContext(r.Context(), "upstream request failed",
				"upstream", target.String(),
				"path", r.URL.Path,
				"error", err,
			)
			middleware.WriteError(w, r, http.StatusBadGateway, "The upstream service is unavailable.", "upstream_error")
		},
	}
}

// Start listens on the configured address and serves until ctx is done or
// Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}

	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}

	httpServer := &http.Server{
		Handler:        s.handler,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	s.listener = ln
	s.httpServer = httpServer
	s.isRunning = true
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting capture server",
			"address", ln.Addr().String(),
			"upstream", s.config.Upstream,
		)

		err := httpServer.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		} else if err != nil {
			err = fmt.Errorf("server error: %w", err)
		}
		errChan <- err
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		if err := s.Shutdown(context.Background()); err != nil {
			return err
		}
		return <-errChan
	case err := <-errChan:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	}
}

// Shutdown gracefully stops the server, waiting up to the configured shutdown
// timeout for in-flight requests. It is a no-op when the server is not
// running.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	httpServer := s.httpServer
	s.mu.Unlock()

	s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

	if s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}

	if err := httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("error during server shutdown", "error", err)
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.logger.Info("capture server stopped")
	return nil
}

// Addr returns the address the server listens on. Before Start it returns
// the configured address.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.ListenAddress
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
