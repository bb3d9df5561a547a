package middleware

import (
	"net/http"
	"time"
)

// RequestRecorder receives one observation per completed request.
type RequestRecorder interface {
	RecordRequest(method, route string, status int, duration time.Duration)
}

// RouteFunc returns the route label for a request after it was handled.
type RouteFunc func(r *http.Request) string

// MetricsMiddleware reports every request to recorder. route is evaluated
// after the handler returns, so routers that resolve patterns lazily (chi)
// can supply them.
func MetricsMiddleware(recorder RequestRecorder, route RouteFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := newStatusWriter(w)

			next.ServeHTTP(sw, r)

			label := r.URL.Path
			if route != nil {
				label = route(r)
			}
			recorder.RecordRequest(r.Method, label, sw.status, time.Since(start))
		})
	}
}
