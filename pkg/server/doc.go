// Package server runs the tap HTTP server.
//
// Every request passes through the same middleware chain:
//
//	Recovery -> RequestID -> Tracing -> Logging -> Metrics -> Capture -> handler
//
// Capture is the innermost layer, so a handler panic is recorded on the
// capture session before Recovery turns it into a JSON 500 response. The
// operational endpoints (/health, /ready, /version and the metrics path) are
// registered outside the capture group and are never captured.
//
// With an upstream configured every other path is forwarded with
// httputil.ReverseProxy. Without one the server answers a small set of demo
// routes that exercise the capture pipeline:
//
//	GET  /hello        JSON greeting
//	POST /echo         echoes the request body
//	GET  /users/{id}   JSON user including a password field
//	GET  /stream       server-sent events, flushed per event
//	GET  /panic        panics, to show error capture and recovery
package server
