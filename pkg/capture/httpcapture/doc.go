// Package httpcapture connects capture sessions to net/http.
//
// The integration is two hook points. OnRequestStart opens a session,
// captures the request, and wraps the response writer. OnResponseReady
// captures the response and finalizes the session. Middleware composes the
// hooks around any http.Handler:
//
//	hook := httpcapture.NewHook(source, reporter)
//	handler := httpcapture.Middleware(hook)(mux)
//
// Streaming responses are detected through a StreamingDetector. The default
// treats a response as streaming once the handler flushes it, or when its
// Content-Type is text/event-stream or application/x-ndjson. Streaming
// responses are never buffered.
//
// A request whose context is cancelled before the response is ready is
// aborted and produces no record. A handler panic is recorded on the session
// and then re-raised so the server's own recovery still runs.
package httpcapture
