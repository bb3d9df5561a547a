// Package middleware provides HTTP middleware for cross-cutting concerns.
//
// # Middleware Chain
//
// The server chains middleware in this order (outermost first):
//
//	Recovery → RequestID → tracing → Logging → Metrics → capture → handler
//
// Recovery sits outside the capture middleware so a handler panic is first
// recorded on the capture record, then re-raised and turned into a 500 here.
//
// # Request ID
//
// RequestIDMiddleware reuses a client-supplied X-Request-ID or generates a
// UUID v4, stores it in the context (see logging.WithRequestID) and echoes it
// in the response header.
//
// # Logging
//
// LoggingMiddleware logs one line per request at a level derived from the
// status code:
//
//	{"level":"INFO","msg":"request completed","method":"POST","path":"/echo",
//	 "status":200,"latency_ms":3,"request_id":"550e8400-..."}
package middleware
