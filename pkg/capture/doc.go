// Package capture implements the capture-and-sanitize pipeline that sits
// between an HTTP server and a traffic reporter.
//
// A Session follows one request/response exchange through a fixed sequence of
// states:
//
//	Open → RequestCaptured → HandlerRunning → ResponseCaptured → Finalized
//	  ↘            ↘                ↘                 ↘
//	                          Aborted
//
// At each capture step the payload is gated by the size limiter, decoded by
// the configured Transformer, and scrubbed by the KeyMasker before it is
// stored on the session's Record. Finalize hands the Record to a Reporter.
//
// # Body outcomes
//
// Every captured body ends up in exactly one of four states:
//
//   - captured: the sanitized JSON value is kept
//   - skipped: the payload exceeded its size limit
//   - parse-failed: the transformer errored, panicked, or returned a value
//     that cannot be encoded as JSON
//   - streaming: the response was produced incrementally (responses only)
//
// None of these outcomes is visible to the client. The handler always reads
// the full original request body and the client always receives the full
// original response.
//
// # Masking
//
// Keys are matched case-insensitively against the configured hidden keys at
// every depth of the decoded body. Matching values are replaced with
// RedactionMarker. The Authorization header is handled separately: its scheme
// is preserved and only the credentials are replaced.
//
// # Configuration
//
// Config is immutable once built. Hot reload is done by swapping a whole new
// Config into an AtomicSource; sessions keep the snapshot they started with.
//
//	cfg, err := capture.NewConfig(
//	    capture.WithHiddenKeys("password", "token"),
//	    capture.WithMaxBodyBytes(1<<20),
//	)
//	source := capture.NewAtomicSource(cfg)
//
// The net/http integration lives in the httpcapture subpackage.
package capture
