// Package reporter persists finalized capture records in the background.
//
// Reporter implements capture.Reporter. Report never blocks the request
// path: records are sent on a bounded channel with a non-blocking send and
// are dropped (and counted) when the channel is full. A single worker drains
// the channel and writes through a circuit breaker, so a failing storage
// backend is skipped quickly instead of stalling the worker on every record.
//
// Close stops accepting records and drains the channel before returning.
package reporter
