// Package report persists and retrieves sanitized capture records.
//
// # Architecture
//
//  1. Reporter - receives finalized records from capture sessions and
//     persists them asynchronously (package reporter)
//  2. Storage Backend - stores records in SQLite or memory (package storage)
//  3. Retention - prunes old records on a cron schedule (package retention)
//  4. Export - writes records as JSON or CSV (package export)
//
// # Recording Flow
//
//	capture.Session.Finalize
//	     ↓
//	reporter.Report (non-blocking enqueue, dropped when the queue is full)
//	     ↓
//	worker goroutine → circuit breaker → Storage.Store
//
// Records reaching this package are already sanitized. Nothing here inspects
// or alters body contents.
//
// # Querying
//
//	since := time.Now().Add(-time.Hour)
//	minStatus := 500
//	records, err := store.Query(ctx, &report.Query{
//	    StartTime: &since,
//	    Method:    "POST",
//	    MinStatus: &minStatus,
//	    Limit:     50,
//	})
package report
