// Package export writes capture records as JSON or CSV.
//
// Both exporters support an in-memory Export over a slice and an
// ExportStream over a channel, which pairs with report.Storage.QueryStream
// for large result sets.
package export
