package cli

import (
	"fmt"
	"strings"

	"mercator-hq/tap/pkg/report"
	"mercator-hq/tap/pkg/report/export"
)

// OutputFormat represents the output format for command results.
type OutputFormat string

const (
	// FormatText is a human-readable summary (default).
	FormatText OutputFormat = "text"
	// FormatJSON is a JSON array of records.
	FormatJSON OutputFormat = "json"
	// FormatCSV is one CSV row per record.
	FormatCSV OutputFormat = "csv"
)

// ParseFormat parses a --format flag value. Matching is case-insensitive and
// an empty value selects FormatText.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unsupported output format %q (supported: text, json, csv)", s)
}

// NewExporter returns the record exporter for format. FormatText has no
// exporter and yields nil. pretty indents JSON and adds a CSV header row.
func NewExporter(format OutputFormat, pretty bool) report.Exporter {
	switch format {
	case FormatJSON:
		return export.NewJSONExporter(pretty)
	case FormatCSV:
		return export.NewCSVExporter(pretty)
	}
	return nil
}
