package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"mercator-hq/tap/pkg/capture"
	"mercator-hq/tap/pkg/report"
)

// CSVExporter exports capture records to CSV format.
type CSVExporter struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{
		IncludeHeader: includeHeader,
	}
}

// Export writes records to w in CSV format. Nested values (headers, query,
// bodies, errors) are written as JSON strings.
func (e *CSVExporter) Export(ctx context.Context, records []*capture.Record, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(headerRow()); err != nil {
			return report.NewExportError("csv", len(records), err)
		}
	}

	for _, record := range records {
		row, err := recordToRow(record)
		if err != nil {
			return report.NewExportError("csv", len(records), err)
		}
		if err := writer.Write(row); err != nil {
			return report.NewExportError("csv", len(records), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return report.NewExportError("csv", len(records), err)
	}
	return nil
}

// ExportStream writes records from recordsCh to w in CSV format, flushing
// every 100 rows.
func (e *CSVExporter) ExportStream(ctx context.Context, recordsCh <-chan *capture.Record, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(headerRow()); err != nil {
			return report.NewExportError("csv", 0, err)
		}
	}

	recordCount := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case record, ok := <-recordsCh:
			if !ok {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return report.NewExportError("csv", recordCount, err)
				}
				return nil
			}

			row, err := recordToRow(record)
			if err != nil {
				return report.NewExportError("csv", recordCount, err)
			}
			if err := writer.Write(row); err != nil {
				return report.NewExportError("csv", recordCount, err)
			}

			recordCount++

			if recordCount%100 == 0 {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return report.NewExportError("csv", recordCount, err)
				}
			}
		}
	}
}

func headerRow() []string {
	return []string{
		"id", "request_id", "timestamp", "trace_id", "span_id",
		"method", "url", "route_path", "ip", "user_agent",
		"request_headers", "query", "request_body_status", "request_body", "request_size",
		"status", "response_headers", "response_body_status", "response_body", "response_size",
		"load_time_ms", "errors",
		"server_ip", "server_hostname", "server_software",
	}
}

func recordToRow(record *capture.Record) ([]string, error) {
	fields := []any{
		record.Request.Headers,
		record.Request.Query,
		record.Request.Body,
		record.Response.Headers,
		record.Response.Body,
		record.Errors,
	}
	encoded := make([]string, len(fields))
	for i, v := range fields {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		encoded[i] = string(data)
	}

	return []string{
		record.ID,
		record.RequestID,
		formatTime(record.Timestamp),
		record.TraceID,
		record.SpanID,
		record.Request.Method,
		record.Request.URL,
		record.Request.RoutePath,
		record.Request.ClientIP,
		record.Request.UserAgent,
		encoded[0],
		encoded[1],
		bodyStatus(record.Request.Body),
		encoded[2],
		strconv.FormatInt(record.Request.Size, 10),
		strconv.Itoa(record.Response.Status),
		encoded[3],
		bodyStatus(record.Response.Body),
		encoded[4],
		strconv.FormatInt(record.Response.Size, 10),
		strconv.FormatFloat(record.Response.LoadTimeMS, 'f', 3, 64),
		encoded[5],
		record.Server.IP,
		record.Server.Hostname,
		record.Server.Software,
	}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func bodyStatus(b capture.Body) string {
	if b.Status == "" {
		return string(capture.BodyCaptured)
	}
	return string(b.Status)
}
