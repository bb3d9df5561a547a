package export

import (
	"context"
	"encoding/json"
	"io"

	"mercator-hq/tap/pkg/capture"
	"mercator-hq/tap/pkg/report"
)

// JSONExporter exports capture records to JSON format.
type JSONExporter struct {
	// Pretty enables pretty-printing with indentation.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{
		Pretty: pretty,
	}
}

// Export writes records to w. A single record is written as a JSON object,
// several as an array, and none as an empty array.
func (e *JSONExporter) Export(ctx context.Context, records []*capture.Record, w io.Writer) error {
	if len(records) == 0 {
		_, err := w.Write([]byte("[]"))
		return err
	}

	var v any = records
	if len(records) == 1 {
		v = records[0]
	}

	data, err := e.marshal(v, "")
	if err != nil {
		return report.NewExportError("json", len(records), err)
	}

	if _, err := w.Write(data); err != nil {
		return report.NewExportError("json", len(records), err)
	}

	return nil
}

// ExportStream writes records from recordsCh to w as a JSON array, one
// record at a time.
func (e *JSONExporter) ExportStream(ctx context.Context, recordsCh <-chan *capture.Record, w io.Writer) error {
	if _, err := w.Write([]byte("[")); err != nil {
		return report.NewExportError("json", 0, err)
	}

	first := true
	recordCount := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case record, ok := <-recordsCh:
			if !ok {
				if _, err := w.Write([]byte("]")); err != nil {
					return report.NewExportError("json", recordCount, err)
				}
				return nil
			}

			if !first {
				sep := ","
				if e.Pretty {
					sep = ",\n"
				}
				if _, err := io.WriteString(w, sep); err != nil {
					return report.NewExportError("json", recordCount, err)
				}
			}
			first = false

			data, err := e.marshal(record, "  ")
			if err != nil {
				return report.NewExportError("json", recordCount, err)
			}
			if _, err := w.Write(data); err != nil {
				return report.NewExportError("json", recordCount, err)
			}

			recordCount++
		}
	}
}

func (e *JSONExporter) marshal(v any, prefix string) ([]byte, error) {
	if e.Pretty {
		return json.MarshalIndent(v, prefix, "  ")
	}
	return json.Marshal(v)
}
