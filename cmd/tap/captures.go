package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/tap/pkg/capture"
	"mercator-hq/tap/pkg/cli"
	"mercator-hq/tap/pkg/report"
)

// maxTextRecords bounds how many records the text format prints.
const maxTextRecords = 10

// captureFilters holds the record filter flags shared by the captures
// subcommands.
type captureFilters struct {
	timeRange string
	since     time.Duration
	requestID string
	method    string
	route     string
	clientIP  string
	statusMin int
	statusMax int
	errors    string
	reqBody   string
	respBody  string
	limit     int
	offset    int
	sortBy    string
	order     string
}

var capturesFlags struct {
	filters      captureFilters
	queryFormat  string
	exportFormat string
	output       string
}

var capturesCmd = &cobra.Command{
	Use:   "captures",
	Short: "Inspect stored capture records",
	Long: `Query, count and export the sanitized capture records in the
configured store.

Time Range Format:
  RFC3339 interval format: "start/end"
  Example: "2026-01-01T00:00:00Z/2026-01-02T00:00:00Z"
  Alternatively --since selects records newer than a duration, e.g. "24h".

Examples:
  # Failed requests in the last hour
  tap captures query --since 1h --status-min 500

  # Records whose handler panicked or transformer failed
  tap captures query --errors true --format json

  # Count POSTs to a route
  tap captures count --method POST --route "/users/{id}"

  # Export everything to CSV
  tap captures export --format csv --output captures.csv`,
}

var capturesQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query capture records",
	RunE:  queryCaptures,
}

var capturesCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Count capture records",
	RunE:  countCaptures,
}

var capturesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export capture records as JSON or CSV",
	RunE:  exportCaptures,
}

func init() {
	rootCmd.AddCommand(capturesCmd)
	capturesCmd.AddCommand(capturesQueryCmd, capturesCountCmd, capturesExportCmd)

	f := &capturesFlags.filters
	pf := capturesCmd.PersistentFlags()
	pf.StringVar(&f.timeRange, "time-range", "", "time range (RFC3339 interval: start/end)")
	pf.DurationVar(&f.since, "since", 0, "only records newer than this duration, e.g. 24h")
	pf.StringVar(&f.requestID, "request-id", "", "filter by request ID")
	pf.StringVar(&f.method, "method", "", "filter by HTTP method")
	pf.StringVar(&f.route, "route", "", "filter by route pattern")
	pf.StringVar(&f.clientIP, "client-ip", "", "filter by client IP")
	pf.IntVar(&f.statusMin, "status-min", 0, "minimum response status")
	pf.IntVar(&f.statusMax, "status-max", 0, "maximum response status")
	pf.StringVar(&f.errors, "errors", "", "filter by presence of error entries (true, false)")
	pf.StringVar(&f.reqBody, "request-body", "", "filter by request body status (captured, skipped, parse-failed, streaming)")
	pf.StringVar(&f.respBody, "response-body", "", "filter by response body status (captured, skipped, parse-failed, streaming)")

	for _, c := range []*cobra.Command{capturesQueryCmd, capturesExportCmd} {
		c.Flags().IntVar(&f.limit, "limit", 0, "max results (default 100 for query, unlimited for export)")
		c.Flags().IntVar(&f.offset, "offset", 0, "pagination offset")
		c.Flags().StringVar(&f.sortBy, "sort", "", "sort field: timestamp, status, load_time, response_size")
		c.Flags().StringVar(&f.order, "order", "", "sort order: asc, desc")
		c.Flags().StringVarP(&capturesFlags.output, "output", "o", "", "output file (default: stdout)")
	}
	capturesQueryCmd.Flags().StringVar(&capturesFlags.queryFormat, "format", "text", "output format: text, json, csv")
	capturesExportCmd.Flags().StringVar(&capturesFlags.exportFormat, "format", "json", "output format: json, csv")
}

// query builds a report.Query from the flags. now anchors --since.
func (f *captureFilters) query(now time.Time) (*report.Query, error) {
	q := &report.Query{
		RequestID:          f.requestID,
		Method:             f.method,
		RoutePath:          f.route,
		ClientIP:           f.clientIP,
		RequestBodyStatus:  capture.BodyStatus(f.reqBody),
		ResponseBodyStatus: capture.BodyStatus(f.respBody),
		Limit:              f.limit,
		Offset:             f.offset,
		SortBy:             f.sortBy,
		SortOrder:          f.order,
	}

	if f.timeRange != "" && f.since > 0 {
		return nil, errors.New("--time-range and --since are mutually exclusive")
	}
	if f.timeRange != "" {
		start, end, err := parseTimeRange(f.timeRange)
		if err != nil {
			return nil, err
		}
		q.StartTime, q.EndTime = &start, &end
	}
	if f.since > 0 {
		start := now.Add(-f.since)
		q.StartTime = &start
	}

	if f.statusMin > 0 {
		q.MinStatus = &f.statusMin
	}
	if f.statusMax > 0 {
		q.MaxStatus = &f.statusMax
	}

	switch strings.ToLower(f.errors) {
	case "":
	case "true", "yes":
		v := true
		q.HasErrors = &v
	case "false", "no":
		v := false
		q.HasErrors = &v
	default:
		return nil, fmt.Errorf("invalid --errors value %q (expected true or false)", f.errors)
	}

	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

func parseTimeRange(s string) (time.Time, time.Time, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid time range format (expected: start/end)")
	}

	start, err := time.Parse(time.RFC3339, parts[0])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time: %w", err)
	}
	end, err := time.Parse(time.RFC3339, parts[1])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end time: %w", err)
	}
	return start, end, nil
}

// openCaptureStore loads the configuration and opens its record store.
func openCaptureStore() (report.Storage, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openStorage(cfg)
}

// openOutput returns the --output file, or w when none is set.
func openOutput(w io.Writer) (io.Writer, func() error, error) {
	if capturesFlags.output == "" {
		return w, func() error { return nil }, nil
	}
	file, err := os.Create(capturesFlags.output)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return file, file.Close, nil
}

func queryCaptures(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(capturesFlags.queryFormat)
	if err != nil {
		return err
	}
	query, err := capturesFlags.filters.query(time.Now())
	if err != nil {
		return err
	}
	if query.Limit == 0 {
		query.Limit = report.DefaultLimit
	}

	store, err := openCaptureStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	records, err := store.Query(ctx, query)
	if err != nil {
		return cli.NewCommandError("captures query", fmt.Errorf("query failed: %w", err))
	}

	out, closeOut, err := openOutput(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeOut()

	if exporter := cli.NewExporter(format, true); exporter != nil {
		if err := exporter.Export(ctx, records, out); err != nil {
			return cli.NewCommandError("captures query", err)
		}
		return nil
	}
	return writeRecordsText(out, records, query)
}

func countCaptures(cmd *cobra.Command, args []string) error {
	query, err := capturesFlags.filters.query(time.Now())
	if err != nil {
		return err
	}

	store, err := openCaptureStore()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Count(cmd.Context(), query)
	if err != nil {
		return cli.NewCommandError("captures count", fmt.Errorf("count failed: %w", err))
	}
	fmt.Fprintln(cmd.OutOrStdout(), n)
	return nil
}

// streamExporter is implemented by exporters that consume a record channel.
type streamExporter interface {
	ExportStream(ctx context.Context, recordsCh <-chan *capture.Record, w io.Writer) error
}

func exportCaptures(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(capturesFlags.exportFormat)
	if err != nil {
		return err
	}
	exporter, ok := cli.NewExporter(format, true).(streamExporter)
	if !ok {
		return fmt.Errorf("export supports json and csv formats, got %q", format)
	}

	query, err := capturesFlags.filters.query(time.Now())
	if err != nil {
		return err
	}
	store, err := openCaptureStore()
	if err != nil {
		return err
	}
	defer store.Close()

	out, closeOut, err := openOutput(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeOut()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	recordsCh, errCh, err := store.QueryStream(ctx, query)
	if err != nil {
		return cli.NewCommandError("captures export", fmt.Errorf("query failed: %w", err))
	}
	if err := exporter.ExportStream(ctx, recordsCh, out); err != nil {
		return cli.NewCommandError("captures export", err)
	}
	if err := <-errCh; err != nil {
		return cli.NewCommandError("captures export", fmt.Errorf("query failed: %w", err))
	}
	return nil
}

func writeRecordsText(out io.Writer, records []*capture.Record, query *report.Query) error {
	if query.StartTime != nil && query.EndTime != nil {
		fmt.Fprintf(out, "Time range: %s to %s\n",
			query.StartTime.Format(time.RFC3339),
			query.EndTime.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "Total records: %d\n", len(records))

	if len(records) == 0 {
		fmt.Fprintln(out, "No records found.")
		return nil
	}

	for i, record := range records {
		if i == maxTextRecords {
			fmt.Fprintf(out, "\n... and %d more records\n", len(records)-maxTextRecords)
			fmt.Fprintln(out, "Use --limit and --offset for pagination, or --format json.")
			break
		}

		fmt.Fprintln(out)
		fmt.Fprintf(out, "Record ID: %s\n", record.ID)
		fmt.Fprintf(out, "Timestamp: %s\n", record.Timestamp.Format(time.RFC3339))
		if record.RequestID != "" {
			fmt.Fprintf(out, "Request ID: %s\n", record.RequestID)
		}
		fmt.Fprintf(out, "Request: %s %s\n", record.Request.Method, record.Request.URL)
		if record.Request.RoutePath != "" {
			fmt.Fprintf(out, "Route: %s\n", record.Request.RoutePath)
		}
		fmt.Fprintf(out, "Client IP: %s\n", record.Request.ClientIP)
		fmt.Fprintf(out, "Status: %d (%.2f ms, %s)\n",
			record.Response.Status, record.Response.LoadTimeMS, formatSize(record.Response.Size))
		for _, e := range record.Errors {
			fmt.Fprintf(out, "Error: [%s] %s: %s\n", e.Source, e.Type, e.Message)
		}
	}
	return nil
}

func formatSize(n int64) string {
	if n < 0 {
		return "size unknown"
	}
	return fmt.Sprintf("%d bytes", n)
}
