package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"mercator-hq/tap/pkg/capture"
	"mercator-hq/tap/pkg/report"
)

// Driver names accepted by SQLiteConfig.Driver.
const (
	DriverCGO    = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPureGo = "sqlite"  // modernc.org/sqlite
)

var errMissingID = errors.New("record has no ID")

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// Driver selects the database/sql driver: "sqlite3" or "sqlite".
	// Default: "sqlite3"
	Driver string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/captures.db",
		Driver:       DriverCGO,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements report.Storage using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage opens the database, applies pragmas and creates the schema.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Driver == "" {
		config.Driver = DriverCGO
	}
	if config.Driver != DriverCGO && config.Driver != DriverPureGo {
		return nil, report.NewStorageError("sqlite", "open", fmt.Errorf("unknown driver %q", config.Driver))
	}

	logger := slog.Default().With("component", "report.storage.sqlite")

	db, err := sql.Open(config.Driver, dataSourceName(config))
	if err != nil {
		return nil, report.NewStorageError("sqlite", "open", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}

	s := &SQLiteStorage{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite storage initialized",
		"path", config.Path,
		"driver", config.Driver,
		"wal_mode", config.WALMode,
		"max_open_conns", config.MaxOpenConns,
	)

	return s, nil
}

// dataSourceName sets the busy timeout per connection. The two drivers spell
// connection pragmas differently.
func dataSourceName(config *SQLiteConfig) string {
	busyMs := config.BusyTimeout.Milliseconds()
	params := url.Values{}

	switch config.Driver {
	case DriverPureGo:
		params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyMs))
	default:
		params.Add("_busy_timeout", fmt.Sprintf("%d", busyMs))
	}

	return "file:" + config.Path + "?" + params.Encode()
}

func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return report.NewStorageError("sqlite", "enable_wal", err)
		}
		s.logger.Debug("WAL mode enabled")
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return report.NewStorageError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return report.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return report.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return report.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	s.logger.Debug("schema version verified", "version", version)
	return nil
}

// Store persists a record.
func (s *SQLiteStorage) Store(ctx context.Context, record *capture.Record) error {
	if record == nil || record.ID == "" {
		return report.NewStorageError("sqlite", "store", errMissingID)
	}

	cols, err := encodeRecord(record)
	if err != nil {
		return report.NewStorageError("sqlite", "encode", err)
	}

	query := `
		INSERT INTO captures (
			id, request_id, timestamp_ns, trace_id, span_id,
			method, url, route_path, client_ip, user_agent,
			request_headers, query, request_body, request_body_status, request_size,
			response_status, response_headers, response_body, response_body_status, response_size, load_time_ms,
			errors, error_count, server, language
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		record.ID, record.RequestID, record.Timestamp.UnixNano(), record.TraceID, record.SpanID,
		record.Request.Method, record.Request.URL, record.Request.RoutePath, record.Request.ClientIP, record.Request.UserAgent,
		cols.requestHeaders, cols.query, cols.requestBody, string(bodyStatus(record.Request.Body)), record.Request.Size,
		record.Response.Status, cols.responseHeaders, cols.responseBody, string(bodyStatus(record.Response.Body)), record.Response.Size, record.Response.LoadTimeMS,
		cols.errors, len(record.Errors), cols.server, cols.language,
	)
	if err != nil {
		return report.NewStorageError("sqlite", "store", err)
	}

	return nil
}

// Query retrieves records matching the query filters.
func (s *SQLiteStorage) Query(ctx context.Context, query *report.Query) ([]*capture.Record, error) {
	sqlQuery, args, err := s.buildSelect(query)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, report.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	records := make([]*capture.Record, 0)
	for rows.Next() {
		record, err := s.scanRow(rows)
		if err != nil {
			return nil, report.NewStorageError("sqlite", "scan", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, report.NewStorageError("sqlite", "query", err)
	}

	return records, nil
}

// QueryStream returns a channel of records for memory-efficient streaming.
func (s *SQLiteStorage) QueryStream(ctx context.Context, query *report.Query) (<-chan *capture.Record, <-chan error, error) {
	sqlQuery, args, err := s.buildSelect(query)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, nil, report.NewStorageError("sqlite", "query_stream", err)
	}

	recordsCh := make(chan *capture.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(recordsCh)
		defer close(errCh)
		defer rows.Close()

		for rows.Next() {
			record, err := s.scanRow(rows)
			if err != nil {
				errCh <- report.NewStorageError("sqlite", "scan", err)
				return
			}

			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case recordsCh <- record:
			}
		}

		if err := rows.Err(); err != nil {
			errCh <- report.NewStorageError("sqlite", "query_stream", err)
		}
	}()

	return recordsCh, errCh, nil
}

// Count returns the number of records matching the query filters.
func (s *SQLiteStorage) Count(ctx context.Context, query *report.Query) (int64, error) {
	whereClause, args := buildWhereClause(query)

	sqlQuery := "SELECT COUNT(*) FROM captures"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, report.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// Delete removes records matching the query filters.
func (s *SQLiteStorage) Delete(ctx context.Context, query *report.Query) (int64, error) {
	whereClause, args := buildWhereClause(query)

	sqlQuery := "DELETE FROM captures"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	result, err := s.db.ExecContext(ctx, sqlQuery, args...)
	if err != nil {
		return 0, report.NewStorageError("sqlite", "delete", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, report.NewStorageError("sqlite", "delete", err)
	}
	return count, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return report.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite storage closed")
	return nil
}

var sortColumns = map[string]string{
	"timestamp":     "timestamp_ns",
	"status":        "response_status",
	"load_time":     "load_time_ms",
	"response_size": "response_size",
}

func (s *SQLiteStorage) buildSelect(query *report.Query) (string, []any, error) {
	q := normalizeQuery(query)
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	whereClause, args := buildWhereClause(q)

	sqlQuery := "SELECT " + selectColumns + " FROM captures"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	// Sort field and order are checked against fixed sets by Validate.
	sqlQuery += fmt.Sprintf(" ORDER BY %s %s, id %s", sortColumns[q.SortBy], strings.ToUpper(q.SortOrder), strings.ToUpper(q.SortOrder))

	if q.Limit > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT %d", q.Limit)
	} else if q.Offset > 0 {
		sqlQuery += " LIMIT -1"
	}
	if q.Offset > 0 {
		sqlQuery += fmt.Sprintf(" OFFSET %d", q.Offset)
	}

	return sqlQuery, args, nil
}

// buildWhereClause builds a SQL WHERE clause from query filters.
func buildWhereClause(query *report.Query) (string, []any) {
	if query == nil {
		return "", nil
	}

	var conditions []string
	var args []any

	if query.StartTime != nil {
		conditions = append(conditions, "timestamp_ns >= ?")
		args = append(args, query.StartTime.UnixNano())
	}
	if query.EndTime != nil {
		conditions = append(conditions, "timestamp_ns <= ?")
		args = append(args, query.EndTime.UnixNano())
	}
	if query.RequestID != "" {
		conditions = append(conditions, "request_id = ?")
		args = append(args, query.RequestID)
	}
	if query.Method != "" {
		conditions = append(conditions, "method = ? COLLATE NOCASE")
		args = append(args, query.Method)
	}
	if query.RoutePath != "" {
		conditions = append(conditions, "route_path = ?")
		args = append(args, query.RoutePath)
	}
	if query.ClientIP != "" {
		conditions = append(conditions, "client_ip = ?")
		args = append(args, query.ClientIP)
	}
	if query.MinStatus != nil {
		conditions = append(conditions, "response_status >= ?")
		args = append(args, *query.MinStatus)
	}
	if query.MaxStatus != nil {
		conditions = append(conditions, "response_status <= ?")
		args = append(args, *query.MaxStatus)
	}
	if query.RequestBodyStatus != "" {
		conditions = append(conditions, "request_body_status = ?")
		args = append(args, string(query.RequestBodyStatus))
	}
	if query.ResponseBodyStatus != "" {
		conditions = append(conditions, "response_body_status = ?")
		args = append(args, string(query.ResponseBodyStatus))
	}
	if query.HasErrors != nil {
		if *query.HasErrors {
			conditions = append(conditions, "error_count > 0")
		} else {
			conditions = append(conditions, "error_count = 0")
		}
	}

	return strings.Join(conditions, " AND "), args
}

type encodedColumns struct {
	requestHeaders  string
	query           string
	requestBody     string
	responseHeaders string
	responseBody    string
	errors          string
	server          string
	language        string
}

func encodeRecord(record *capture.Record) (*encodedColumns, error) {
	var cols encodedColumns
	fields := []struct {
		dst *string
		v   any
	}{
		{&cols.requestHeaders, record.Request.Headers},
		{&cols.query, record.Request.Query},
		{&cols.requestBody, record.Request.Body.Value},
		{&cols.responseHeaders, record.Response.Headers},
		{&cols.responseBody, record.Response.Body.Value},
		{&cols.errors, record.Errors},
		{&cols.server, record.Server},
		{&cols.language, record.Language},
	}

	for _, f := range fields {
		data, err := json.Marshal(f.v)
		if err != nil {
			return nil, err
		}
		*f.dst = string(data)
	}
	return &cols, nil
}

func bodyStatus(b capture.Body) capture.BodyStatus {
	if b.Status == "" {
		return capture.BodyCaptured
	}
	return b.Status
}

// scanRow scans a database row into a Record.
func (s *SQLiteStorage) scanRow(rows *sql.Rows) (*capture.Record, error) {
	var record capture.Record
	var timestampNs int64
	var requestID, traceID, spanID, routePath, clientIP, userAgent sql.NullString
	var requestHeaders, query, requestBody, responseHeaders, responseBody sql.NullString
	var errorsJSON, server, language sql.NullString
	var requestBodyStatus, responseBodyStatus string

	err := rows.Scan(
		&record.ID, &requestID, &timestampNs, &traceID, &spanID,
		&record.Request.Method, &record.Request.URL, &routePath, &clientIP, &userAgent,
		&requestHeaders, &query, &requestBody, &requestBodyStatus, &record.Request.Size,
		&record.Response.Status, &responseHeaders, &responseBody, &responseBodyStatus, &record.Response.Size, &record.Response.LoadTimeMS,
		&errorsJSON, &server, &language,
	)
	if err != nil {
		return nil, err
	}

	record.RequestID = requestID.String
	record.Timestamp = time.Unix(0, timestampNs).UTC()
	record.TraceID = traceID.String
	record.SpanID = spanID.String
	record.Request.Timestamp = record.Timestamp
	record.Request.RoutePath = routePath.String
	record.Request.ClientIP = clientIP.String
	record.Request.UserAgent = userAgent.String

	if err := unmarshalColumn(requestHeaders, &record.Request.Headers); err != nil {
		return nil, fmt.Errorf("request_headers: %w", err)
	}
	if err := unmarshalColumn(responseHeaders, &record.Response.Headers); err != nil {
		return nil, fmt.Errorf("response_headers: %w", err)
	}
	if err := unmarshalColumn(server, &record.Server); err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	if err := unmarshalColumn(language, &record.Language); err != nil {
		return nil, fmt.Errorf("language: %w", err)
	}

	record.Errors = []capture.ErrorEntry{}
	if err := unmarshalColumn(errorsJSON, &record.Errors); err != nil {
		return nil, fmt.Errorf("errors: %w", err)
	}

	if query.Valid && query.String != "" {
		if record.Request.Query, err = capture.DecodeJSON([]byte(query.String)); err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
	}

	if record.Request.Body, err = decodeBody(requestBodyStatus, requestBody); err != nil {
		return nil, fmt.Errorf("request_body: %w", err)
	}
	if record.Response.Body, err = decodeBody(responseBodyStatus, responseBody); err != nil {
		return nil, fmt.Errorf("response_body: %w", err)
	}

	return &record, nil
}

func unmarshalColumn(col sql.NullString, dst any) error {
	if !col.Valid || col.String == "" || col.String == "null" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), dst)
}

func decodeBody(status string, col sql.NullString) (capture.Body, error) {
	body := capture.Body{Status: capture.BodyStatus(status)}
	if body.Status != capture.BodyCaptured || !col.Valid || col.String == "" {
		return body, nil
	}

	v, err := capture.DecodeJSON([]byte(col.String))
	if err != nil {
		return body, err
	}
	body.Value = v
	return body, nil
}
