package report

import "fmt"

// StorageError is returned by a Storage backend. Op names the step that
// failed, e.g. "store", "query_stream" or "create_schema".
type StorageError struct {
	Backend string
	Op      string
	Cause   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s storage: %s: %v", e.Backend, e.Op, e.Cause)
}

func (e *StorageError) Unwrap() error { return e.Cause }

// NewStorageError wraps cause as a failure of op on backend.
func NewStorageError(backend, op string, cause error) *StorageError {
	return &StorageError{Backend: backend, Op: op, Cause: cause}
}

// QueryError reports an invalid Query.
type QueryError struct {
	Query *Query
	Cause error
}

func (e *QueryError) Error() string {
	return "invalid query: " + e.Cause.Error()
}

func (e *QueryError) Unwrap() error { return e.Cause }

// NewQueryError wraps cause as a rejection of query.
func NewQueryError(query *Query, cause error) *QueryError {
	return &QueryError{Query: query, Cause: cause}
}

// ReporterError is logged when a capture record could not be persisted.
// Reporting never fails the request, so it is not returned to callers.
type ReporterError struct {
	RecordID string
	Cause    error
}

func (e *ReporterError) Error() string {
	if e.RecordID == "" {
		return fmt.Sprintf("persist record: %v", e.Cause)
	}
	return fmt.Sprintf("persist record %s: %v", e.RecordID, e.Cause)
}

func (e *ReporterError) Unwrap() error { return e.Cause }

// NewReporterError wraps cause for the record with the given ID.
func NewReporterError(recordID string, cause error) *ReporterError {
	return &ReporterError{RecordID: recordID, Cause: cause}
}

// RetentionError is returned by a pruning run.
type RetentionError struct {
	RetentionDays int
	Cause         error
}

func (e *RetentionError) Error() string {
	return fmt.Sprintf("prune captures older than %d days: %v", e.RetentionDays, e.Cause)
}

func (e *RetentionError) Unwrap() error { return e.Cause }

// NewRetentionError wraps cause for a run configured with retentionDays.
func NewRetentionError(retentionDays int, cause error) *RetentionError {
	return &RetentionError{RetentionDays: retentionDays, Cause: cause}
}

// ExportError is returned by an Exporter. Written counts the records
// emitted before the failure.
type ExportError struct {
	Format  string
	Written int
	Cause   error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s after %d records: %v", e.Format, e.Written, e.Cause)
}

func (e *ExportError) Unwrap() error { return e.Cause }

// NewExportError wraps cause for the given format.
func NewExportError(format string, written int, cause error) *ExportError {
	return &ExportError{Format: format, Written: written, Cause: cause}
}
