package report

import (
	"context"
	"io"
	"time"

	"mercator-hq/tap/pkg/capture"
)

// Query specifies filters for retrieving capture records.
// All filters are optional and combined with AND logic.
type Query struct {
	// Time range
	StartTime *time.Time `json:"start_time,omitempty"` // Inclusive start time
	EndTime   *time.Time `json:"end_time,omitempty"`   // Inclusive end time

	// Filters
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	RoutePath string `json:"route_path,omitempty"`
	ClientIP  string `json:"client_ip,omitempty"`

	// Status code range
	MinStatus *int `json:"min_status,omitempty"`
	MaxStatus *int `json:"max_status,omitempty"`

	// Body outcomes
	RequestBodyStatus  capture.BodyStatus `json:"request_body_status,omitempty"`
	ResponseBodyStatus capture.BodyStatus `json:"response_body_status,omitempty"`

	// HasErrors selects records with (true) or without (false) error entries.
	HasErrors *bool `json:"has_errors,omitempty"`

	// Pagination
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// Sorting
	SortBy    string `json:"sort_by,omitempty"`    // "timestamp", "status", "load_time", "response_size"
	SortOrder string `json:"sort_order,omitempty"` // "asc", "desc"
}

// Storage defines the interface for record storage backends.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Store persists a record.
	Store(ctx context.Context, record *capture.Record) error

	// Query retrieves records matching the query filters.
	// Returns an empty slice if no records match.
	Query(ctx context.Context, query *Query) ([]*capture.Record, error)

	// QueryStream returns a channel of records for large result sets.
	// Both channels are closed when the query completes or fails; callers
	// should drain recordsCh and then read errCh.
	QueryStream(ctx context.Context, query *Query) (<-chan *capture.Record, <-chan error, error)

	// Count returns the number of records matching the query filters.
	Count(ctx context.Context, query *Query) (int64, error)

	// Delete removes records matching the query filters and returns how
	// many were deleted.
	Delete(ctx context.Context, query *Query) (int64, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Exporter writes records to w in a specific format.
type Exporter interface {
	Export(ctx context.Context, records []*capture.Record, w io.Writer) error
}
