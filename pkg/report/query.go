package report

import (
	"fmt"
	"strings"

	"mercator-hq/tap/pkg/capture"
)

const (
	// DefaultLimit is the number of records returned when no limit is given.
	DefaultLimit = 100

	// MaxLimit is the largest page a single query may return.
	MaxLimit = 10000
)

// ValidSortFields contains the fields that can be used for sorting.
var ValidSortFields = map[string]bool{
	"timestamp":     true,
	"status":        true,
	"load_time":     true,
	"response_size": true,
}

// ValidSortOrders contains the valid sort orders.
var ValidSortOrders = map[string]bool{
	"asc":  true,
	"desc": true,
}

// Validate checks q and returns a *QueryError if any parameter is invalid.
func (q *Query) Validate() error {
	if q.Limit < 0 {
		return NewQueryError(q, fmt.Errorf("limit must be >= 0, got %d", q.Limit))
	}
	if q.Limit > MaxLimit {
		return NewQueryError(q, fmt.Errorf("limit must be <= %d, got %d", MaxLimit, q.Limit))
	}
	if q.Offset < 0 {
		return NewQueryError(q, fmt.Errorf("offset must be >= 0, got %d", q.Offset))
	}

	if q.SortBy != "" && !ValidSortFields[q.SortBy] {
		return NewQueryError(q, fmt.Errorf("invalid sort field: %s", q.SortBy))
	}
	if q.SortOrder != "" && !ValidSortOrders[q.SortOrder] {
		return NewQueryError(q, fmt.Errorf("invalid sort order: %s (must be 'asc' or 'desc')", q.SortOrder))
	}

	if q.StartTime != nil && q.EndTime != nil && q.StartTime.After(*q.EndTime) {
		return NewQueryError(q, fmt.Errorf("start_time must be before end_time"))
	}
	if q.MinStatus != nil && q.MaxStatus != nil && *q.MinStatus > *q.MaxStatus {
		return NewQueryError(q, fmt.Errorf("min_status must be <= max_status"))
	}

	for _, s := range []capture.BodyStatus{q.RequestBodyStatus, q.ResponseBodyStatus} {
		if s != "" && !s.Valid() {
			return NewQueryError(q, fmt.Errorf("invalid body status: %s", s))
		}
	}

	return nil
}

// ApplyDefaults fills in the default limit and sort order.
func (q *Query) ApplyDefaults() {
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.SortBy == "" {
		q.SortBy = "timestamp"
	}
	if q.SortOrder == "" {
		q.SortOrder = "desc"
	}
	q.Method = strings.ToUpper(q.Method)
}

// Matches reports whether record satisfies every filter of q. Pagination
// and sorting are ignored.
func (q *Query) Matches(record *capture.Record) bool {
	if q == nil {
		return true
	}
	if q.StartTime != nil && record.Timestamp.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && record.Timestamp.After(*q.EndTime) {
		return false
	}
	if q.RequestID != "" && record.RequestID != q.RequestID {
		return false
	}
	if q.Method != "" && !strings.EqualFold(record.Request.Method, q.Method) {
		return false
	}
	if q.RoutePath != "" && record.Request.RoutePath != q.RoutePath {
		return false
	}
	if q.ClientIP != "" && record.Request.ClientIP != q.ClientIP {
		return false
	}
	if q.MinStatus != nil && record.Response.Status < *q.MinStatus {
		return false
	}
	if q.MaxStatus != nil && record.Response.Status > *q.MaxStatus {
		return false
	}
	if q.RequestBodyStatus != "" && record.Request.Body.Status != q.RequestBodyStatus {
		return false
	}
	if q.ResponseBodyStatus != "" && record.Response.Body.Status != q.ResponseBodyStatus {
		return false
	}
	if q.HasErrors != nil && record.HasErrors() != *q.HasErrors {
		return false
	}
	return true
}
