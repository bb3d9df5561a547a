package report

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/tap/pkg/capture"
)

func intPtr(v int) *int { return &v }
func boolPtr(v bool) *bool { return &v }

func TestQuery_Validate(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)

	tests := []struct {
		name    string
		query   Query
		wantErr bool
	}{
		{"empty", Query{}, false},
		{"negative limit", Query{Limit: -1}, true},
		{"limit too large", Query{Limit: MaxLimit + 1}, true},
		{"negative offset", Query{Offset: -1}, true},
		{"bad sort field", Query{SortBy: "password"}, true},
		{"bad sort order", Query{SortOrder: "sideways"}, true},
		{"inverted time range", Query{StartTime: &now, EndTime: &earlier}, true},
		{"inverted status range", Query{MinStatus: intPtr(500), MaxStatus: intPtr(400)}, true},
		{"bad body status", Query{ResponseBodyStatus: "lost"}, true},
		{"valid", Query{Limit: 10, SortBy: "status", SortOrder: "asc", RequestBodyStatus: capture.BodySkipped}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var qe *QueryError
			require.True(t, errors.As(err, &qe))
		})
	}
}

func TestQuery_ApplyDefaults(t *testing.T) {
	q := Query{Method: "post"}
	q.ApplyDefaults()

	assert.Equal(t, DefaultLimit, q.Limit)
	assert.Equal(t, "timestamp", q.SortBy)
	assert.Equal(t, "desc", q.SortOrder)
	assert.Equal(t, "POST", q.Method)
}

func TestQuery_Matches(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	record := &capture.Record{
		RequestID: "r-1",
		Timestamp: ts,
		Request: capture.RequestRecord{
			Method:    "POST",
			RoutePath: "/users",
			ClientIP:  "192.0.2.1",
			Body:      capture.Body{Status: capture.BodyCaptured},
		},
		Response: capture.ResponseRecord{
			Status: 502,
			Body:   capture.Body{Status: capture.BodySkipped},
		},
		Errors: []capture.ErrorEntry{{Source: capture.ErrorSourceOnError}},
	}
	before := ts.Add(-time.Minute)
	after := ts.Add(time.Minute)

	tests := []struct {
		name  string
		query *Query
		want  bool
	}{
		{"nil query", nil, true},
		{"time window", &Query{StartTime: &before, EndTime: &after}, true},
		{"after window", &Query{StartTime: &after}, false},
		{"method case-insensitive", &Query{Method: "post"}, true},
		{"other route", &Query{RoutePath: "/orders"}, false},
		{"status range", &Query{MinStatus: intPtr(500), MaxStatus: intPtr(599)}, true},
		{"below min status", &Query{MinStatus: intPtr(503)}, false},
		{"response skipped", &Query{ResponseBodyStatus: capture.BodySkipped}, true},
		{"request parse failed", &Query{RequestBodyStatus: capture.BodyParseFailed}, false},
		{"has errors", &Query{HasErrors: boolPtr(true)}, true},
		{"without errors", &Query{HasErrors: boolPtr(false)}, false},
		{"request id", &Query{RequestID: "r-2"}, false},
		{"client ip", &Query{ClientIP: "192.0.2.1"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.query.Matches(record))
		})
	}
}
