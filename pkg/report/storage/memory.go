package storage

import (
	"context"
	"sort"
	"sync"

	"mercator-hq/tap/pkg/capture"
	"mercator-hq/tap/pkg/report"
)

// MemoryStorage implements report.Storage in memory.
type MemoryStorage struct {
	records map[string]*capture.Record
	mu      sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records: make(map[string]*capture.Record),
	}
}

// Store keeps a copy of record.
func (s *MemoryStorage) Store(ctx context.Context, record *capture.Record) error {
	if record == nil || record.ID == "" {
		return report.NewStorageError("memory", "store", errMissingID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recordCopy := *record
	s.records[record.ID] = &recordCopy
	return nil
}

// Query retrieves records matching the query filters, sorted and paginated.
func (s *MemoryStorage) Query(ctx context.Context, query *report.Query) ([]*capture.Record, error) {
	q := normalizeQuery(query)
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	results := make([]*capture.Record, 0)
	for _, record := range s.records {
		if q.Matches(record) {
			recordCopy := *record
			results = append(results, &recordCopy)
		}
	}
	s.mu.RUnlock()

	sortRecords(results, q.SortBy, q.SortOrder)

	if q.Offset >= len(results) {
		return []*capture.Record{}, nil
	}
	results = results[q.Offset:]
	if q.Limit > 0 && q.Limit < len(results) {
		results = results[:q.Limit]
	}
	return results, nil
}

// QueryStream streams the result of Query over a channel.
func (s *MemoryStorage) QueryStream(ctx context.Context, query *report.Query) (<-chan *capture.Record, <-chan error, error) {
	records, err := s.Query(ctx, query)
	if err != nil {
		return nil, nil, err
	}

	recordsCh := make(chan *capture.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(recordsCh)
		defer close(errCh)

		for _, record := range records {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case recordsCh <- record:
			}
		}
	}()

	return recordsCh, errCh, nil
}

// Count returns the number of records matching the query filters.
func (s *MemoryStorage) Count(ctx context.Context, query *report.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, record := range s.records {
		if query.Matches(record) {
			count++
		}
	}
	return count, nil
}

// Delete removes records matching the query filters.
func (s *MemoryStorage) Delete(ctx context.Context, query *report.Query) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, record := range s.records {
		if query.Matches(record) {
			delete(s.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// Close drops all records.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*capture.Record)
	return nil
}

// GetByID returns a copy of the record with the given ID, or nil.
func (s *MemoryStorage) GetByID(id string) *capture.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil
	}
	recordCopy := *record
	return &recordCopy
}

// Size returns the number of stored records.
func (s *MemoryStorage) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}

// normalizeQuery returns a copy of query with sort defaults applied. A zero
// limit keeps meaning "no limit" so retention can see every record.
func normalizeQuery(query *report.Query) *report.Query {
	q := report.Query{}
	if query != nil {
		q = *query
	}
	limit := q.Limit
	q.ApplyDefaults()
	q.Limit = limit
	return &q
}

func sortRecords(records []*capture.Record, sortBy, order string) {
	less := func(a, b *capture.Record) bool {
		switch sortBy {
		case "status":
			return a.Response.Status < b.Response.Status
		case "load_time":
			return a.Response.LoadTimeMS < b.Response.LoadTimeMS
		case "response_size":
			return a.Response.Size < b.Response.Size
		default:
			return a.Timestamp.Before(b.Timestamp)
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		if order == "asc" {
			return less(records[i], records[j])
		}
		return less(records[j], records[i])
	})
}
