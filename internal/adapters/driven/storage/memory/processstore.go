package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-extensions/internal/core/domain"
	"github.com/custodia-labs/sercha-extensions/internal/core/ports/driven"
)

// Ensure ProcessStore implements the interface.
var _ driven.ProcessRecordStore = (*ProcessStore)(nil)

// ProcessStore is an in-memory implementation of driven.ProcessRecordStore.
// Records do not survive the host, so it never finds orphans.
type ProcessStore struct {
	mu      sync.RWMutex
	records map[int]domain.ProcessRecord
}

// NewProcessStore creates a new in-memory process record store.
func NewProcessStore() *ProcessStore {
	return &ProcessStore{
		records: make(map[int]domain.ProcessRecord),
	}
}

// Register stores or replaces the record for its pid.
func (s *ProcessStore) Register(_ context.Context, record domain.ProcessRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.PID] = record
	return nil
}

// Unregister removes the record for pid.
func (s *ProcessStore) Unregister(_ context.Context, pid int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, pid)
	return nil
}

// List returns all records ordered by pid.
func (s *ProcessStore) List(_ context.Context) ([]domain.ProcessRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.ProcessRecord, 0, len(s.records))
	for _, record := range s.records {
		result = append(result, record)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PID < result[j].PID
	})
	return result, nil
}
