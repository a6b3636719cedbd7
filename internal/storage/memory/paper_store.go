package memory

import (
	"context"
	"sync"

	"github.com/litrev/harvester/internal/scholar"
)

// PaperStore keeps harvested records in a process-local map.
type PaperStore struct {
	mu      sync.RWMutex
	records map[string][]scholar.PaperRecord
}

// NewPaperStore constructs a PaperStore.
func NewPaperStore() *PaperStore {
	return &PaperStore{records: make(map[string][]scholar.PaperRecord)}
}

// AppendRecords adds a batch for the job.
func (s *PaperStore) AppendRecords(_ context.Context, jobID string, batch []scholar.PaperRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[jobID] = append(s.records[jobID], batch...)
	return nil
}

// ReplaceRecords swaps the job's stored set.
func (s *PaperStore) ReplaceRecords(_ context.Context, jobID string, records []scholar.PaperRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[jobID] = append([]scholar.PaperRecord(nil), records...)
	return nil
}

// ListRecords returns all records for a job in insertion order.
func (s *PaperStore) ListRecords(_ context.Context, jobID string) ([]scholar.PaperRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scholar.PaperRecord, len(s.records[jobID]))
	copy(out, s.records[jobID])
	return out, nil
}
