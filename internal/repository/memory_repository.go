package repository

import (
	"context"
	"sync"

	"github.com/mvahmadali/CrashAnalytix/internal/domain/accident"
)

// MemoryStore keeps records in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records []accident.Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(_ context.Context, record *accident.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, cloneRecord(*record))
	return record.ID, nil
}

func (s *MemoryStore) List(_ context.Context, sortBySeverity bool) ([]accident.Record, error) {
	s.mu.RLock()
	out := make([]accident.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, cloneRecord(r))
	}
	s.mu.RUnlock()

	SortRecords(out, sortBySeverity)
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*accident.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.ID == id {
			rec := cloneRecord(r)
			return &rec, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStore) Backend() string {
	return BackendMemory
}

// cloneRecord copies the pointer fields so stored records cannot be mutated
// through values handed to callers.
func cloneRecord(r accident.Record) accident.Record {
	if r.Severity != nil {
		sev := *r.Severity
		r.Severity = &sev
	}
	if r.CollageReference != nil {
		ref := *r.CollageReference
		r.CollageReference = &ref
	}
	if r.ProcessingTime != nil {
		pt := *r.ProcessingTime
		r.ProcessingTime = &pt
	}
	if r.Entities != nil {
		entities := make([]accident.Entity, len(r.Entities))
		for i, e := range r.Entities {
			if e.LicensePlate != nil {
				plate := *e.LicensePlate
				e.LicensePlate = &plate
			}
			entities[i] = e
		}
		r.Entities = entities
	}
	return r
}
