package deliverylog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and single-process setups.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, record Record) error {
	if record.TotalDevices < 0 || record.DeliveredTo < 0 || record.FailedCount < 0 {
		return ErrInvalidRecord
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// List implements Store. Records are returned newest first.
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for i := len(s.records) - 1; i >= 0; i-- {
		r := s.records[i]
		if filter.Type != "" && r.Type != filter.Type {
			continue
		}
		if filter.Success != nil && r.Success != *filter.Success {
			continue
		}
		if !filter.Since.IsZero() && r.CreatedAt.Before(filter.Since) {
			continue
		}
		out = append(out, r)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Stats implements Store.
func (s *MemoryStore) Stats(_ context.Context, since time.Time) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats Stats
	for _, r := range s.records {
		if r.CreatedAt.Before(since) {
			continue
		}
		stats.TotalJobs++
		if r.Success {
			stats.SuccessfulJobs++
		} else {
			stats.FailedJobs++
		}
		stats.DevicesReached += r.DeliveredTo
		stats.DevicesFailed += r.FailedCount
		stats.TokensPurged += r.InvalidTokens
	}
	return stats, nil
}
