package dedupstore

import (
	"context"
	"sync"
	"time"

	"github.com/ajitpratap0/freightsync/pkg/models"
)

// MemoryStore is an in-process Store. Records are cloned on the way in and
// out so callers never share state with the store.
type MemoryStore struct {
	mu         sync.RWMutex
	partitions map[string]map[string]*models.CanonicalRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{partitions: make(map[string]map[string]*models.CanonicalRecord)}
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, partition, key string) (*models.CanonicalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.partitions[partition][key].Clone(), nil
}

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, partition, key string, rec *models.CanonicalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.partitions[partition]
	if !ok {
		p = make(map[string]*models.CanonicalRecord)
		s.partitions[partition] = p
	}
	p[key] = rec.Clone()
	return nil
}

// Purge implements Store.
func (s *MemoryStore) Purge(ctx context.Context, partition string, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.partitions[partition]
	purged := 0
	for key, rec := range p {
		if rec.LastUpdated.Before(cutoff) {
			delete(p, key)
			purged++
		}
	}
	if len(p) == 0 {
		delete(s.partitions, partition)
	}
	return purged, nil
}

// Len returns the number of records held in partition.
func (s *MemoryStore) Len(partition string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.partitions[partition])
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
