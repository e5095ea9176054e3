package store

import (
	"context"
	"sync"

	"github.com/ajitpratap0/freightsync/pkg/models"
)

// Mutator serializes read-modify-write updates of a connection. The engine
// and the monitor share one so metrics written by either are never lost.
// Different connections never contend.
type Mutator struct {
	store ConnectionStore

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMutator wraps store.
func NewMutator(store ConnectionStore) *Mutator {
	return &Mutator{store: store, locks: make(map[string]*sync.Mutex)}
}

// Store returns the wrapped store.
func (m *Mutator) Store() ConnectionStore { return m.store }

func (m *Mutator) lock(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// Update loads connection id, applies fn and saves the result. fn returning
// an error aborts without saving.
func (m *Mutator) Update(ctx context.Context, id string, fn func(c *models.Connection) error) (*models.Connection, error) {
	l := m.lock(id)
	l.Lock()
	defer l.Unlock()

	c, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	if err := m.store.Save(ctx, c); err != nil {
		return nil, err
	}
	return c.Clone(), nil
}
