package store

import (
	"context"
	"sort"
	"sync"

	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

// Default retention of the memory backend.
const (
	DefaultMemoryMaxAlerts = 10000
	DefaultMemoryMaxAudit  = 10000
)

// Memory keeps everything in process maps. Alerts and audit events are capped;
// the oldest are evicted first. Connections are never evicted.
type Memory struct {
	mu          sync.RWMutex
	connections map[string]*models.Connection
	alerts      map[string]*models.Alert
	audit       []models.AuditEvent
	maxAlerts   int
	maxAudit    int
}

// MemoryOption configures a Memory backend.
type MemoryOption func(*Memory)

// WithRetention caps the stored alerts and audit events. Values <= 0 keep
// the defaults.
func WithRetention(maxAlerts, maxAudit int) MemoryOption {
	return func(m *Memory) {
		if maxAlerts > 0 {
			m.maxAlerts = maxAlerts
		}
		if maxAudit > 0 {
			m.maxAudit = maxAudit
		}
	}
}

// NewMemory creates an empty memory backend.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		connections: make(map[string]*models.Connection),
		alerts:      make(map[string]*models.Alert),
		maxAlerts:   DefaultMemoryMaxAlerts,
		maxAudit:    DefaultMemoryMaxAudit,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connections returns the connection store view.
func (m *Memory) Connections() ConnectionStore { return memoryConnections{m} }

// Alerts returns the alert store view.
func (m *Memory) Alerts() AlertStore { return memoryAlerts{m} }

// Audit returns the audit store view.
func (m *Memory) Audit() AuditStore { return memoryAudit{m} }

type memoryConnections struct{ m *Memory }

func (s memoryConnections) Save(_ context.Context, c *models.Connection) error {
	if c == nil || c.ID == "" {
		return errors.New(errors.ErrorTypeValidation, "connection id is required")
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.connections[c.ID] = c.Clone()
	return nil
}

func (s memoryConnections) Load(_ context.Context, id string) (*models.Connection, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	c, ok := s.m.connections[id]
	if !ok {
		return nil, notFound("connection", id)
	}
	return c.Clone(), nil
}

func (s memoryConnections) List(_ context.Context) ([]*models.Connection, error) {
	s.m.mu.RLock()
	out := make([]*models.Connection, 0, len(s.m.connections))
	for _, c := range s.m.connections {
		out = append(out, c.Clone())
	}
	s.m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

type memoryAlerts struct{ m *Memory }

func (s memoryAlerts) Save(_ context.Context, a *models.Alert) error {
	if a == nil || a.ID == "" {
		return errors.New(errors.ErrorTypeValidation, "alert id is required")
	}
	cp := *a
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.alerts[a.ID] = &cp
	for len(s.m.alerts) > s.m.maxAlerts {
		s.m.evictOldestAlert()
	}
	return nil
}

// evictOldestAlert drops the alert with the earliest timestamp. Callers hold mu.
func (m *Memory) evictOldestAlert() {
	var oldest *models.Alert
	for _, a := range m.alerts {
		if oldest == nil || a.Timestamp.Before(oldest.Timestamp) ||
			(a.Timestamp.Equal(oldest.Timestamp) && a.ID < oldest.ID) {
			oldest = a
		}
	}
	if oldest != nil {
		delete(m.alerts, oldest.ID)
	}
}

func (s memoryAlerts) List(_ context.Context, filter models.AlertFilter) ([]*models.Alert, error) {
	s.m.mu.RLock()
	out := make([]*models.Alert, 0)
	for _, a := range s.m.alerts {
		if filter.Matches(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	s.m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

type memoryAudit struct{ m *Memory }

func (s memoryAudit) Append(_ context.Context, e models.AuditEvent) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.audit = append(s.m.audit, e)
	if over := len(s.m.audit) - s.m.maxAudit; over > 0 {
		s.m.audit = append([]models.AuditEvent(nil), s.m.audit[over:]...)
	}
	return nil
}

func (s memoryAudit) List(_ context.Context, filter AuditFilter) ([]models.AuditEvent, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	out := make([]models.AuditEvent, 0)
	for i := len(s.m.audit) - 1; i >= 0; i-- {
		e := s.m.audit[i]
		if filter.ConnectionID != "" && e.ConnectionID != filter.ConnectionID {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func notFound(kind, id string) error {
	return errors.Newf(errors.ErrorTypeNotFound, "%s %s not found", kind, id).WithDetail("id", id)
}
