// Package store persists connections, alerts and the audit log. Two backends
// exist: an in-process memory store for development and tests, and PostgreSQL
// through a pgx connection pool.
package store

import (
	"context"

	"github.com/ajitpratap0/freightsync/pkg/config"
	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

// ConnectionStore persists connections with their encrypted credentials.
type ConnectionStore interface {
	// Save inserts or replaces the connection with c.ID
	Save(ctx context.Context, c *models.Connection) error
	// Load returns a not_found error for unknown ids
	Load(ctx context.Context, id string) (*models.Connection, error)
	// List returns every connection, oldest first
	List(ctx context.Context) ([]*models.Connection, error)
}

// AlertStore persists monitor alerts.
type AlertStore interface {
	// Save inserts or replaces the alert with a.ID
	Save(ctx context.Context, a *models.Alert) error
	// List returns matching alerts, newest first
	List(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error)
}

// AuditFilter selects audit events. Zero values match everything.
type AuditFilter struct {
	ConnectionID string
	Action       models.AuditAction
	Limit        int
}

// AuditStore is the append-only audit log.
type AuditStore interface {
	Append(ctx context.Context, e models.AuditEvent) error
	// List returns matching events, newest first
	List(ctx context.Context, filter AuditFilter) ([]models.AuditEvent, error)
}

// Stores bundles the three stores of one backend.
type Stores struct {
	Connections ConnectionStore
	Alerts      AlertStore
	Audit       AuditStore

	close func()
}

// Close releases the backend.
func (s *Stores) Close() {
	if s.close != nil {
		s.close()
	}
}

// Open creates the stores cfg selects.
func Open(ctx context.Context, cfg config.StoreConfig) (*Stores, error) {
	switch cfg.Driver {
	case "", "memory":
		m := NewMemory()
		return &Stores{Connections: m.Connections(), Alerts: m.Alerts(), Audit: m.Audit()}, nil
	case "postgres":
		pg, err := NewPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &Stores{Connections: pg, Alerts: pg.Alerts(), Audit: pg.Audit(), close: pg.Close}, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown store driver %q", cfg.Driver)
	}
}
