package store

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ajitpratap0/freightsync/pkg/config"
	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

//go:embed schema.sql
var schema string

// Postgres stores everything in PostgreSQL. It is itself the ConnectionStore;
// Alerts and Audit return the other two views over the same pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects, pings and applies the schema.
func NewPostgres(ctx context.Context, cfg config.StoreConfig) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid postgres dsn")
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create postgres pool")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to postgres")
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to apply schema")
	}
	return &Postgres{pool: pool}, nil
}

// Close closes the pool.
func (p *Postgres) Close() { p.pool.Close() }

// Save implements ConnectionStore.
func (p *Postgres) Save(ctx context.Context, c *models.Connection) error {
	settings, err := json.Marshal(c.Settings)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode connection settings")
	}
	metrics, err := json.Marshal(c.Metrics)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode connection metrics")
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO connections (id, carrier_id, tenant_id, type, credentials, settings, status, created_at, last_sync, metrics)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			credentials = EXCLUDED.credentials,
			settings = EXCLUDED.settings,
			status = EXCLUDED.status,
			last_sync = EXCLUDED.last_sync,
			metrics = EXCLUDED.metrics`,
		c.ID, c.CarrierID, c.TenantID, string(c.Type), c.Credentials, settings,
		string(c.Status), c.CreatedAt, c.LastSync, metrics)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to save connection").WithDetail("id", c.ID)
	}
	return nil
}

const connectionColumns = `id, carrier_id, tenant_id, type, credentials, settings, status, created_at, last_sync, metrics`

// Load implements ConnectionStore.
func (p *Postgres) Load(ctx context.Context, id string) (*models.Connection, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+connectionColumns+` FROM connections WHERE id = $1`, id)
	c, err := scanConnection(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("connection", id)
		}
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to load connection").WithDetail("id", id)
	}
	return c, nil
}

// List implements ConnectionStore.
func (p *Postgres) List(ctx context.Context) ([]*models.Connection, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+connectionColumns+` FROM connections ORDER BY created_at, id`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to list connections")
	}
	defer rows.Close()

	out := make([]*models.Connection, 0)
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to scan connection")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to list connections")
	}
	return out, nil
}

func scanConnection(row pgx.Row) (*models.Connection, error) {
	var (
		c                 models.Connection
		typ, status       string
		settings, metrics []byte
	)
	if err := row.Scan(&c.ID, &c.CarrierID, &c.TenantID, &typ, &c.Credentials, &settings,
		&status, &c.CreatedAt, &c.LastSync, &metrics); err != nil {
		return nil, err
	}
	c.Type = models.TransportType(typ)
	c.Status = models.ConnectionStatus(status)
	if len(settings) > 0 && string(settings) != "null" {
		if err := json.Unmarshal(settings, &c.Settings); err != nil {
			return nil, err
		}
	}
	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &c.Metrics); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// Alerts returns the alert store over the same pool.
func (p *Postgres) Alerts() AlertStore { return postgresAlerts{p.pool} }

// Audit returns the audit store over the same pool.
func (p *Postgres) Audit() AuditStore { return postgresAudit{p.pool} }

type postgresAlerts struct{ pool *pgxpool.Pool }

func (s postgresAlerts) Save(ctx context.Context, a *models.Alert) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alerts (id, connection_id, carrier_id, message, severity, created_at, acknowledged, acknowledged_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			acknowledged = EXCLUDED.acknowledged,
			acknowledged_at = EXCLUDED.acknowledged_at`,
		a.ID, a.ConnectionID, a.CarrierID, a.Message, string(a.Severity), a.Timestamp,
		a.Acknowledged, a.AcknowledgedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to save alert").WithDetail("id", a.ID)
	}
	return nil
}

func (s postgresAlerts) List(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error) {
	query, args := alertQuery(filter)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to list alerts")
	}
	defer rows.Close()

	out := make([]*models.Alert, 0)
	for rows.Next() {
		var (
			a        models.Alert
			severity string
		)
		if err := rows.Scan(&a.ID, &a.ConnectionID, &a.CarrierID, &a.Message, &severity,
			&a.Timestamp, &a.Acknowledged, &a.AcknowledgedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to scan alert")
		}
		a.Severity = models.AlertSeverity(severity)
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to list alerts")
	}
	return out, nil
}

// alertQuery renders filter as a parameterized SELECT.
func alertQuery(filter models.AlertFilter) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.ConnectionID != "" {
		add("connection_id = $%d", filter.ConnectionID)
	}
	if filter.CarrierID != "" {
		add("carrier_id = $%d", filter.CarrierID)
	}
	if filter.Severity != "" {
		add("severity = $%d", string(filter.Severity))
	}
	if filter.Acknowledged != nil {
		add("acknowledged = $%d", *filter.Acknowledged)
	}
	if !filter.Since.IsZero() {
		add("created_at >= $%d", filter.Since)
	}

	var b strings.Builder
	b.WriteString(`SELECT id, connection_id, carrier_id, message, severity, created_at, acknowledged, acknowledged_at FROM alerts`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id DESC")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}

type postgresAudit struct{ pool *pgxpool.Pool }

func (s postgresAudit) Append(ctx context.Context, e models.AuditEvent) error {
	var details []byte
	if len(e.Details) > 0 {
		var err error
		if details, err = json.Marshal(e.Details); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to encode audit details")
		}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_events (id, created_at, action, connection_id, carrier_id, data_type, error, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.Timestamp, string(e.Action), e.ConnectionID, e.CarrierID, e.DataType, e.Error, details)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to append audit event")
	}
	return nil
}

func (s postgresAudit) List(ctx context.Context, filter AuditFilter) ([]models.AuditEvent, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.ConnectionID != "" {
		args = append(args, filter.ConnectionID)
		where = append(where, fmt.Sprintf("connection_id = $%d", len(args)))
	}
	if filter.Action != "" {
		args = append(args, string(filter.Action))
		where = append(where, fmt.Sprintf("action = $%d", len(args)))
	}

	query := `SELECT id, created_at, action, connection_id, carrier_id, data_type, error, details FROM audit_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to list audit events")
	}
	defer rows.Close()

	out := make([]models.AuditEvent, 0)
	for rows.Next() {
		var (
			e       models.AuditEvent
			action  string
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &action, &e.ConnectionID, &e.CarrierID,
			&e.DataType, &e.Error, &details); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to scan audit event")
		}
		e.Action = models.AuditAction(action)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode audit details")
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to list audit events")
	}
	return out, nil
}
