// Package engine is the integration engine: it owns carrier connections and
// routes fetches through the rate limiter, the carrier adapter and the
// processing pipeline, retrying transient failures with exponential backoff.
package engine

import (
	"context"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/freightsync/internal/pipeline"
	"github.com/ajitpratap0/freightsync/pkg/carrier/core"
	"github.com/ajitpratap0/freightsync/pkg/clients"
	"github.com/ajitpratap0/freightsync/pkg/config"
	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/logger"
	"github.com/ajitpratap0/freightsync/pkg/metrics"
	"github.com/ajitpratap0/freightsync/pkg/models"
	"github.com/ajitpratap0/freightsync/pkg/monitor"
	"github.com/ajitpratap0/freightsync/pkg/sink"
	"github.com/ajitpratap0/freightsync/pkg/store"
	"github.com/ajitpratap0/freightsync/pkg/vault"
)

const tracerName = "github.com/ajitpratap0/freightsync/pkg/engine"

// ConnectionRequest describes a connection to create.
type ConnectionRequest struct {
	CarrierID   string                 `json:"carrierId" validate:"required"`
	TenantID    string                 `json:"tenantId"`
	Type        models.TransportType   `json:"type" validate:"required,oneof=api edi email web manual"`
	Credentials models.Credentials     `json:"credentials"`
	Settings    map[string]interface{} `json:"settings,omitempty"`
}

// SleepFunc waits for d or until ctx ends.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Engine coordinates adapters, connections and the pipeline.
type Engine struct {
	cfg       config.EngineConfig
	adapters  map[string]core.Adapter
	vault     vault.Vault
	conns     *store.Mutator
	pipeline  *pipeline.Pipeline
	limiters  *clients.LimiterSet
	monitor   *monitor.Monitor
	publisher sink.Publisher
	validate  *validator.Validate
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
	sleep     SleepFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithMonitor registers new connections with m and serves health and alert
// queries from it.
func WithMonitor(m *monitor.Monitor) Option {
	return func(e *Engine) { e.monitor = m }
}

// WithPublisher sends fetched records downstream.
func WithPublisher(p sink.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithSleep replaces the backoff sleep, for tests.
func WithSleep(fn SleepFunc) Option {
	return func(e *Engine) { e.sleep = fn }
}

// WithClock replaces time.Now for connection timestamps and limiters.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the engine's logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine over adapters, keyed by carrier id.
func New(cfg config.EngineConfig, adapters map[string]core.Adapter, v vault.Vault,
	conns *store.Mutator, p *pipeline.Pipeline, opts ...Option) *Engine {
	e := &Engine{
		cfg:       withDefaults(cfg),
		adapters:  adapters,
		vault:     v,
		conns:     conns,
		pipeline:  p,
		publisher: sink.NopPublisher{},
		validate:  validator.New(),
		logger:    logger.Get().With(zap.String("component", "engine")),
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.limiters = clients.NewLimiterSet(clients.WithClock(e.now))
	return e
}

func withDefaults(cfg config.EngineConfig) config.EngineConfig {
	d := config.NewDefault().Engine
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = d.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = d.MaxDelay
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = d.RequestTimeout
	}
	return cfg
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Restore registers stored active connections with the monitor. Call it once
// at startup.
func (e *Engine) Restore(ctx context.Context) error {
	conns, err := e.conns.Store().List(ctx)
	if err != nil {
		return err
	}
	active := 0
	for _, c := range conns {
		if !c.Active() {
			continue
		}
		active++
		if e.monitor != nil {
			e.monitor.Register(c)
		}
	}
	metrics.ActiveConnections.Set(float64(active))
	e.logger.Info("restored connections", zap.Int("active", active), zap.Int("total", len(conns)))
	return nil
}

// Carriers returns the descriptors of every configured adapter, sorted by id.
func (e *Engine) Carriers() []core.Descriptor {
	out := make([]core.Descriptor, 0, len(e.adapters))
	for _, a := range e.adapters {
		out = append(out, a.Descriptor())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CarrierID < out[j].CarrierID })
	return out
}

func (e *Engine) adapter(carrierID string) (core.Adapter, error) {
	a, ok := e.adapters[carrierID]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeConfig, "no adapter found for carrier: %s", carrierID)
	}
	return a, nil
}

// CreateConnection validates req, tests the credentials against the carrier
// and stores a connected Connection. A failed test stores nothing.
func (e *Engine) CreateConnection(ctx context.Context, req ConnectionRequest) (*models.Connection, error) {
	if err := e.validate.Struct(req); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid connection request")
	}
	adapter, err := e.adapter(req.CarrierID)
	if err != nil {
		return nil, err
	}
	desc := adapter.Descriptor()
	if !desc.Supports(req.Type) {
		return nil, errors.Newf(errors.ErrorTypeConfig, "carrier %s does not support %s connections", req.CarrierID, req.Type).
			WithDetail("supported", desc.SupportedTypes)
	}

	id := uuid.NewString()
	ctx = logger.ContextWithConnection(ctx, id, req.CarrierID, req.TenantID)
	log := e.logger.With(zap.String("connection_id", id), zap.String("carrier_id", req.CarrierID))

	blob, err := e.vault.Encrypt(ctx, req.Credentials)
	if err != nil {
		return nil, err
	}

	tctx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	result := adapter.TestConnection(tctx, req.Credentials, req.Type)
	cancel()
	if !result.Success {
		cause := result.Err
		if cause == nil {
			cause = errors.New(errors.ErrorTypeConnection, result.Error)
		}
		e.audit(ctx, models.AuditEvent{
			Action: models.AuditConnectionFailed,
			Error:  result.Error,
			Details: map[string]interface{}{
				"type": string(req.Type),
			},
		})
		log.Warn("connection test failed", zap.String("type", string(req.Type)), zap.Error(cause))
		return nil, errors.Wrap(cause, errors.TypeOf(cause), "connection test failed")
	}

	conn := &models.Connection{
		ID:          id,
		CarrierID:   req.CarrierID,
		TenantID:    req.TenantID,
		Type:        req.Type,
		Credentials: blob,
		Settings:    req.Settings,
		Status:      models.ConnectionConnected,
		CreatedAt:   e.now().UTC(),
		Metrics:     models.ConnectionMetrics{Uptime: 100},
	}
	if err := e.conns.Store().Save(ctx, conn); err != nil {
		return nil, err
	}
	if e.monitor != nil {
		e.monitor.Register(conn)
	}
	metrics.ActiveConnections.Inc()
	e.audit(ctx, models.AuditEvent{
		Action:  models.AuditConnectionCreated,
		Details: map[string]interface{}{"type": string(req.Type)},
	})
	log.Info("connection created", zap.String("type", string(req.Type)))
	return conn.Clone(), nil
}

// GetConnection returns connection id.
func (e *Engine) GetConnection(ctx context.Context, id string) (*models.Connection, error) {
	return e.conns.Store().Load(ctx, id)
}

// GetActiveConnections returns every connection that is not deactivated,
// oldest first.
func (e *Engine) GetActiveConnections(ctx context.Context) ([]*models.Connection, error) {
	all, err := e.conns.Store().List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Connection, 0, len(all))
	for _, c := range all {
		if c.Active() {
			out = append(out, c)
		}
	}
	return out, nil
}

// DeactivateConnection marks a connection inactive. Its limiter is dropped
// and the monitor stops checking it.
func (e *Engine) DeactivateConnection(ctx context.Context, id string) (*models.Connection, error) {
	wasActive := false
	conn, err := e.conns.Update(ctx, id, func(c *models.Connection) error {
		wasActive = c.Active()
		c.Status = models.ConnectionInactive
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.limiters.Remove(id)
	if e.monitor != nil {
		e.monitor.Unregister(id)
	}
	if wasActive {
		metrics.ActiveConnections.Dec()
		ctx = logger.ContextWithConnection(ctx, conn.ID, conn.CarrierID, conn.TenantID)
		e.audit(ctx, models.AuditEvent{Action: models.AuditConnectionDeactivated})
	}
	return conn, nil
}

// GetConnectionHealth returns the monitor's summary for connection id.
func (e *Engine) GetConnectionHealth(ctx context.Context, id string) (*models.ConnectionHealth, error) {
	conn, err := e.conns.Store().Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.monitor == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "health monitoring is disabled")
	}
	h := e.monitor.Health(id)
	h.CarrierID = conn.CarrierID
	return h, nil
}

// GetAlerts returns the monitor's alerts matching filter, newest first.
func (e *Engine) GetAlerts(filter models.AlertFilter) []*models.Alert {
	if e.monitor == nil {
		return []*models.Alert{}
	}
	return e.monitor.Alerts(filter)
}

// AcknowledgeAlert marks alert id acknowledged.
func (e *Engine) AcknowledgeAlert(ctx context.Context, id string) (*models.Alert, error) {
	if e.monitor == nil {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "alert not found: %s", id)
	}
	alert, err := e.monitor.Acknowledge(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = logger.ContextWithConnection(ctx, alert.ConnectionID, alert.CarrierID, "")
	e.audit(ctx, models.AuditEvent{
		Action:  models.AuditAlertAcknowledged,
		Details: map[string]interface{}{"alert_id": id},
	})
	return alert, nil
}

// RateLimitStatus returns the limiter state of connection id. A connection
// that has not fetched yet reports its full policy.
func (e *Engine) RateLimitStatus(ctx context.Context, id string) (clients.RateLimiterStats, error) {
	conn, err := e.conns.Store().Load(ctx, id)
	if err != nil {
		return clients.RateLimiterStats{}, err
	}
	adapter, err := e.adapter(conn.CarrierID)
	if err != nil {
		return clients.RateLimiterStats{}, err
	}
	return e.limiters.Get(id, adapter.Descriptor().RateLimit).GetStats(), nil
}

// audit writes event through the vault's audit log. Audit failures are
// logged by the vault and never fail the operation.
func (e *Engine) audit(ctx context.Context, event models.AuditEvent) {
	_ = e.vault.LogAudit(ctx, event)
}
