// Package monitor runs periodic health checks against every registered
// connection, keeps a rolling history per connection and raises alerts.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/freightsync/pkg/carrier/core"
	"github.com/ajitpratap0/freightsync/pkg/config"
	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/logger"
	"github.com/ajitpratap0/freightsync/pkg/metrics"
	"github.com/ajitpratap0/freightsync/pkg/models"
	"github.com/ajitpratap0/freightsync/pkg/sink"
	"github.com/ajitpratap0/freightsync/pkg/store"
	"github.com/ajitpratap0/freightsync/pkg/vault"
)

// Monitor health checks registered connections.
type Monitor struct {
	cfg       config.MonitorConfig
	adapters  map[string]core.Adapter
	vault     vault.Vault
	conns     *store.Mutator
	alerts    store.AlertStore
	publisher sink.Publisher
	logger    *zap.Logger
	now       func() time.Time

	mu         sync.RWMutex
	registered map[string]string // connection id -> carrier id
	history    map[string][]models.HealthCheck
	alertList  []*models.Alert

	isRunning int32
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithLogger sets the monitor's logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithPublisher sends raised alerts downstream.
func WithPublisher(p sink.Publisher) Option {
	return func(m *Monitor) { m.publisher = p }
}

// New creates a stopped monitor.
func New(cfg config.MonitorConfig, adapters map[string]core.Adapter, v vault.Vault,
	conns *store.Mutator, alerts store.AlertStore, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:        withDefaults(cfg),
		adapters:   adapters,
		vault:      v,
		conns:      conns,
		alerts:     alerts,
		publisher:  sink.NopPublisher{},
		logger:     logger.Get().With(zap.String("component", "monitor")),
		now:        time.Now,
		registered: make(map[string]string),
		history:    make(map[string][]models.HealthCheck),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func withDefaults(cfg config.MonitorConfig) config.MonitorConfig {
	d := config.NewDefault().Monitor
	if cfg.Interval <= 0 {
		cfg.Interval = d.Interval
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = d.HistorySize
	}
	if cfg.MaxAlerts <= 0 {
		cfg.MaxAlerts = d.MaxAlerts
	}
	if cfg.LatencyThreshold <= 0 {
		cfg.LatencyThreshold = d.LatencyThreshold
	}
	if cfg.ErrorRateThreshold <= 0 {
		cfg.ErrorRateThreshold = d.ErrorRateThreshold
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = d.CheckTimeout
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = d.MaxConcurrency
	}
	return cfg
}

// Register adds a connection to the check rotation.
func (m *Monitor) Register(conn *models.Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered[conn.ID] = conn.CarrierID
}

// Unregister removes a connection from the rotation. Its history is kept.
func (m *Monitor) Unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.registered, id)
}

// Registered returns the ids in the rotation.
func (m *Monitor) Registered() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.registered))
	for id := range m.registered {
		ids = append(ids, id)
	}
	return ids
}

// Start runs checks every Interval until ctx ends or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&m.isRunning, 0, 1) {
		return errors.New(errors.ErrorTypeInternal, "monitor already running")
	}

	stopCh := make(chan struct{})
	m.mu.Lock()
	m.stopCh = stopCh
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()

		m.logger.Info("monitor started", zap.Duration("interval", m.cfg.Interval))
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				m.CheckNow(ctx)
			}
		}
	}()
	return nil
}

// Stop halts the ticker and waits for an in-flight tick to finish. A stopped
// monitor may be started again.
func (m *Monitor) Stop() {
	if !atomic.CompareAndSwapInt32(&m.isRunning, 1, 0) {
		return
	}
	m.mu.RLock()
	stopCh := m.stopCh
	m.mu.RUnlock()
	close(stopCh)
	m.wg.Wait()
	m.logger.Info("monitor stopped")
}

// CheckNow checks every registered connection once, at most MaxConcurrency
// at a time, and returns when all checks are done.
func (m *Monitor) CheckNow(ctx context.Context) {
	m.mu.RLock()
	targets := make(map[string]string, len(m.registered))
	for id, carrier := range m.registered {
		targets[id] = carrier
	}
	m.mu.RUnlock()

	sem := make(chan struct{}, m.cfg.MaxConcurrency)
	var wg sync.WaitGroup
	for id, carrier := range targets {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(id, carrier string) {
			defer wg.Done()
			defer func() { <-sem }()
			m.checkConnection(ctx, id, carrier)
		}(id, carrier)
	}
	wg.Wait()
}

func (m *Monitor) checkConnection(ctx context.Context, id, carrierID string) {
	ctx = logger.ContextWithConnection(ctx, id, carrierID, "")
	log := m.logger.With(zap.String("connection_id", id), zap.String("carrier_id", carrierID))

	conn, err := m.conns.Store().Load(ctx, id)
	if err != nil {
		log.Warn("dropping unknown connection from monitor", zap.Error(err))
		m.Unregister(id)
		return
	}
	if !conn.Active() {
		m.Unregister(id)
		return
	}

	start := m.now()
	result := m.probe(ctx, conn)
	elapsed := m.now().Sub(start)

	check := models.HealthCheck{
		Status:         models.HealthHealthy,
		ResponseTimeMs: elapsed.Milliseconds(),
		Timestamp:      m.now().UTC(),
	}
	if !result.Success {
		check.Status = models.HealthError
		check.Error = result.Error
	}
	metrics.HealthChecks.WithLabelValues(carrierID, string(check.Status)).Inc()
	metrics.HealthCheckDuration.WithLabelValues(carrierID).Observe(elapsed.Seconds())

	uptime, avgMs := m.record(id, check)

	updated, err := m.conns.Update(ctx, id, func(c *models.Connection) error {
		c.Metrics.Uptime = uptime
		c.Metrics.AvgResponseTimeMs = avgMs
		switch {
		case !c.Active():
		case check.Status == models.HealthError:
			c.Status = models.ConnectionError
		case c.Status == models.ConnectionError:
			c.Status = models.ConnectionConnected
		}
		return nil
	})
	if err != nil {
		log.Warn("failed to persist health metrics", zap.Error(err))
		updated = conn
	}

	if check.Status == models.HealthError {
		m.raise(ctx, updated, models.SeverityError, "Health check failed: "+check.Error)
	}
	if elapsed > m.cfg.LatencyThreshold {
		m.raise(ctx, updated, models.SeverityWarning,
			fmt.Sprintf("High response time: %dms", check.ResponseTimeMs))
	}
	if updated.Metrics.ErrorRate > m.cfg.ErrorRateThreshold {
		m.raise(ctx, updated, models.SeverityWarning,
			fmt.Sprintf("High error rate: %.1f%%", updated.Metrics.ErrorRate*100))
	}

	log.Debug("health check complete",
		zap.String("status", string(check.Status)),
		zap.Int64("response_time_ms", check.ResponseTimeMs))
}

// probe decrypts credentials and runs the adapter's health check under the
// check timeout. A check that ignores its context is abandoned at the timeout.
func (m *Monitor) probe(ctx context.Context, conn *models.Connection) core.TestResult {
	adapter, ok := m.adapters[conn.CarrierID]
	if !ok {
		return core.Failed(errors.Newf(errors.ErrorTypeConfig, "no adapter for carrier %s", conn.CarrierID))
	}
	creds, err := m.vault.Decrypt(ctx, conn.Credentials)
	if err != nil {
		return core.Failed(err)
	}

	cctx, cancel := context.WithTimeout(ctx, m.cfg.CheckTimeout)
	defer cancel()

	done := make(chan core.TestResult, 1)
	go func() { done <- adapter.HealthCheck(cctx, creds) }()

	select {
	case r := <-done:
		return r
	case <-cctx.Done():
		return core.Failed(errors.Newf(errors.ErrorTypeTimeout, "health check timed out after %s", m.cfg.CheckTimeout))
	}
}

// record appends check to the connection's capped history and returns the
// recomputed uptime percentage and mean response time.
func (m *Monitor) record(id string, check models.HealthCheck) (float64, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := append(m.history[id], check)
	if len(h) > m.cfg.HistorySize {
		h = append([]models.HealthCheck(nil), h[len(h)-m.cfg.HistorySize:]...)
	}
	m.history[id] = h
	uptime, avg := summarize(h)
	return uptime, avg
}

func summarize(h []models.HealthCheck) (uptime, avgMs float64) {
	if len(h) == 0 {
		return 0, 0
	}
	healthy := 0
	var total int64
	for _, c := range h {
		if c.Status == models.HealthHealthy {
			healthy++
		}
		total += c.ResponseTimeMs
	}
	return float64(healthy) / float64(len(h)) * 100, float64(total) / float64(len(h))
}

// Health summarizes a connection's history. Connections never checked return
// a summary with no checks.
func (m *Monitor) Health(id string) *models.ConnectionHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h := m.history[id]
	uptime, avg := summarize(h)
	out := &models.ConnectionHealth{
		ConnectionID:      id,
		CarrierID:         m.registered[id],
		Uptime:            uptime,
		AvgResponseTimeMs: avg,
		TotalChecks:       len(h),
		History:           append([]models.HealthCheck(nil), h...),
	}
	if len(h) > 0 {
		last := h[len(h)-1]
		out.Status = last.Status
		out.LastCheck = &last
	}
	return out
}
