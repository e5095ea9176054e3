package monitor

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/metrics"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

func (m *Monitor) raise(ctx context.Context, conn *models.Connection, severity models.AlertSeverity, message string) {
	alert := &models.Alert{
		ID:           uuid.NewString(),
		ConnectionID: conn.ID,
		CarrierID:    conn.CarrierID,
		Message:      message,
		Severity:     severity,
		Timestamp:    m.now().UTC(),
	}

	m.mu.Lock()
	m.alertList = append(m.alertList, alert)
	if over := len(m.alertList) - m.cfg.MaxAlerts; over > 0 {
		m.alertList = append([]*models.Alert(nil), m.alertList[over:]...)
	}
	m.mu.Unlock()

	metrics.Alerts.WithLabelValues(string(severity)).Inc()
	m.logger.Warn("alert raised",
		zap.String("alert_id", alert.ID),
		zap.String("connection_id", conn.ID),
		zap.String("carrier_id", conn.CarrierID),
		zap.String("severity", string(severity)),
		zap.String("message", message))

	cp := *alert
	if m.alerts != nil {
		if err := m.alerts.Save(ctx, &cp); err != nil {
			m.logger.Warn("failed to persist alert", zap.String("alert_id", alert.ID), zap.Error(err))
		}
	}
	if err := m.publisher.PublishAlert(ctx, &cp); err != nil {
		m.logger.Warn("failed to publish alert", zap.String("alert_id", alert.ID), zap.Error(err))
	}
}

// Alerts returns alerts matching filter, newest first.
func (m *Monitor) Alerts(filter models.AlertFilter) []*models.Alert {
	m.mu.RLock()
	out := make([]*models.Alert, 0)
	for i := len(m.alertList) - 1; i >= 0; i-- {
		a := m.alertList[i]
		if !filter.Matches(a) {
			continue
		}
		cp := *a
		out = append(out, &cp)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	m.mu.RUnlock()
	return out
}

// Acknowledge marks an alert acknowledged. Acknowledging twice keeps the
// first timestamp.
func (m *Monitor) Acknowledge(ctx context.Context, alertID string) (*models.Alert, error) {
	m.mu.Lock()
	var found *models.Alert
	for _, a := range m.alertList {
		if a.ID == alertID {
			found = a
			break
		}
	}
	if found == nil {
		m.mu.Unlock()
		return nil, errors.Newf(errors.ErrorTypeNotFound, "alert %s not found", alertID).WithDetail("id", alertID)
	}
	if !found.Acknowledged {
		at := m.now().UTC()
		found.Acknowledged = true
		found.AcknowledgedAt = &at
	}
	cp := *found
	m.mu.Unlock()

	if m.alerts != nil {
		if err := m.alerts.Save(ctx, &cp); err != nil {
			return nil, err
		}
	}
	return &cp, nil
}

// Load seeds the in-memory alert list from the alert store, keeping the
// newest MaxAlerts.
func (m *Monitor) Load(ctx context.Context) error {
	if m.alerts == nil {
		return nil
	}
	stored, err := m.alerts.List(ctx, models.AlertFilter{Limit: m.cfg.MaxAlerts})
	if err != nil {
		return err
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].Timestamp.Before(stored[j].Timestamp) })

	m.mu.Lock()
	defer m.mu.Unlock()
	m.alertList = stored
	return nil
}
