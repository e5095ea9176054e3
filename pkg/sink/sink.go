// Package sink publishes canonical records and monitor alerts to downstream
// systems: Kafka topics and signed webhooks.
package sink

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/freightsync/pkg/clients"
	"github.com/ajitpratap0/freightsync/pkg/config"
	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

// Event kinds, used as the X-Event-Type header and metric label.
const (
	KindRecords = "records"
	KindAlert   = "alert"
)

// Meta describes where a batch of records came from.
type Meta struct {
	ConnectionID string `json:"connectionId"`
	CarrierID    string `json:"carrierId"`
	TenantID     string `json:"tenantId,omitempty"`
	DataType     string `json:"dataType"`
}

// Publisher delivers records and alerts downstream.
type Publisher interface {
	PublishRecords(ctx context.Context, meta Meta, records []models.CanonicalRecord) error
	PublishAlert(ctx context.Context, alert *models.Alert) error
	Close() error
}

// New builds the publishers cfg enables. With nothing configured it returns
// a NopPublisher.
func New(cfg config.SinkConfig, client *clients.HTTPClient, logger *zap.Logger) (Publisher, error) {
	var pubs []Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		k, err := NewKafkaPublisher(cfg.Kafka, logger)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, k)
	}
	if cfg.Webhook.URL != "" {
		pubs = append(pubs, NewWebhookPublisher(cfg.Webhook, client, logger))
	}

	switch len(pubs) {
	case 0:
		return NopPublisher{}, nil
	case 1:
		return pubs[0], nil
	default:
		return NewMultiPublisher(pubs...), nil
	}
}

// NopPublisher discards everything.
type NopPublisher struct{}

// PublishRecords implements Publisher.
func (NopPublisher) PublishRecords(context.Context, Meta, []models.CanonicalRecord) error { return nil }

// PublishAlert implements Publisher.
func (NopPublisher) PublishAlert(context.Context, *models.Alert) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }

// MultiPublisher fans out to several publishers. Every publisher is tried;
// failures are joined.
type MultiPublisher struct {
	pubs []Publisher
}

// NewMultiPublisher creates a fan-out publisher.
func NewMultiPublisher(pubs ...Publisher) *MultiPublisher {
	return &MultiPublisher{pubs: pubs}
}

// PublishRecords implements Publisher.
func (m *MultiPublisher) PublishRecords(ctx context.Context, meta Meta, records []models.CanonicalRecord) error {
	var errs []error
	for _, p := range m.pubs {
		if err := p.PublishRecords(ctx, meta, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishAlert implements Publisher.
func (m *MultiPublisher) PublishAlert(ctx context.Context, alert *models.Alert) error {
	var errs []error
	for _, p := range m.pubs {
		if err := p.PublishAlert(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Publisher.
func (m *MultiPublisher) Close() error {
	var errs []error
	for _, p := range m.pubs {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
