package sink

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/ajitpratap0/freightsync/pkg/clients"
	"github.com/ajitpratap0/freightsync/pkg/config"
	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/metrics"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

// Webhook request headers.
const (
	HeaderSignature = "X-Signature"
	HeaderEventType = "X-Event-Type"
)

// Envelope is the JSON body of every webhook delivery.
type Envelope struct {
	Event   string                   `json:"event"`
	SentAt  time.Time                `json:"sentAt"`
	Meta    *Meta                    `json:"meta,omitempty"`
	Records []models.CanonicalRecord `json:"records,omitempty"`
	Alert   *models.Alert            `json:"alert,omitempty"`
}

// WebhookPublisher POSTs signed JSON envelopes to a single URL.
type WebhookPublisher struct {
	url    string
	secret []byte
	client *clients.HTTPClient
	gzip   bool
	logger *zap.Logger
	now    func() time.Time
}

// NewWebhookPublisher creates a webhook publisher. A nil client gets one
// configured with cfg.Timeout.
func NewWebhookPublisher(cfg config.WebhookSinkConfig, client *clients.HTTPClient, logger *zap.Logger) *WebhookPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if client == nil {
		hc := clients.DefaultHTTPConfig()
		if cfg.Timeout > 0 {
			hc.RequestTimeout = cfg.Timeout
		}
		client = clients.NewHTTPClient(hc, logger)
	}
	return &WebhookPublisher{
		url:    cfg.URL,
		secret: []byte(cfg.Secret),
		client: client,
		gzip:   cfg.Gzip,
		logger: logger.With(zap.String("sink", "webhook")),
		now:    time.Now,
	}
}

// Sign returns the X-Signature value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature produced by Sign.
func Verify(secret, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}

// PublishRecords implements Publisher.
func (w *WebhookPublisher) PublishRecords(ctx context.Context, meta Meta, records []models.CanonicalRecord) error {
	if len(records) == 0 {
		return nil
	}
	return w.deliver(ctx, Envelope{Event: KindRecords, SentAt: w.now().UTC(), Meta: &meta, Records: records})
}

// PublishAlert implements Publisher.
func (w *WebhookPublisher) PublishAlert(ctx context.Context, alert *models.Alert) error {
	return w.deliver(ctx, Envelope{Event: KindAlert, SentAt: w.now().UTC(), Alert: alert})
}

func (w *WebhookPublisher) deliver(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode webhook payload")
	}

	headers := map[string]string{
		"Content-Type":  "application/json",
		HeaderEventType: env.Event,
		HeaderSignature: Sign(w.secret, body),
	}
	payload := body
	if w.gzip {
		if payload, err = compress(body); err != nil {
			return err
		}
		headers["Content-Encoding"] = "gzip"
	}

	_, err = w.client.Fetch(ctx, http.MethodPost, w.url, headers, payload)
	metrics.SinkPublished.WithLabelValues("webhook", env.Event, metrics.Outcome(err)).Inc()
	if err != nil {
		w.logger.Warn("webhook delivery failed", zap.String("event", env.Event), zap.Error(err))
		return err
	}
	return nil
}

func compress(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to compress webhook payload")
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to compress webhook payload")
	}
	return buf.Bytes(), nil
}

// Close implements Publisher.
func (w *WebhookPublisher) Close() error { return nil }
