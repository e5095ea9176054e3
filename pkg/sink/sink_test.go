package sink

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/freightsync/pkg/clients"
	"github.com/ajitpratap0/freightsync/pkg/config"
	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

var (
	testMeta = Meta{ConnectionID: "conn-1", CarrierID: "maersk", TenantID: "t1", DataType: "tracking"}
	testAt   = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func testRecords() []models.CanonicalRecord {
	return []models.CanonicalRecord{
		{ContainerNumber: "MSKU1234567", Status: models.StatusInTransit, Carrier: "maersk", LastUpdated: testAt},
		{ContainerNumber: "MSKU7654321", Status: models.StatusAtPort, Carrier: "maersk", LastUpdated: testAt},
	}
}

func testAlert() *models.Alert {
	return &models.Alert{ID: "a1", ConnectionID: "conn-1", CarrierID: "maersk",
		Message: "health check failed", Severity: models.SeverityError, Timestamp: testAt}
}

func kafkaCfg() config.KafkaSinkConfig {
	return config.KafkaSinkConfig{RecordTopic: "records", AlertTopic: "alerts", ClientID: "test"}
}

func TestKafkaPublishRecords(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	for _, want := range []string{"MSKU1234567", "MSKU7654321"} {
		want := want
		producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
			var rec models.CanonicalRecord
			if err := json.Unmarshal(value, &rec); err != nil {
				return err
			}
			if rec.ContainerNumber != want {
				return fmt.Errorf("got %s, want %s", rec.ContainerNumber, want)
			}
			return nil
		})
	}

	pub := NewKafkaPublisherWithProducer(producer, kafkaCfg(), zap.NewNop())
	require.NoError(t, pub.PublishRecords(context.Background(), testMeta, testRecords()))
	require.NoError(t, pub.PublishRecords(context.Background(), testMeta, nil))
	require.NoError(t, pub.Close())
}

func TestKafkaPublishFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	pub := NewKafkaPublisherWithProducer(producer, kafkaCfg(), zap.NewNop())
	err := pub.PublishAlert(context.Background(), testAlert())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
	require.NoError(t, pub.Close())
}

func TestKafkaMessageShape(t *testing.T) {
	rec := testRecords()
	producer := &capturingProducer{}
	pub := NewKafkaPublisherWithProducer(producer, kafkaCfg(), nil)

	require.NoError(t, pub.PublishRecords(context.Background(), testMeta, rec[:1]))
	require.NoError(t, pub.PublishAlert(context.Background(), testAlert()))
	require.Len(t, producer.msgs, 2)

	msg := producer.msgs[0]
	assert.Equal(t, "records", msg.Topic)
	key, _ := msg.Key.Encode()
	assert.Equal(t, "MSKU1234567", string(key))
	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[string(h.Key)] = string(h.Value)
	}
	assert.Equal(t, "maersk", headers["carrier"])
	assert.Equal(t, "conn-1", headers["connection"])

	alert := producer.msgs[1]
	assert.Equal(t, "alerts", alert.Topic)
	key, _ = alert.Key.Encode()
	assert.Equal(t, "conn-1", string(key))
}

// capturingProducer records messages instead of sending them.
type capturingProducer struct {
	sarama.SyncProducer
	msgs []*sarama.ProducerMessage
}

func (p *capturingProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	p.msgs = append(p.msgs, msg)
	return 0, int64(len(p.msgs)), nil
}

func (p *capturingProducer) SendMessages(msgs []*sarama.ProducerMessage) error {
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func (p *capturingProducer) Close() error { return nil }

func testHTTPClient() *clients.HTTPClient {
	cfg := clients.DefaultHTTPConfig()
	cfg.EnableHTTP2 = false
	cfg.CircuitBreakerEnabled = false
	return clients.NewHTTPClient(cfg, zap.NewNop())
}

type delivery struct {
	event     string
	signature string
	body      []byte
}

func webhookServer(t *testing.T, status int) (*httptest.Server, func() []delivery) {
	var (
		mu   sync.Mutex
		seen []delivery
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, delivery{r.Header.Get(HeaderEventType), r.Header.Get(HeaderSignature), body})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []delivery {
		mu.Lock()
		defer mu.Unlock()
		return append([]delivery(nil), seen...)
	}
}

func TestWebhookPublisher(t *testing.T) {
	srv, seen := webhookServer(t, http.StatusNoContent)
	secret := []byte("hook-secret")
	pub := NewWebhookPublisher(config.WebhookSinkConfig{URL: srv.URL, Secret: string(secret)}, testHTTPClient(), nil)

	require.NoError(t, pub.PublishRecords(context.Background(), testMeta, testRecords()))
	require.NoError(t, pub.PublishAlert(context.Background(), testAlert()))
	require.NoError(t, pub.PublishRecords(context.Background(), testMeta, nil))

	got := seen()
	require.Len(t, got, 2)

	assert.Equal(t, KindRecords, got[0].event)
	assert.True(t, Verify(secret, got[0].body, got[0].signature))
	assert.False(t, Verify([]byte("other"), got[0].body, got[0].signature))
	var env Envelope
	require.NoError(t, json.Unmarshal(got[0].body, &env))
	assert.Len(t, env.Records, 2)
	assert.Equal(t, "conn-1", env.Meta.ConnectionID)

	assert.Equal(t, KindAlert, got[1].event)
	require.NoError(t, json.Unmarshal(got[1].body, &env))
	assert.Equal(t, "a1", env.Alert.ID)
}

func TestWebhookGzip(t *testing.T) {
	var (
		encoding string
		sig      string
		raw      []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		encoding = r.Header.Get("Content-Encoding")
		sig = r.Header.Get(HeaderSignature)
		zr, err := gzip.NewReader(r.Body)
		if err == nil {
			raw, _ = io.ReadAll(zr)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	secret := []byte("hook-secret")
	pub := NewWebhookPublisher(config.WebhookSinkConfig{URL: srv.URL, Secret: string(secret), Gzip: true}, testHTTPClient(), nil)
	require.NoError(t, pub.PublishAlert(context.Background(), testAlert()))

	assert.Equal(t, "gzip", encoding)
	require.NotEmpty(t, raw)
	assert.True(t, Verify(secret, raw, sig), "signature covers the uncompressed body")

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, "a1", env.Alert.ID)
}

func TestWebhookFailure(t *testing.T) {
	srv, _ := webhookServer(t, http.StatusServiceUnavailable)
	pub := NewWebhookPublisher(config.WebhookSinkConfig{URL: srv.URL, Secret: "s"}, testHTTPClient(), nil)

	err := pub.PublishAlert(context.Background(), testAlert())
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
}

func TestSign(t *testing.T) {
	assert.Equal(t, "sha256=a777724d943eb48dc69bca8a4a6d57a04db3f9ec7e1de4e581e860265bdf3032",
		Sign([]byte("key"), []byte("{}")))
}

type stubPublisher struct {
	records, alerts int
	err             error
	closed          bool
}

func (s *stubPublisher) PublishRecords(context.Context, Meta, []models.CanonicalRecord) error {
	s.records++
	return s.err
}

func (s *stubPublisher) PublishAlert(context.Context, *models.Alert) error {
	s.alerts++
	return s.err
}

func (s *stubPublisher) Close() error {
	s.closed = true
	return nil
}

func TestMultiPublisher(t *testing.T) {
	ok := &stubPublisher{}
	failing := &stubPublisher{err: errors.New(errors.ErrorTypeConnection, "down")}
	multi := NewMultiPublisher(failing, ok)

	err := multi.PublishRecords(context.Background(), testMeta, testRecords())
	require.Error(t, err)
	assert.Equal(t, 1, ok.records, "later publishers still run")

	require.Error(t, multi.PublishAlert(context.Background(), testAlert()))
	assert.Equal(t, 1, ok.alerts)

	require.NoError(t, multi.Close())
	assert.True(t, ok.closed)
	assert.True(t, failing.closed)
}

func TestNewSelectsPublishers(t *testing.T) {
	pub, err := New(config.SinkConfig{}, nil, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, NopPublisher{}, pub)

	pub, err = New(config.SinkConfig{Webhook: config.WebhookSinkConfig{URL: "http://example.invalid/hook", Secret: "s"}}, testHTTPClient(), zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &WebhookPublisher{}, pub)
}
