package sink

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/freightsync/pkg/config"
	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/metrics"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

// KafkaPublisher writes one message per record, keyed by container number,
// and one message per alert, keyed by connection id.
type KafkaPublisher struct {
	producer    sarama.SyncProducer
	recordTopic string
	alertTopic  string
	logger      *zap.Logger
}

// NewKafkaPublisher connects a sync producer to cfg.Brokers.
func NewKafkaPublisher(cfg config.KafkaSinkConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig(cfg))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create kafka producer").
			WithDetail("brokers", cfg.Brokers)
	}
	return NewKafkaPublisherWithProducer(producer, cfg, logger), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer.
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, cfg config.KafkaSinkConfig, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{
		producer:    producer,
		recordTopic: cfg.RecordTopic,
		alertTopic:  cfg.AlertTopic,
		logger:      logger.With(zap.String("sink", "kafka")),
	}
}

func saramaConfig(cfg config.KafkaSinkConfig) *sarama.Config {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Compression = sarama.CompressionSnappy
	return sc
}

// PublishRecords implements Publisher.
func (k *KafkaPublisher) PublishRecords(ctx context.Context, meta Meta, records []models.CanonicalRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	messages := make([]*sarama.ProducerMessage, 0, len(records))
	for i := range records {
		rec := &records[i]
		value, err := json.Marshal(rec)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to encode record")
		}
		messages = append(messages, &sarama.ProducerMessage{
			Topic: k.recordTopic,
			Key:   sarama.StringEncoder(rec.ContainerNumber),
			Value: sarama.ByteEncoder(value),
			Headers: []sarama.RecordHeader{
				{Key: []byte("carrier"), Value: []byte(meta.CarrierID)},
				{Key: []byte("connection"), Value: []byte(meta.ConnectionID)},
				{Key: []byte("data-type"), Value: []byte(meta.DataType)},
				{Key: []byte("content-type"), Value: []byte("application/json")},
			},
			Timestamp: rec.LastUpdated,
		})
	}

	err := k.producer.SendMessages(messages)
	metrics.SinkPublished.WithLabelValues("kafka", KindRecords, metrics.Outcome(err)).Add(float64(len(messages)))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to publish records to kafka").
			WithDetail("topic", k.recordTopic)
	}
	k.logger.Debug("published records",
		zap.String("connection_id", meta.ConnectionID),
		zap.Int("count", len(messages)))
	return nil
}

// PublishAlert implements Publisher.
func (k *KafkaPublisher) PublishAlert(ctx context.Context, alert *models.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(alert)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode alert")
	}

	_, _, err = k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.alertTopic,
		Key:   sarama.StringEncoder(alert.ConnectionID),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("carrier"), Value: []byte(alert.CarrierID)},
			{Key: []byte("severity"), Value: []byte(alert.Severity)},
		},
		Timestamp: alertTime(alert),
	})
	metrics.SinkPublished.WithLabelValues("kafka", KindAlert, metrics.Outcome(err)).Inc()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to publish alert to kafka").
			WithDetail("topic", k.alertTopic)
	}
	return nil
}

// Close implements Publisher.
func (k *KafkaPublisher) Close() error {
	if err := k.producer.Close(); err != nil {
		k.logger.Error("failed to close kafka producer", zap.Error(err))
		return err
	}
	return nil
}

func alertTime(a *models.Alert) time.Time {
	if a.Timestamp.IsZero() {
		return time.Now()
	}
	return a.Timestamp
}
