// Package kafka mirrors audit entries to a Kafka topic for downstream SIEM
// consumption. The mirror is best-effort: produce failures are logged and
// dropped so the audit write path never blocks on the broker.
package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"medigate/internal/audit"
	"medigate/internal/platform/config"
)

// Mirror publishes audit entries to Kafka, keyed by entry ID so downstream
// consumers can deduplicate.
type Mirror struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// New connects a Kafka producer for the audit mirror. Returns nil when no
// brokers are configured (mirroring disabled).
func New(cfg config.KafkaConfig, logger *slog.Logger) (*Mirror, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, err
	}

	return &Mirror{client: client, topic: cfg.Topic, logger: logger}, nil
}

// Emit produces the entry asynchronously. Implements audit.Sink.
func (m *Mirror) Emit(ctx context.Context, entry audit.Entry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		m.logger.Error("audit mirror marshal failed", "error", err, "entry_id", entry.ID)
		return
	}

	record := &kgo.Record{
		Topic: m.topic,
		Key:   []byte(entry.ID.String()),
		Value: payload,
	}
	m.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			m.logger.Error("audit mirror produce failed", "error", err, "entry_id", entry.ID)
		}
	})
}

// Close flushes pending records and releases the producer.
func (m *Mirror) Close(ctx context.Context) error {
	if err := m.client.Flush(ctx); err != nil {
		return err
	}
	m.client.Close()
	return nil
}
