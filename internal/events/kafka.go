package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kprom"

	"reseller-ledger/internal/logger"
)

type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
	// DeliveryTimeout fails a record that has not been acknowledged in
	// time, so Publish returns even on a deadline-free context.
	DeliveryTimeout time.Duration
}

const defaultDeliveryTimeout = 10 * time.Second

type KafkaPublisher struct {
	client  *kgo.Client
	topic   string
	metrics *kprom.Metrics
}

func NewKafkaPublisher(conf KafkaConfig) (*KafkaPublisher, error) {
	metrics := kprom.NewMetrics("ledger_events")
	if conf.DeliveryTimeout <= 0 {
		conf.DeliveryTimeout = defaultDeliveryTimeout
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(conf.Brokers...),
		kgo.DefaultProduceTopic(conf.Topic),
		kgo.ClientID(conf.ClientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5 * time.Millisecond),
		kgo.RecordDeliveryTimeout(conf.DeliveryTimeout),
		kgo.ProduceRequestTimeout(conf.DeliveryTimeout),
		kgo.WithHooks(metrics),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	return &KafkaPublisher{client: client, topic: conf.Topic, metrics: metrics}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	record, err := NewRecord(p.topic, e)
	if err != nil {
		return err
	}

	logger.ExternalServiceCall("kafka", "Produce", "topic", p.topic, "type", e.Type, "txn_id", e.BusinessTxnID)
	err = p.client.ProduceSync(ctx, record).FirstErr()
	logger.ExternalServiceResult("kafka", "Produce", err, "topic", p.topic, "type", e.Type)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", e.Type, err)
	}
	return nil
}

// MetricsHandler exposes the producer's Prometheus metrics.
func (p *KafkaPublisher) MetricsHandler() http.Handler {
	return p.metrics.Handler()
}

func (p *KafkaPublisher) Close() {
	p.client.Close()
}

// NewRecord encodes an event as a Kafka record keyed by Event.Key.
func NewRecord(topic string, e Event) (*kgo.Record, error) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	value, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", e.Type, err)
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(e.Key()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event-type", Value: []byte(e.Type)},
		},
	}, nil
}
