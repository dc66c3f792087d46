package event

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/tsafe/backend/internal/domain/tourist"
	"github.com/tsafe/backend/internal/infrastructure/config"
)

// KafkaPublisher produces transition events to a Kafka topic. Records are
// keyed by tourist id so one tourist's transitions land on one partition in
// order.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger *zap.Logger
}

// NewKafkaPublisher connects a producer client. The connection is lazy; use
// EnsureTopic to fail fast on unreachable brokers.
func NewKafkaPublisher(cfg config.KafkaConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: topic is required")
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RecordPartitioner(kgo.StickyKeyPartitioner(nil)),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka: failed to create client: %w", err)
	}
	return &KafkaPublisher{
		client: client,
		topic:  cfg.Topic,
		logger: logger.Named("kafka"),
	}, nil
}

// EnsureTopic creates the topic when missing
func (p *KafkaPublisher) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(p.client)
	resp, err := adm.CreateTopics(ctx, partitions, replicationFactor, nil, p.topic)
	if err != nil {
		return fmt.Errorf("kafka: failed to create topic %s: %w", p.topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("kafka: failed to create topic %s: %w", r.Topic, r.Err)
		}
	}
	p.logger.Info("kafka topic ready",
		zap.String("topic", p.topic),
		zap.Int32("partitions", partitions),
	)
	return nil
}

// Publish produces events synchronously and returns the first failure
func (p *KafkaPublisher) Publish(ctx context.Context, events ...tourist.TransitionEvent) error {
	if len(events) == 0 {
		return nil
	}
	records, err := p.toRecords(events)
	if err != nil {
		return err
	}
	if err := p.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("kafka: failed to produce transitions: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) toRecords(events []tourist.TransitionEvent) ([]*kgo.Record, error) {
	records := make([]*kgo.Record, 0, len(events))
	for _, ev := range events {
		value, err := EncodeTransition(ev)
		if err != nil {
			return nil, err
		}
		records = append(records, &kgo.Record{
			Topic: p.topic,
			Key:   []byte(ev.TouristID.String()),
			Value: value,
			Headers: []kgo.RecordHeader{
				{Key: "event-type", Value: []byte(TransitionEventType)},
				{Key: "schema-version", Value: []byte(strconv.Itoa(TransitionSchemaVersion))},
				{Key: "action", Value: []byte(ev.Action)},
			},
			Timestamp: ev.OccurredAt,
		})
	}
	return records, nil
}

// Close flushes buffered records and closes the client
func (p *KafkaPublisher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := p.client.Flush(ctx)
	p.client.Close()
	if err != nil {
		return fmt.Errorf("kafka: failed to flush on close: %w", err)
	}
	return nil
}

var _ tourist.TransitionPublisher = (*KafkaPublisher)(nil)
