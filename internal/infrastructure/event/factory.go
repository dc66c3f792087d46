package event

import (
	"context"

	"go.uber.org/zap"

	"github.com/tsafe/backend/internal/infrastructure/config"
)

// NewTransitionBus returns a bus that logs every transition and, when Kafka
// is enabled, produces it to the configured topic. A Kafka setup failure is
// logged and the bus runs without it so the worker is never blocked on the
// broker.
func NewTransitionBus(ctx context.Context, cfg config.KafkaConfig, logger *zap.Logger) *Bus {
	bus := NewBus(logger)
	bus.Attach("log", NewLogSink(logger))
	if !cfg.Enabled {
		return bus
	}

	kp, err := NewKafkaPublisher(cfg, logger)
	if err != nil {
		logger.Error("Kafka publisher disabled", zap.Error(err))
		return bus
	}
	if err := kp.EnsureTopic(ctx, cfg.Partitions, cfg.ReplicationFactor); err != nil {
		logger.Warn("Failed to ensure Kafka topic", zap.String("topic", cfg.Topic), zap.Error(err))
	}
	bus.Attach("kafka", kp)
	logger.Info("Publishing transition events to Kafka",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
	)
	return bus
}
