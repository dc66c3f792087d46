// Package event delivers work item transition events to in-process sinks and Kafka.
package event

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tsafe/backend/internal/domain/tourist"
)

// Bus fans transition events out to every attached sink. A failing or
// panicking sink does not stop delivery to the others.
type Bus struct {
	mu     sync.RWMutex
	sinks  []namedSink
	logger *zap.Logger
}

type namedSink struct {
	name string
	sink tourist.TransitionPublisher
}

// NewBus creates an empty bus
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{logger: logger.Named("event")}
}

// Attach adds a sink under a name used in logs
func (b *Bus) Attach(name string, sink tourist.TransitionPublisher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, namedSink{name: name, sink: sink})
	b.logger.Debug("sink attached", zap.String("sink", name))
}

// Sinks returns the attached sink names in delivery order
func (b *Bus) Sinks() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, len(b.sinks))
	for i, s := range b.sinks {
		names[i] = s.name
	}
	return names
}

// Publish delivers events to all sinks and joins their errors
func (b *Bus) Publish(ctx context.Context, events ...tourist.TransitionEvent) error {
	if len(events) == 0 {
		return nil
	}
	b.mu.RLock()
	sinks := append([]namedSink(nil), b.sinks...)
	b.mu.RUnlock()

	var errs []error
	for _, s := range sinks {
		if err := b.deliver(ctx, s, events); err != nil {
			b.logger.Error("sink failed to publish transitions",
				zap.String("sink", s.name),
				zap.Int("events", len(events)),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for _, s := range b.sinks {
		if err := s.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	b.sinks = nil
	return errors.Join(errs...)
}

func (b *Bus) deliver(ctx context.Context, s namedSink, events []tourist.TransitionEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return s.sink.Publish(ctx, events...)
}

// LogSink writes each transition to the logger
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish implements TransitionPublisher
func (s *LogSink) Publish(_ context.Context, events ...tourist.TransitionEvent) error {
	for _, ev := range events {
		fields := []zap.Field{
			zap.String("tourist_id", ev.TouristID.String()),
			zap.String("work_item_id", ev.WorkItemID.String()),
			zap.String("action", ev.Action.String()),
			zap.String("from", ev.From.String()),
			zap.String("to", ev.To.String()),
		}
		if ev.LedgerHandle != "" {
			fields = append(fields, zap.String("ledger_handle", ev.LedgerHandle))
		}
		if ev.Error != "" {
			fields = append(fields, zap.String("error", ev.Error))
		}
		s.logger.Info("work item transition", fields...)
	}
	return nil
}

// Close implements TransitionPublisher
func (s *LogSink) Close() error { return nil }

var (
	_ tourist.TransitionPublisher = (*Bus)(nil)
	_ tourist.TransitionPublisher = (*LogSink)(nil)
)
