package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tsafe/backend/internal/domain/tourist"
)

type recordingSink struct {
	mu       sync.Mutex
	received []tourist.TransitionEvent
	err      error
	panicMsg string
	closed   bool
}

func (s *recordingSink) Publish(_ context.Context, events ...tourist.TransitionEvent) error {
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, events...)
	return s.err
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func newTransition(action tourist.Action, to tourist.WorkItemStatus) tourist.TransitionEvent {
	return tourist.TransitionEvent{
		TouristID:  uuid.New(),
		ChainID:    tourist.DeriveChainID(uuid.New()),
		WorkItemID: uuid.New(),
		Action:     action,
		From:       tourist.StatusPending,
		To:         to,
		OccurredAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestBus_FansOutToAllSinks(t *testing.T) {
	bus := NewBus(zap.NewNop())
	a, b := &recordingSink{}, &recordingSink{}
	bus.Attach("a", a)
	bus.Attach("b", b)

	ev := newTransition(tourist.ActionRegister, tourist.StatusSubmitted)
	require.NoError(t, bus.Publish(context.Background(), ev))

	assert.Equal(t, []tourist.TransitionEvent{ev}, a.received)
	assert.Equal(t, []tourist.TransitionEvent{ev}, b.received)
}

func TestBus_IsolatesFailingSinks(t *testing.T) {
	bus := NewBus(zap.NewNop())
	failing := &recordingSink{err: errors.New("broker down")}
	panicking := &recordingSink{panicMsg: "boom"}
	healthy := &recordingSink{}
	bus.Attach("failing", failing)
	bus.Attach("panicking", panicking)
	bus.Attach("healthy", healthy)

	err := bus.Publish(context.Background(), newTransition(tourist.ActionPanic, tourist.StatusConfirmed))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failing: broker down")
	assert.Contains(t, err.Error(), "panicking: sink panicked: boom")
	assert.Len(t, healthy.received, 1)
}

func TestBus_NoEventsIsNoop(t *testing.T) {
	bus := NewBus(zap.NewNop())
	sink := &recordingSink{panicMsg: "must not be called"}
	bus.Attach("sink", sink)
	assert.NoError(t, bus.Publish(context.Background()))
}

func TestBus_CloseClosesSinks(t *testing.T) {
	bus := NewBus(zap.NewNop())
	sink := &recordingSink{}
	bus.Attach("sink", sink)

	require.NoError(t, bus.Close())
	assert.True(t, sink.closed)
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))

	ev := newTransition(tourist.ActionRegister, tourist.StatusFailed)
	ev.Error = "tourist already registered on ledger"
	require.NoError(t, sink.Publish(context.Background(), ev))

	entries := logs.FilterMessage("work item transition").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "register", fields["action"])
	assert.Equal(t, "failed", fields["to"])
	assert.Equal(t, "tourist already registered on ledger", fields["error"])
	assert.NotContains(t, fields, "ledger_handle")
}
