package tourist

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TransitionEvent is emitted whenever the worker moves a WorkItem to a new status.
type TransitionEvent struct {
	TouristID    uuid.UUID      `json:"tourist_id"`
	ChainID      string         `json:"chain_id"`
	WorkItemID   uuid.UUID      `json:"work_item_id"`
	Action       Action         `json:"action"`
	From         WorkItemStatus `json:"from"`
	To           WorkItemStatus `json:"to"`
	LedgerHandle string         `json:"ledger_handle,omitempty"`
	Error        string         `json:"error,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

// NewTransitionEvent snapshots an item after a transition.
func NewTransitionEvent(t *Tourist, w *WorkItem, from WorkItemStatus) TransitionEvent {
	return TransitionEvent{
		TouristID:    t.ID,
		ChainID:      t.ChainID,
		WorkItemID:   w.ID,
		Action:       w.Action,
		From:         from,
		To:           w.Status,
		LedgerHandle: w.LedgerHandle,
		Error:        w.Error,
		OccurredAt:   w.UpdatedAt,
	}
}

// TransitionPublisher delivers transition events to downstream consumers.
// Delivery is best effort; the work item store remains the source of truth.
type TransitionPublisher interface {
	Publish(ctx context.Context, events ...TransitionEvent) error
	Close() error
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements TransitionPublisher.
func (NopPublisher) Publish(context.Context, ...TransitionEvent) error { return nil }

// Close implements TransitionPublisher.
func (NopPublisher) Close() error { return nil }
