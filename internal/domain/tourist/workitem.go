package tourist

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidTransition is returned when a WorkItem is asked to move along an edge
// that the lifecycle does not allow.
var ErrInvalidTransition = errors.New("invalid work item transition")

// WorkItem is a single requested ledger operation embedded in a Tourist.
type WorkItem struct {
	ID           uuid.UUID      `json:"id"`
	Action       Action         `json:"action"`
	Status       WorkItemStatus `json:"status"`
	PayloadRef   string         `json:"payload_ref"`
	LedgerHandle string         `json:"ledger_handle,omitempty"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NewWorkItem creates a pending WorkItem.
func NewWorkItem(action Action, payloadRef string, now time.Time) (WorkItem, error) {
	if !action.IsValid() {
		return WorkItem{}, fmt.Errorf("unknown work item action %q", action)
	}
	return WorkItem{
		ID:         uuid.New(),
		Action:     action,
		Status:     StatusPending,
		PayloadRef: payloadRef,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// IsUnresolved reports whether the worker still has to act on the item.
func (w *WorkItem) IsUnresolved() bool {
	return w.Status == StatusPending || w.Status == StatusSubmitted
}

// MarkSubmitted records the ledger acknowledgement of a pending item.
func (w *WorkItem) MarkSubmitted(handle string, now time.Time) error {
	if w.Status != StatusPending {
		return w.transitionError(StatusSubmitted)
	}
	if !w.Action.SubmitsToLedger() {
		return fmt.Errorf("%w: %s is never submitted to the ledger", ErrInvalidTransition, w.Action)
	}
	if handle == "" {
		return fmt.Errorf("%w: empty ledger handle", ErrInvalidTransition)
	}
	w.Status = StatusSubmitted
	w.LedgerHandle = handle
	w.Error = ""
	w.UpdatedAt = now
	return nil
}

// OffChainHandlePrefix marks handles of items that were resolved without a ledger call.
const OffChainHandlePrefix = "offchain:"

// MarkConfirmed records finality of a submitted item.
func (w *WorkItem) MarkConfirmed(now time.Time) error {
	if w.Status != StatusSubmitted {
		return w.transitionError(StatusConfirmed)
	}
	w.Status = StatusConfirmed
	w.Error = ""
	w.UpdatedAt = now
	return nil
}

// ConfirmOffChain resolves a short-circuit action (panic, verify_kyc) straight
// from pending. The item receives a synthetic off-chain handle so that every
// confirmed item carries one.
func (w *WorkItem) ConfirmOffChain(now time.Time) error {
	if w.Status != StatusPending {
		return w.transitionError(StatusConfirmed)
	}
	if w.Action.SubmitsToLedger() {
		return fmt.Errorf("%w: %s must be confirmed by the ledger", ErrInvalidTransition, w.Action)
	}
	w.Status = StatusConfirmed
	w.LedgerHandle = OffChainHandlePrefix + w.ID.String()
	w.Error = ""
	w.UpdatedAt = now
	return nil
}

// IsOffChain reports whether the item was resolved without touching the ledger.
func (w *WorkItem) IsOffChain() bool {
	return strings.HasPrefix(w.LedgerHandle, OffChainHandlePrefix)
}

// MarkFailed records a terminal failure. The ledger handle is cleared because a
// failed item no longer refers to a live submission.
func (w *WorkItem) MarkFailed(cause string, now time.Time) error {
	if w.Status.IsTerminal() {
		return w.transitionError(StatusFailed)
	}
	if cause == "" {
		cause = "unknown error"
	}
	w.Status = StatusFailed
	w.Error = cause
	w.LedgerHandle = ""
	w.UpdatedAt = now
	return nil
}

// CheckInvariants verifies the handle/status relationship.
func (w *WorkItem) CheckInvariants() error {
	hasHandle := w.LedgerHandle != ""
	switch w.Status {
	case StatusPending, StatusFailed:
		if hasHandle {
			return fmt.Errorf("work item %s: %s item carries a ledger handle", w.ID, w.Status)
		}
	case StatusSubmitted, StatusConfirmed:
		if !hasHandle {
			return fmt.Errorf("work item %s: %s item has no ledger handle", w.ID, w.Status)
		}
	default:
		return fmt.Errorf("work item %s: unknown status %q", w.ID, w.Status)
	}
	if w.Status != StatusFailed && w.Error != "" {
		return fmt.Errorf("work item %s: error set on %s item", w.ID, w.Status)
	}
	return nil
}

func (w *WorkItem) transitionError(to WorkItemStatus) error {
	return fmt.Errorf("%w: %s item %s cannot move from %s to %s",
		ErrInvalidTransition, w.Action, w.ID, w.Status, to)
}
