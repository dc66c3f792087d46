package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tsafe/backend/internal/domain/tourist"
)

const (
	// TransitionEventType identifies transition envelopes on the wire
	TransitionEventType = "tourist.workitem.transitioned"

	// TransitionSchemaVersion is the current payload version
	TransitionSchemaVersion = 1
)

// Envelope wraps a payload with its type and schema version
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	Type          string          `json:"type"`
	SchemaVersion int             `json:"schema_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Data          json.RawMessage `json:"data"`
}

// EncodeTransition serializes a transition event inside an Envelope
func EncodeTransition(ev tourist.TransitionEvent) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transition: %w", err)
	}
	return json.Marshal(Envelope{
		ID:            uuid.New(),
		Type:          TransitionEventType,
		SchemaVersion: TransitionSchemaVersion,
		OccurredAt:    ev.OccurredAt,
		Data:          data,
	})
}

// DecodeTransition parses an Envelope produced by EncodeTransition
func DecodeTransition(payload []byte) (tourist.TransitionEvent, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return tourist.TransitionEvent{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if env.Type != TransitionEventType {
		return tourist.TransitionEvent{}, fmt.Errorf("unexpected event type: %s", env.Type)
	}
	if env.SchemaVersion > TransitionSchemaVersion {
		return tourist.TransitionEvent{}, fmt.Errorf("unsupported schema version %d for %s", env.SchemaVersion, env.Type)
	}
	var ev tourist.TransitionEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		return tourist.TransitionEvent{}, fmt.Errorf("failed to unmarshal transition: %w", err)
	}
	return ev, nil
}
