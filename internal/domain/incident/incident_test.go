package incident

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsafe/backend/internal/domain/shared"
	"github.com/tsafe/backend/internal/domain/tourist"
)

func validParams() NewIncidentParams {
	return NewIncidentParams{
		TouristID:   uuid.New(),
		Type:        TypeTheft,
		Place:       Place{Location: tourist.Location{Lat: 15.5, Lng: 73.8}, City: "Panaji"},
		OccurredAt:  time.Now().Add(-time.Hour),
		Description: "Bag snatched near the market",
		ReportedBy:  Reporter{Name: "Asha", PhoneNumber: "9876543210"},
	}
}

func TestFormatCode(t *testing.T) {
	assert.Equal(t, "FIR-2026-000042", FormatCode(2026, 42))
}

func TestNewIncident(t *testing.T) {
	t.Run("opens a reported ticket with defaults", func(t *testing.T) {
		inc, err := NewIncident("FIR-2026-000001", validParams(), time.Now())
		require.NoError(t, err)

		assert.Equal(t, StatusReported, inc.Status)
		assert.Equal(t, FIRPending, inc.FIRStatus)
		assert.Equal(t, SeverityMedium, inc.Severity)
		assert.Equal(t, "self", inc.ReportedBy.Relationship)
		require.Len(t, inc.Actions, 1)
		assert.Equal(t, "SYSTEM", inc.Actions[0].TakenBy)
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		p := validParams()
		p.Type = "alien"
		_, err := NewIncident("c", p, time.Now())
		assert.Equal(t, "INVALID_TYPE", shared.CodeOf(err))
	})

	t.Run("rejects missing description", func(t *testing.T) {
		p := validParams()
		p.Description = ""
		_, err := NewIncident("c", p, time.Now())
		assert.Equal(t, "INVALID_INPUT", shared.CodeOf(err))
	})
}

func TestIncident_ApplyUpdate(t *testing.T) {
	inc, err := NewIncident("FIR-2026-000001", validParams(), time.Now())
	require.NoError(t, err)

	err = inc.ApplyUpdate(StatusUpdate{
		Status:     StatusInvestigating,
		FIRStatus:  FIRFiled,
		FIRNumber:  "GOA/123",
		Officer:    &Officer{Name: "Insp. Naik", BadgeNumber: "B-12"},
		ActionType: ActionFIRFiled,
		ActionNote: "FIR registered",
		TakenBy:    "Insp. Naik",
	}, time.Now())
	require.NoError(t, err)

	assert.Equal(t, StatusInvestigating, inc.Status)
	assert.Equal(t, FIRFiled, inc.FIRStatus)
	assert.Equal(t, "GOA/123", inc.FIRNumber)
	require.Len(t, inc.Actions, 2)
	assert.Equal(t, ActionFIRFiled, inc.Actions[1].Type)

	err = inc.ApplyUpdate(StatusUpdate{Status: StatusReported}, time.Now())
	assert.Equal(t, "INVALID_STATE", shared.CodeOf(err))
}

func TestType_IsEmergency(t *testing.T) {
	assert.True(t, TypeAssault.IsEmergency())
	assert.True(t, TypeMedical.IsEmergency())
	assert.False(t, TypeFraud.IsEmergency())
	assert.Equal(t, "+91-100", TypeAccident.EmergencyContact())
	assert.Equal(t, "+91-1073", TypeTheft.EmergencyContact())
}
