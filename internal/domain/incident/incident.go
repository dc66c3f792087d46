// Package incident models e-FIR style incident tickets linked to a tourist.
package incident

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tsafe/backend/internal/domain/shared"
	"github.com/tsafe/backend/internal/domain/tourist"
)

// Type classifies what happened.
type Type string

const (
	TypeTheft      Type = "theft"
	TypeAssault    Type = "assault"
	TypeFraud      Type = "fraud"
	TypeHarassment Type = "harassment"
	TypeMedical    Type = "medical"
	TypeAccident   Type = "accident"
	TypeMissing    Type = "missing"
	TypeOther      Type = "other"
)

// IsValid reports whether t is a known type.
func (t Type) IsValid() bool {
	switch t {
	case TypeTheft, TypeAssault, TypeFraud, TypeHarassment, TypeMedical, TypeAccident, TypeMissing, TypeOther:
		return true
	}
	return false
}

// IsEmergency reports whether the incident also raises a panic on the tourist.
func (t Type) IsEmergency() bool {
	return t == TypeAssault || t == TypeTheft || t == TypeMedical || t == TypeAccident
}

// EmergencyContact returns the helpline quoted back to the reporter.
func (t Type) EmergencyContact() string {
	switch t {
	case TypeAssault, TypeMedical, TypeAccident:
		return "+91-100"
	}
	return "+91-1073"
}

// Severity grades urgency.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid reports whether s is a known severity.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Status is the ticket lifecycle.
type Status string

const (
	StatusReported      Status = "reported"
	StatusInvestigating Status = "investigating"
	StatusResolved      Status = "resolved"
	StatusClosed        Status = "closed"
)

func (s Status) rank() int {
	switch s {
	case StatusReported:
		return 0
	case StatusInvestigating:
		return 1
	case StatusResolved:
		return 2
	case StatusClosed:
		return 3
	}
	return -1
}

// FIRStatus tracks the police report.
type FIRStatus string

const (
	FIRPending            FIRStatus = "pending"
	FIRFiled              FIRStatus = "filed"
	FIRUnderInvestigation FIRStatus = "under_investigation"
	FIRClosed             FIRStatus = "closed"
)

// IsValid reports whether s is a known FIR status.
func (s FIRStatus) IsValid() bool {
	switch s {
	case FIRPending, FIRFiled, FIRUnderInvestigation, FIRClosed:
		return true
	}
	return false
}

// ActionType labels an entry in the action log.
type ActionType string

const (
	ActionPoliceAssigned    ActionType = "police_assigned"
	ActionEvidenceCollected ActionType = "evidence_collected"
	ActionStatementRecorded ActionType = "statement_recorded"
	ActionFIRFiled          ActionType = "fir_filed"
	ActionCaseClosed        ActionType = "case_closed"
)

// ActionLog is an append-only follow-up entry.
type ActionLog struct {
	Type        ActionType `json:"action_type"`
	Description string     `json:"description"`
	TakenBy     string     `json:"taken_by"`
	Timestamp   time.Time  `json:"timestamp"`
}

// Place is where the incident happened.
type Place struct {
	tourist.Location
	Landmark string `json:"landmark,omitempty"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
}

// Officer is the assigned police contact.
type Officer struct {
	Name          string `json:"name"`
	BadgeNumber   string `json:"badge_number"`
	Station       string `json:"station"`
	ContactNumber string `json:"contact_number"`
}

// Reporter is who filed the ticket.
type Reporter struct {
	Name         string `json:"name"`
	PhoneNumber  string `json:"phone_number"`
	Email        string `json:"email,omitempty"`
	Relationship string `json:"relationship"`
}

// Incident is the aggregate root.
type Incident struct {
	shared.BaseAggregateRoot
	Code        string
	TouristID   uuid.UUID
	Type        Type
	Severity    Severity
	Status      Status
	FIRStatus   FIRStatus
	FIRNumber   string
	Place       Place
	OccurredAt  time.Time
	Description string
	Witnesses   []string
	EvidenceRef string
	Officer     *Officer
	ReportedBy  Reporter
	Actions     []ActionLog
}

// NewIncidentParams carries reporter input.
type NewIncidentParams struct {
	TouristID   uuid.UUID
	Type        Type
	Severity    Severity
	Place       Place
	OccurredAt  time.Time
	Description string
	Witnesses   []string
	EvidenceRef string
	ReportedBy  Reporter
}

// FormatCode renders the human ticket number FIR-YYYY-NNNNNN.
func FormatCode(year, seq int) string {
	return fmt.Sprintf("FIR-%d-%06d", year, seq)
}

// NewIncident opens a ticket in the reported state.
func NewIncident(code string, p NewIncidentParams, now time.Time) (*Incident, error) {
	if p.TouristID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TOURIST", "tourist id is required")
	}
	if !p.Type.IsValid() {
		return nil, shared.NewDomainError("INVALID_TYPE", fmt.Sprintf("unknown incident type %q", p.Type))
	}
	if p.Severity == "" {
		p.Severity = SeverityMedium
	}
	if !p.Severity.IsValid() {
		return nil, shared.NewDomainError("INVALID_SEVERITY", fmt.Sprintf("unknown severity %q", p.Severity))
	}
	if p.Description == "" || p.OccurredAt.IsZero() {
		return nil, shared.NewDomainError("INVALID_INPUT", "description and date/time are required")
	}
	if err := p.Place.Validate(); err != nil {
		return nil, err
	}
	if p.ReportedBy.Relationship == "" {
		p.ReportedBy.Relationship = "self"
	}

	return &Incident{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(now),
		Code:              code,
		TouristID:         p.TouristID,
		Type:              p.Type,
		Severity:          p.Severity,
		Status:            StatusReported,
		FIRStatus:         FIRPending,
		Place:             p.Place,
		OccurredAt:        p.OccurredAt,
		Description:       p.Description,
		Witnesses:         p.Witnesses,
		EvidenceRef:       p.EvidenceRef,
		ReportedBy:        p.ReportedBy,
		Actions: []ActionLog{{
			Type:        ActionPoliceAssigned,
			Description: "Incident reported and awaiting police assignment",
			TakenBy:     "SYSTEM",
			Timestamp:   now,
		}},
	}, nil
}

// StatusUpdate carries an officer's changes.
type StatusUpdate struct {
	Status     Status
	FIRStatus  FIRStatus
	FIRNumber  string
	Officer    *Officer
	ActionType ActionType
	ActionNote string
	TakenBy    string
}

// ApplyUpdate moves the ticket forward and appends an action log entry.
// Status never moves backwards.
func (i *Incident) ApplyUpdate(u StatusUpdate, now time.Time) error {
	if u.Status != "" {
		if u.Status.rank() < 0 {
			return shared.NewDomainError("INVALID_STATUS", fmt.Sprintf("unknown status %q", u.Status))
		}
		if u.Status.rank() < i.Status.rank() {
			return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("cannot move incident from %s back to %s", i.Status, u.Status))
		}
		i.Status = u.Status
	}
	if u.FIRStatus != "" {
		if !u.FIRStatus.IsValid() {
			return shared.NewDomainError("INVALID_STATUS", fmt.Sprintf("unknown FIR status %q", u.FIRStatus))
		}
		i.FIRStatus = u.FIRStatus
	}
	if u.FIRNumber != "" {
		i.FIRNumber = u.FIRNumber
	}
	if u.Officer != nil {
		i.Officer = u.Officer
	}
	if u.ActionNote != "" {
		actionType := u.ActionType
		if actionType == "" {
			actionType = ActionStatementRecorded
		}
		i.Actions = append(i.Actions, ActionLog{
			Type:        actionType,
			Description: u.ActionNote,
			TakenBy:     u.TakenBy,
			Timestamp:   now,
		})
	}
	i.Touch(now)
	return nil
}
