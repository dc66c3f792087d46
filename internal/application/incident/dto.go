package incident

import (
	"time"

	"github.com/google/uuid"

	"github.com/tsafe/backend/internal/domain/incident"
)

// ReportRequest opens an incident ticket for a tourist
type ReportRequest struct {
	TouristID   uuid.UUID          `json:"tourist_id" binding:"required"`
	Type        incident.Type      `json:"type" binding:"required,oneof=theft assault fraud harassment medical accident missing other"`
	Severity    incident.Severity  `json:"severity" binding:"omitempty,oneof=low medium high critical"`
	Location    incident.Place     `json:"location" binding:"required"`
	OccurredAt  time.Time          `json:"date_time" binding:"required"`
	Description string             `json:"description" binding:"required,min=1,max=5000"`
	Witnesses   []string           `json:"witnesses" binding:"max=20"`
	Evidence    []string           `json:"evidence_files" binding:"max=20,dive,cid"`
	ReportedBy  *incident.Reporter `json:"reported_by"`
}

// UpdateStatusRequest records an officer's follow-up
type UpdateStatusRequest struct {
	Status      incident.Status     `json:"status" binding:"omitempty,oneof=reported investigating resolved closed"`
	FIRStatus   incident.FIRStatus  `json:"fir_status" binding:"omitempty,oneof=pending filed under_investigation closed"`
	FIRNumber   string              `json:"fir_number" binding:"max=50"`
	Officer     *incident.Officer   `json:"assigned_officer"`
	ActionType  incident.ActionType `json:"action_type" binding:"omitempty,oneof=police_assigned evidence_collected statement_recorded fir_filed case_closed"`
	ActionNote  string              `json:"action_description" binding:"max=2000"`
	OfficerName string              `json:"-"`
}

// ReportResponse confirms a new ticket
type ReportResponse struct {
	Incident         Response   `json:"incident"`
	PanicID          *uuid.UUID `json:"panic_id,omitempty"`
	EmergencyContact string     `json:"emergency_contact"`
	Message          string     `json:"message"`
}

// Response is an incident as shown to API clients
type Response struct {
	ID          uuid.UUID            `json:"id"`
	Code        string               `json:"incident_id"`
	TouristID   uuid.UUID            `json:"tourist_id"`
	Type        string               `json:"type"`
	Severity    string               `json:"severity"`
	Status      string               `json:"status"`
	FIRStatus   string               `json:"fir_status"`
	FIRNumber   string               `json:"fir_number,omitempty"`
	Location    incident.Place       `json:"location"`
	OccurredAt  time.Time            `json:"date_time"`
	Description string               `json:"description"`
	Witnesses   []string             `json:"witnesses,omitempty"`
	EvidenceRef string               `json:"evidence_ref"`
	Officer     *incident.Officer    `json:"assigned_officer,omitempty"`
	ReportedBy  incident.Reporter    `json:"reported_by"`
	Actions     []incident.ActionLog `json:"actions"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// Report is the sealed payload behind an incident's evidence reference
type Report struct {
	Code        string            `json:"incident_id"`
	TouristID   uuid.UUID         `json:"tourist_id"`
	ChainID     string            `json:"onchain_tourist_id"`
	Type        incident.Type     `json:"type"`
	Severity    incident.Severity `json:"severity"`
	Location    incident.Place    `json:"location"`
	OccurredAt  time.Time         `json:"date_time"`
	Description string            `json:"description"`
	Witnesses   []string          `json:"witnesses,omitempty"`
	Evidence    []string          `json:"evidence_files,omitempty"`
	ReportedBy  incident.Reporter `json:"reported_by"`
	Timestamp   time.Time         `json:"timestamp"`
}

func toResponse(i *incident.Incident) Response {
	return Response{
		ID:          i.ID,
		Code:        i.Code,
		TouristID:   i.TouristID,
		Type:        string(i.Type),
		Severity:    string(i.Severity),
		Status:      string(i.Status),
		FIRStatus:   string(i.FIRStatus),
		FIRNumber:   i.FIRNumber,
		Location:    i.Place,
		OccurredAt:  i.OccurredAt,
		Description: i.Description,
		Witnesses:   i.Witnesses,
		EvidenceRef: i.EvidenceRef,
		Officer:     i.Officer,
		ReportedBy:  i.ReportedBy,
		Actions:     i.Actions,
		CreatedAt:   i.CreatedAt,
		UpdatedAt:   i.UpdatedAt,
	}
}
