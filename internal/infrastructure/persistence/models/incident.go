package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tsafe/backend/internal/domain/incident"
)

// IncidentModel is the persistence model for the Incident aggregate
type IncidentModel struct {
	AggregateModel
	Code        string                           `gorm:"type:varchar(20);not null;uniqueIndex"`
	TouristID   uuid.UUID                        `gorm:"type:uuid;not null;index"`
	Type        string                           `gorm:"type:varchar(20);not null;index"`
	Severity    string                           `gorm:"type:varchar(20);not null;index"`
	Status      string                           `gorm:"type:varchar(20);not null;index"`
	FIRStatus   string                           `gorm:"column:fir_status;type:varchar(30);not null"`
	FIRNumber   string                           `gorm:"column:fir_number;type:varchar(50)"`
	Place       JSONColumn[incident.Place]       `gorm:"type:jsonb;not null"`
	OccurredAt  time.Time                        `gorm:"not null"`
	Description string                           `gorm:"type:text;not null"`
	Witnesses   JSONColumn[[]string]             `gorm:"type:jsonb;not null;default:'[]'"`
	EvidenceRef string                           `gorm:"type:text"`
	Officer     JSONColumn[*incident.Officer]    `gorm:"type:jsonb"`
	ReportedBy  JSONColumn[incident.Reporter]    `gorm:"type:jsonb;not null"`
	Actions     JSONColumn[[]incident.ActionLog] `gorm:"type:jsonb;not null;default:'[]'"`
}

// TableName returns the table name for GORM
func (IncidentModel) TableName() string {
	return "incidents"
}

// ToDomain converts the persistence model to a domain Incident
func (m *IncidentModel) ToDomain() *incident.Incident {
	return &incident.Incident{
		BaseAggregateRoot: m.AggregateModel.ToDomainAggregateRoot(),
		Code:              m.Code,
		TouristID:         m.TouristID,
		Type:              incident.Type(m.Type),
		Severity:          incident.Severity(m.Severity),
		Status:            incident.Status(m.Status),
		FIRStatus:         incident.FIRStatus(m.FIRStatus),
		FIRNumber:         m.FIRNumber,
		Place:             m.Place.Data,
		OccurredAt:        m.OccurredAt,
		Description:       m.Description,
		Witnesses:         m.Witnesses.Data,
		EvidenceRef:       m.EvidenceRef,
		Officer:           m.Officer.Data,
		ReportedBy:        m.ReportedBy.Data,
		Actions:           m.Actions.Data,
	}
}

// FromDomain populates the persistence model from a domain Incident
func (m *IncidentModel) FromDomain(i *incident.Incident) {
	m.FromDomainAggregateRoot(i.BaseAggregateRoot)
	m.Code = i.Code
	m.TouristID = i.TouristID
	m.Type = string(i.Type)
	m.Severity = string(i.Severity)
	m.Status = string(i.Status)
	m.FIRStatus = string(i.FIRStatus)
	m.FIRNumber = i.FIRNumber
	m.Place = NewJSONColumn(i.Place)
	m.OccurredAt = i.OccurredAt
	m.Description = i.Description
	m.Witnesses = NewJSONColumn(nonNil(i.Witnesses))
	m.EvidenceRef = i.EvidenceRef
	m.Officer = NewJSONColumn(i.Officer)
	m.ReportedBy = NewJSONColumn(i.ReportedBy)
	m.Actions = NewJSONColumn(nonNil(i.Actions))
}

// IncidentModelFromDomain creates a new persistence model from a domain Incident
func IncidentModelFromDomain(i *incident.Incident) *IncidentModel {
	m := &IncidentModel{}
	m.FromDomain(i)
	return m
}
