package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tsafe/backend/internal/domain/tourist"
)

// TouristModel is the persistence model for the Tourist aggregate.
// Work items and panics are embedded JSON documents so a single row update
// writes the whole aggregate.
type TouristModel struct {
	AggregateModel
	UserID         uuid.UUID                         `gorm:"type:uuid;not null;uniqueIndex"`
	FullName       string                            `gorm:"type:varchar(200)"`
	PhoneNumber    string                            `gorm:"type:varchar(20)"`
	DateOfBirth    *time.Time                        `gorm:"type:date"`
	Nationality    string                            `gorm:"type:varchar(20);not null;default:'pending'"`
	TouristCode    string                            `gorm:"type:varchar(40);index"`
	ChainID        string                            `gorm:"type:varchar(66);not null;uniqueIndex"`
	OwnerWallet    string                            `gorm:"type:varchar(42);not null;index"`
	KYCMethod      string                            `gorm:"column:kyc_method;type:varchar(20);not null;default:'pending'"`
	KYCStatus      string                            `gorm:"column:kyc_status;type:varchar(20);not null;default:'pending'"`
	KYCVerifiedAt  *time.Time                        `gorm:"column:kyc_verified_at"`
	KYCRef         string                            `gorm:"column:kyc_ref;type:text;not null"`
	EmergencyRef   string                            `gorm:"type:text;not null"`
	ValidUntil     time.Time                         `gorm:"not null"`
	TrackingOptIn  bool                              `gorm:"not null;default:false"`
	IsActive       bool                              `gorm:"not null;default:false"`
	Panics         JSONColumn[[]tourist.PanicRecord] `gorm:"type:jsonb;not null;default:'[]'"`
	PanicCount     int                               `gorm:"not null;default:0"`
	WorkItems      JSONColumn[[]tourist.WorkItem]    `gorm:"type:jsonb;not null;default:'[]'"`
	UnresolvedWork int                               `gorm:"not null;default:0;index"`
}

// TableName returns the table name for GORM
func (TouristModel) TableName() string {
	return "tourists"
}

// ToDomain converts the persistence model to a domain Tourist
func (m *TouristModel) ToDomain() *tourist.Tourist {
	return &tourist.Tourist{
		BaseAggregateRoot: m.AggregateModel.ToDomainAggregateRoot(),
		UserID:            m.UserID,
		FullName:          m.FullName,
		PhoneNumber:       m.PhoneNumber,
		DateOfBirth:       m.DateOfBirth,
		Nationality:       tourist.Nationality(m.Nationality),
		TouristCode:       m.TouristCode,
		ChainID:           m.ChainID,
		OwnerWallet:       m.OwnerWallet,
		KYC: tourist.KYCRecord{
			Method:     tourist.KYCMethod(m.KYCMethod),
			Status:     tourist.KYCStatus(m.KYCStatus),
			VerifiedAt: m.KYCVerifiedAt,
		},
		KYCRef:        m.KYCRef,
		EmergencyRef:  m.EmergencyRef,
		ValidUntil:    m.ValidUntil,
		TrackingOptIn: m.TrackingOptIn,
		IsActive:      m.IsActive,
		Panics:        m.Panics.Data,
		WorkItems:     m.WorkItems.Data,
	}
}

// FromDomain populates the persistence model from a domain Tourist and
// refreshes the denormalised counters used by queries.
func (m *TouristModel) FromDomain(t *tourist.Tourist) {
	m.FromDomainAggregateRoot(t.BaseAggregateRoot)
	m.UserID = t.UserID
	m.FullName = t.FullName
	m.PhoneNumber = t.PhoneNumber
	m.DateOfBirth = t.DateOfBirth
	m.Nationality = string(t.Nationality)
	m.TouristCode = t.TouristCode
	m.ChainID = t.ChainID
	m.OwnerWallet = t.OwnerWallet
	m.KYCMethod = string(t.KYC.Method)
	m.KYCStatus = string(t.KYC.Status)
	m.KYCVerifiedAt = t.KYC.VerifiedAt
	m.KYCRef = t.KYCRef
	m.EmergencyRef = t.EmergencyRef
	m.ValidUntil = t.ValidUntil
	m.TrackingOptIn = t.TrackingOptIn
	m.IsActive = t.IsActive
	m.Panics = NewJSONColumn(nonNil(t.Panics))
	m.PanicCount = len(t.Panics)
	m.WorkItems = NewJSONColumn(nonNil(t.WorkItems))
	m.UnresolvedWork = len(t.UnresolvedWork())
}

// TouristModelFromDomain creates a new persistence model from a domain Tourist
func TouristModelFromDomain(t *tourist.Tourist) *TouristModel {
	m := &TouristModel{}
	m.FromDomain(t)
	return m
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
