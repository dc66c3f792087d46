package tourist

import (
	"time"

	"github.com/google/uuid"

	"github.com/tsafe/backend/internal/domain/tourist"
)

// =============================================================================
// Producer DTOs
// =============================================================================

// EmergencyContact is one entry of the sealed emergency contact list
type EmergencyContact struct {
	Name         string `json:"name" binding:"required,min=1,max=200"`
	Phone        string `json:"phone" binding:"required,min=5,max=20"`
	Relationship string `json:"relationship" binding:"max=50"`
}

// RegisterRequest creates the caller's tourist profile
type RegisterRequest struct {
	FullName          string             `json:"full_name" binding:"required,min=1,max=200"`
	PhoneNumber       string             `json:"phone_number" binding:"required,max=20"`
	DateOfBirth       string             `json:"date_of_birth" binding:"omitempty,datetime=2006-01-02"`
	EmergencyContacts []EmergencyContact `json:"emergency_contacts" binding:"required,min=1,max=10,dive"`
	// ValidUntil is a unix timestamp in seconds. Zero uses the default validity.
	ValidUntil    int64  `json:"valid_until"`
	TrackingOptIn bool   `json:"tracking_opt_in"`
	OwnerWallet   string `json:"owner_wallet" binding:"required,eth_addr"`
}

// UpdateProfileRequest replaces emergency contacts and/or tracking consent
type UpdateProfileRequest struct {
	EmergencyContacts []EmergencyContact `json:"emergency_contacts" binding:"omitempty,max=10,dive"`
	TrackingOptIn     *bool              `json:"tracking_opt_in"`
}

// RaisePanicRequest raises an SOS
type RaisePanicRequest struct {
	Location    tourist.Location `json:"location" binding:"required"`
	Description string           `json:"description" binding:"max=2000"`
	// Evidence holds already-uploaded media references.
	Evidence  []string `json:"evidence" binding:"max=20"`
	UserAgent string   `json:"-"`
}

// PushScoreRequest carries a computed safety score
type PushScoreRequest struct {
	// SafetyLevel is 0 (green), 1 (yellow) or 2 (red).
	SafetyLevel  *int           `json:"safety_level" binding:"required,min=0,max=2"`
	Factors      map[string]any `json:"factors"`
	ModelVersion string         `json:"ai_model_version" binding:"max=50"`
}

// InitiateKYCRequest starts an OTP verification. Fields apply per method.
type InitiateKYCRequest struct {
	Method             tourist.KYCMethod `json:"method" binding:"required,oneof=digilocker passport"`
	FullName           string            `json:"full_name" binding:"required,min=1,max=200"`
	PhoneNumber        string            `json:"phone_number" binding:"required,max=20"`
	DateOfBirth        string            `json:"date_of_birth" binding:"required,datetime=2006-01-02"`
	Address            string            `json:"address" binding:"max=500"`
	AadhaarNumber      string            `json:"aadhaar_number" binding:"max=20"`
	PassportNumber     string            `json:"passport_number" binding:"max=20"`
	PassportCountry    string            `json:"passport_country" binding:"max=100"`
	PassportExpiryDate string            `json:"passport_expiry_date" binding:"omitempty,datetime=2006-01-02"`
}

// VerifyKYCRequest answers the OTP challenge
type VerifyKYCRequest struct {
	OTP string `json:"otp" binding:"required,len=6,numeric"`
}

// =============================================================================
// Responses
// =============================================================================

// WorkItemResponse is a work item as shown to API clients
type WorkItemResponse struct {
	ID            uuid.UUID `json:"id"`
	Action        string    `json:"action"`
	Status        string    `json:"status"`
	DisplayStatus string    `json:"display_status"`
	PayloadRef    string    `json:"payload_ref"`
	LedgerHandle  string    `json:"ledger_handle,omitempty"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RegisterResponse is returned after a profile is created
type RegisterResponse struct {
	TouristID     uuid.UUID `json:"tourist_id"`
	ChainID       string    `json:"chain_id"`
	ValidUntil    int64     `json:"valid_until"`
	OnchainStatus string    `json:"onchain_status"`
	KYCStatus     string    `json:"kyc_status"`
	IsActive      bool      `json:"is_active"`
	Message       string    `json:"message"`
}

// PanicResponse is returned after an SOS is recorded
type PanicResponse struct {
	PanicID         uuid.UUID        `json:"panic_id"`
	WorkItem        WorkItemResponse `json:"work_item"`
	EmergencyNumber string           `json:"emergency_number"`
	Message         string           `json:"message"`
}

// ScorePushResponse is returned after a score is queued
type ScorePushResponse struct {
	WorkItem    WorkItemResponse `json:"work_item"`
	SafetyLevel int              `json:"safety_level"`
	ScoreRef    string           `json:"score_ref"`
}

// PanicView is a panic record with its derived ledger status
type PanicView struct {
	ID            uuid.UUID        `json:"id"`
	Location      tourist.Location `json:"location"`
	RaisedAt      time.Time        `json:"raised_at"`
	OnchainStatus string           `json:"onchain_status"`
	Evidence      *PanicEvidence   `json:"evidence,omitempty"`
}

// TouristResponse is the full profile view
type TouristResponse struct {
	ID            uuid.UUID          `json:"id"`
	UserID        uuid.UUID          `json:"user_id"`
	TouristCode   string             `json:"tourist_code,omitempty"`
	ChainID       string             `json:"chain_id"`
	OwnerWallet   string             `json:"owner_wallet"`
	FullName      string             `json:"full_name"`
	Nationality   string             `json:"nationality"`
	KYCMethod     string             `json:"kyc_method"`
	KYCStatus     string             `json:"kyc_status"`
	ValidUntil    time.Time          `json:"valid_until"`
	TrackingOptIn bool               `json:"tracking_opt_in"`
	IsActive      bool               `json:"is_active"`
	OnchainStatus string             `json:"onchain_status"`
	WorkItems     []WorkItemResponse `json:"work_items"`
	Panics        []PanicView        `json:"panics,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`

	// Populated only when decryption was requested.
	KYCData           *KYCDocument       `json:"kyc_data,omitempty"`
	EmergencyContacts []EmergencyContact `json:"emergency_contacts,omitempty"`
	DecryptError      string             `json:"decrypt_error,omitempty"`
}

// BlockchainDetails counts a tourist's work items
type BlockchainDetails struct {
	TotalTransactions      int `json:"total_transactions"`
	SuccessfulTransactions int `json:"successful_transactions"`
	FailedTransactions     int `json:"failed_transactions"`
	PendingTransactions    int `json:"pending_transactions"`
}

// DashboardTourist is the profile block of the dashboard
type DashboardTourist struct {
	ID                   uuid.UUID `json:"id"`
	TouristCode          string    `json:"tourist_code,omitempty"`
	ChainID              string    `json:"chain_id"`
	Nationality          string    `json:"nationality"`
	ValidUntil           time.Time `json:"valid_until"`
	TrackingOptIn        bool      `json:"tracking_opt_in"`
	KYCStatus            string    `json:"kyc_status"`
	OnchainStatus        string    `json:"onchain_status"`
	IsRegisteredOnChain  bool      `json:"is_registered_on_chain"`
	LastTxHash           string    `json:"last_tx_hash,omitempty"`
	LastSuccessfulTxHash string    `json:"last_successful_tx_hash,omitempty"`
	PanicCount           int       `json:"panic_count"`
	ActivePanics         int       `json:"active_panics"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// DashboardResponse is the caller's overview
type DashboardResponse struct {
	HasProfile        bool               `json:"has_profile"`
	Tourist           *DashboardTourist  `json:"tourist,omitempty"`
	CanCompleteKYC    bool               `json:"can_complete_kyc"`
	BlockchainDetails *BlockchainDetails `json:"blockchain_details,omitempty"`
	Message           string             `json:"message"`
}

// TouristListItem is one row of the admin listing
type TouristListItem struct {
	ID            uuid.UUID `json:"id"`
	TouristCode   string    `json:"tourist_code,omitempty"`
	ChainID       string    `json:"chain_id"`
	FullName      string    `json:"full_name"`
	Nationality   string    `json:"nationality"`
	KYCStatus     string    `json:"kyc_status"`
	OnchainStatus string    `json:"onchain_status"`
	IsActive      bool      `json:"is_active"`
	PanicCount    int       `json:"panic_count"`
	ValidUntil    time.Time `json:"valid_until"`
	CreatedAt     time.Time `json:"created_at"`
}

// ListResponse is a page of tourists plus dashboard counts
type ListResponse struct {
	Tourists   []TouristListItem `json:"tourists"`
	Total      int64             `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
	Summary    tourist.Summary   `json:"summary"`
}

// InitiateKYCResponse confirms an OTP was issued
type InitiateKYCResponse struct {
	Method      string `json:"method"`
	PhoneNumber string `json:"phone_number"`
	ExpiresIn   int    `json:"expires_in"`
	Message     string `json:"message"`
}

// VerifyKYCResponse is returned once KYC completes
type VerifyKYCResponse struct {
	TouristCode string           `json:"tourist_code"`
	QRCode      string           `json:"qr_code"`
	Method      string           `json:"method"`
	Name        string           `json:"name"`
	MaskedID    string           `json:"masked_id"`
	PhoneNumber string           `json:"phone_number"`
	Tourist     TouristResponse  `json:"tourist"`
	WorkItem    WorkItemResponse `json:"work_item"`
}

// KYCStatusResponse reports verification progress
type KYCStatusResponse struct {
	HasProfile          bool              `json:"has_profile"`
	KYCStatus           string            `json:"kyc_status"`
	KYCMethod           string            `json:"kyc_method"`
	Nationality         string            `json:"nationality,omitempty"`
	TouristID           *uuid.UUID        `json:"tourist_id,omitempty"`
	TouristCode         string            `json:"tourist_code,omitempty"`
	ChainID             string            `json:"chain_id,omitempty"`
	BlockchainStatus    string            `json:"blockchain_status"`
	IsRegisteredOnChain bool              `json:"is_registered_on_chain"`
	IsActive            bool              `json:"is_active"`
	ChallengePending    bool              `json:"challenge_pending"`
	LatestTransaction   *WorkItemResponse `json:"latest_transaction,omitempty"`
}

// =============================================================================
// Sealed documents
// =============================================================================

// KYCDocument is the sealed payload behind a tourist's KYC reference
type KYCDocument struct {
	Method     tourist.KYCMethod `json:"method"`
	Status     tourist.KYCStatus `json:"status"`
	Data       KYCData           `json:"data"`
	VerifiedAt *time.Time        `json:"verified_at,omitempty"`
}

// KYCData holds the identity fields of a KYC document
type KYCData struct {
	FullName           string     `json:"full_name"`
	PhoneNumber        string     `json:"phone_number"`
	DateOfBirth        *time.Time `json:"date_of_birth,omitempty"`
	Address            string     `json:"address,omitempty"`
	AadhaarNumber      string     `json:"aadhaar_number,omitempty"`
	PassportNumber     string     `json:"passport_number,omitempty"`
	PassportCountry    string     `json:"passport_country,omitempty"`
	PassportExpiryDate *time.Time `json:"passport_expiry_date,omitempty"`
}

// PanicEvidence is the sealed payload behind a panic item
type PanicEvidence struct {
	Location     tourist.Location `json:"location"`
	Evidence     []string         `json:"evidence,omitempty"`
	Description  string           `json:"description,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
	ReportedBy   uuid.UUID        `json:"reported_by"`
	DeviceInfo   string           `json:"device_info,omitempty"`
	UrgencyLevel string           `json:"urgency_level"`
}

// ScoreDocument is the sealed payload behind a score item
type ScoreDocument struct {
	ChainID      string         `json:"tourist_id"`
	SafetyLevel  int            `json:"safety_level"`
	Factors      map[string]any `json:"factors,omitempty"`
	ModelVersion string         `json:"ai_model_version"`
	Timestamp    time.Time      `json:"timestamp"`
	CalculatedBy string         `json:"calculated_by"`
}

func toWorkItemResponse(w tourist.WorkItem) WorkItemResponse {
	return WorkItemResponse{
		ID:            w.ID,
		Action:        w.Action.String(),
		Status:        w.Status.String(),
		DisplayStatus: tourist.DisplayStatus(w.Status),
		PayloadRef:    w.PayloadRef,
		LedgerHandle:  w.LedgerHandle,
		Error:         w.Error,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
	}
}

func toTouristResponse(t *tourist.Tourist) TouristResponse {
	items := make([]WorkItemResponse, len(t.WorkItems))
	for i := range t.WorkItems {
		items[i] = toWorkItemResponse(t.WorkItems[i])
	}
	panics := make([]PanicView, len(t.Panics))
	for i, p := range t.Panics {
		panics[i] = PanicView{
			ID:            p.ID,
			Location:      p.Location,
			RaisedAt:      p.RaisedAt,
			OnchainStatus: t.PanicStatus(p).String(),
		}
	}
	return TouristResponse{
		ID:            t.ID,
		UserID:        t.UserID,
		TouristCode:   t.TouristCode,
		ChainID:       t.ChainID,
		OwnerWallet:   t.OwnerWallet,
		FullName:      t.FullName,
		Nationality:   string(t.Nationality),
		KYCMethod:     string(t.KYC.Method),
		KYCStatus:     string(t.KYC.Status),
		ValidUntil:    t.ValidUntil,
		TrackingOptIn: t.TrackingOptIn,
		IsActive:      t.IsActive,
		OnchainStatus: string(tourist.SummarizeChain(t.WorkItems).Status),
		WorkItems:     items,
		Panics:        panics,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func toListItem(t *tourist.Tourist) TouristListItem {
	return TouristListItem{
		ID:            t.ID,
		TouristCode:   t.TouristCode,
		ChainID:       t.ChainID,
		FullName:      t.FullName,
		Nationality:   string(t.Nationality),
		KYCStatus:     string(t.KYC.Status),
		OnchainStatus: string(tourist.SummarizeChain(t.WorkItems).Status),
		IsActive:      t.IsActive,
		PanicCount:    len(t.Panics),
		ValidUntil:    t.ValidUntil,
		CreatedAt:     t.CreatedAt,
	}
}
