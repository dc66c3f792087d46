package tourist

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tsafe/backend/internal/domain/shared"
)

// Nationality classifies a tourist for KYC routing.
type Nationality string

const (
	NationalityPending       Nationality = "pending"
	NationalityIndian        Nationality = "indian"
	NationalityInternational Nationality = "international"
)

// KYCMethod is the verification channel used for a tourist.
type KYCMethod string

const (
	KYCMethodPending    KYCMethod = "pending"
	KYCMethodDigilocker KYCMethod = "digilocker"
	KYCMethodPassport   KYCMethod = "passport"
)

// KYCStatus is the verification outcome.
type KYCStatus string

const (
	KYCStatusPending  KYCStatus = "pending"
	KYCStatusVerified KYCStatus = "verified"
	KYCStatusFailed   KYCStatus = "failed"
)

// KYCRecord is the non-sensitive summary kept on the aggregate. The full
// document lives encrypted behind KYCRef.
type KYCRecord struct {
	Method     KYCMethod  `json:"method"`
	Status     KYCStatus  `json:"status"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

// Location is a reported position.
type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

// Validate checks coordinate ranges.
func (l Location) Validate() error {
	if l.Lat < -90 || l.Lat > 90 {
		return shared.NewDomainError("INVALID_LOCATION", fmt.Sprintf("latitude %v out of range", l.Lat))
	}
	if l.Lng < -180 || l.Lng > 180 {
		return shared.NewDomainError("INVALID_LOCATION", fmt.Sprintf("longitude %v out of range", l.Lng))
	}
	return nil
}

// PanicRecord is an SOS raised by the tourist. Its ledger status is read from
// the linked panic WorkItem.
type PanicRecord struct {
	ID          uuid.UUID `json:"id"`
	Location    Location  `json:"location"`
	Description string    `json:"description,omitempty"`
	EvidenceRef string    `json:"evidence_ref"`
	WorkItemID  uuid.UUID `json:"work_item_id"`
	RaisedAt    time.Time `json:"raised_at"`
}

// Tourist is the aggregate root owning the WorkItems.
type Tourist struct {
	shared.BaseAggregateRoot
	UserID        uuid.UUID
	FullName      string
	PhoneNumber   string
	DateOfBirth   *time.Time
	Nationality   Nationality
	TouristCode   string
	ChainID       string
	OwnerWallet   string
	KYC           KYCRecord
	KYCRef        string
	EmergencyRef  string
	ValidUntil    time.Time
	TrackingOptIn bool
	IsActive      bool
	Panics        []PanicRecord
	WorkItems     []WorkItem
}

// NewTouristParams carries the producer inputs for registration.
type NewTouristParams struct {
	UserID        uuid.UUID
	FullName      string
	PhoneNumber   string
	DateOfBirth   *time.Time
	OwnerWallet   string
	KYCRef        string
	EmergencyRef  string
	ValidUntil    time.Time
	TrackingOptIn bool
}

// NewTourist creates a tourist with its initial pending register WorkItem.
func NewTourist(p NewTouristParams, now time.Time) (*Tourist, error) {
	if p.UserID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_USER", "user id is required")
	}
	if !IsValidWallet(p.OwnerWallet) {
		return nil, shared.NewDomainError("INVALID_WALLET", "owner wallet must be a 0x-prefixed 40 hex character address")
	}
	if p.KYCRef == "" || p.EmergencyRef == "" {
		return nil, shared.NewDomainError("MISSING_PAYLOAD", "kyc and emergency payload references are required")
	}
	if !p.ValidUntil.After(now) {
		return nil, shared.NewDomainError("INVALID_EXPIRY", "validUntil must be in the future")
	}

	t := &Tourist{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(now),
		UserID:            p.UserID,
		FullName:          p.FullName,
		PhoneNumber:       p.PhoneNumber,
		DateOfBirth:       p.DateOfBirth,
		Nationality:       NationalityPending,
		OwnerWallet:       NormalizeWallet(p.OwnerWallet),
		KYC:               KYCRecord{Method: KYCMethodPending, Status: KYCStatusPending},
		KYCRef:            p.KYCRef,
		EmergencyRef:      p.EmergencyRef,
		ValidUntil:        p.ValidUntil,
		TrackingOptIn:     p.TrackingOptIn,
	}
	t.ChainID = DeriveChainID(t.ID)

	item, err := NewWorkItem(ActionRegister, p.KYCRef, now)
	if err != nil {
		return nil, err
	}
	t.WorkItems = []WorkItem{item}
	return t, nil
}

// AppendWorkItem appends a pending item. Existing items are never touched.
// A second register is refused while one is outstanding or already confirmed.
func (t *Tourist) AppendWorkItem(action Action, payloadRef string, now time.Time) (WorkItem, error) {
	if action == ActionRegister && t.hasLiveRegistration() {
		return WorkItem{}, shared.NewDomainError("ALREADY_REGISTERED", "a registration is already confirmed or in progress")
	}
	item, err := NewWorkItem(action, payloadRef, now)
	if err != nil {
		return WorkItem{}, shared.NewDomainError("INVALID_ACTION", err.Error())
	}
	t.WorkItems = append(t.WorkItems, item)
	t.Touch(now)
	return item, nil
}

func (t *Tourist) hasLiveRegistration() bool {
	if t.ConfirmedRegistrations() > 0 {
		return true
	}
	for i := range t.WorkItems {
		if t.WorkItems[i].Action == ActionRegister && t.WorkItems[i].IsUnresolved() {
			return true
		}
	}
	return false
}

// WorkItem returns a pointer to the item with the given id for in-place mutation.
func (t *Tourist) WorkItem(id uuid.UUID) (*WorkItem, bool) {
	for i := range t.WorkItems {
		if t.WorkItems[i].ID == id {
			return &t.WorkItems[i], true
		}
	}
	return nil, false
}

// UnresolvedWork returns the ids of pending and submitted items in stored order.
func (t *Tourist) UnresolvedWork() []uuid.UUID {
	var ids []uuid.UUID
	for i := range t.WorkItems {
		if t.WorkItems[i].IsUnresolved() {
			ids = append(ids, t.WorkItems[i].ID)
		}
	}
	return ids
}

// HasUnresolvedWork reports whether any item still needs the worker.
func (t *Tourist) HasUnresolvedWork() bool {
	for i := range t.WorkItems {
		if t.WorkItems[i].IsUnresolved() {
			return true
		}
	}
	return false
}

// ConfirmedRegistrations counts register items that reached confirmed.
func (t *Tourist) ConfirmedRegistrations() int {
	n := 0
	for i := range t.WorkItems {
		if t.WorkItems[i].Action == ActionRegister && t.WorkItems[i].Status == StatusConfirmed {
			n++
		}
	}
	return n
}

// IsOwnedBy reports whether the user owns this profile.
func (t *Tourist) IsOwnedBy(userID uuid.UUID) bool {
	return t.UserID == userID
}

// UpdateProfile replaces the emergency payload and tracking consent and
// appends an update item carrying the new reference.
func (t *Tourist) UpdateProfile(emergencyRef string, trackingOptIn *bool, now time.Time) (WorkItem, error) {
	if emergencyRef == "" {
		return WorkItem{}, shared.NewDomainError("MISSING_PAYLOAD", "emergency payload reference is required")
	}
	t.EmergencyRef = emergencyRef
	if trackingOptIn != nil {
		t.TrackingOptIn = *trackingOptIn
	}
	return t.AppendWorkItem(ActionUpdate, emergencyRef, now)
}

// RaisePanic records an SOS and appends the matching panic item.
func (t *Tourist) RaisePanic(loc Location, description, evidenceRef string, now time.Time) (PanicRecord, error) {
	if err := loc.Validate(); err != nil {
		return PanicRecord{}, err
	}
	item, err := t.AppendWorkItem(ActionPanic, evidenceRef, now)
	if err != nil {
		return PanicRecord{}, err
	}
	p := PanicRecord{
		ID:          uuid.New(),
		Location:    loc,
		Description: description,
		EvidenceRef: evidenceRef,
		WorkItemID:  item.ID,
		RaisedAt:    now,
	}
	t.Panics = append(t.Panics, p)
	return p, nil
}

// PanicStatus returns the lifecycle status of the panic's work item.
func (t *Tourist) PanicStatus(p PanicRecord) WorkItemStatus {
	if w, ok := t.WorkItem(p.WorkItemID); ok {
		return w.Status
	}
	return StatusPending
}

// PushScore appends a score item carrying an opaque scoring payload reference.
func (t *Tourist) PushScore(scoreRef string, now time.Time) (WorkItem, error) {
	if scoreRef == "" {
		return WorkItem{}, shared.NewDomainError("MISSING_PAYLOAD", "score payload reference is required")
	}
	return t.AppendWorkItem(ActionScore, scoreRef, now)
}

// KYCCompletion carries the verified identity details.
type KYCCompletion struct {
	Method      KYCMethod
	Nationality Nationality
	TouristCode string
	KYCRef      string
	FullName    string
	PhoneNumber string
	DateOfBirth *time.Time
}

// CompleteKYC marks the profile verified and appends a verify_kyc item.
func (t *Tourist) CompleteKYC(c KYCCompletion, now time.Time) (WorkItem, error) {
	if t.KYC.Status == KYCStatusVerified {
		return WorkItem{}, shared.NewDomainError("KYC_ALREADY_VERIFIED", "KYC already verified")
	}
	if c.KYCRef == "" {
		return WorkItem{}, shared.NewDomainError("MISSING_PAYLOAD", "kyc payload reference is required")
	}
	verifiedAt := now
	t.KYC = KYCRecord{Method: c.Method, Status: KYCStatusVerified, VerifiedAt: &verifiedAt}
	t.KYCRef = c.KYCRef
	t.Nationality = c.Nationality
	t.TouristCode = c.TouristCode
	t.IsActive = true
	if c.FullName != "" {
		t.FullName = c.FullName
	}
	if c.PhoneNumber != "" {
		t.PhoneNumber = c.PhoneNumber
	}
	if c.DateOfBirth != nil {
		t.DateOfBirth = c.DateOfBirth
	}
	return t.AppendWorkItem(ActionVerifyKYC, c.KYCRef, now)
}

// RetryWorkItem appends a fresh pending item cloned from a failed one. The
// failed item itself stays terminal.
func (t *Tourist) RetryWorkItem(id uuid.UUID, now time.Time) (WorkItem, error) {
	w, ok := t.WorkItem(id)
	if !ok {
		return WorkItem{}, shared.ErrNotFound
	}
	if w.Status != StatusFailed {
		return WorkItem{}, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("only failed items can be retried, item is %s", w.Status))
	}
	action, ref := w.Action, w.PayloadRef
	if action == ActionRegister {
		ref = t.KYCRef
	}
	return t.AppendWorkItem(action, ref, now)
}

// StatusCounts tallies items per status.
type StatusCounts struct {
	Pending   int `json:"pending"`
	Submitted int `json:"submitted"`
	Confirmed int `json:"confirmed"`
	Failed    int `json:"failed"`
}

// Total returns the number of items counted.
func (c StatusCounts) Total() int {
	return c.Pending + c.Submitted + c.Confirmed + c.Failed
}

// CountByStatus tallies the tourist's items.
func (t *Tourist) CountByStatus() StatusCounts {
	var c StatusCounts
	for i := range t.WorkItems {
		switch t.WorkItems[i].Status {
		case StatusPending:
			c.Pending++
		case StatusSubmitted:
			c.Submitted++
		case StatusConfirmed:
			c.Confirmed++
		case StatusFailed:
			c.Failed++
		}
	}
	return c
}
