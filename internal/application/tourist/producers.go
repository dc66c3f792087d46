package tourist

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tsafe/backend/internal/domain/shared"
	"github.com/tsafe/backend/internal/domain/tourist"
	"github.com/tsafe/backend/internal/infrastructure/telemetry"
)

const dateLayout = "2006-01-02"

var phonePattern = regexp.MustCompile(`^\+?[\d\s\-()]{10,15}$`)

// Register creates the caller's profile with its initial register item.
// Each user owns at most one profile.
func (s *Service) Register(ctx context.Context, userID uuid.UUID, req RegisterRequest, idempotencyKey string) (*RegisterResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "tourist", "Register",
		telemetry.WithAttribute(telemetry.SpanAttrIdempotency, idempotencyKey != ""))
	defer span.End()

	if !phonePattern.MatchString(req.PhoneNumber) {
		return nil, shared.NewDomainError("INVALID_PHONE", "Invalid phone number format")
	}
	if !tourist.IsValidWallet(req.OwnerWallet) {
		return nil, shared.NewDomainError("INVALID_WALLET", "Invalid wallet address")
	}
	if len(req.EmergencyContacts) == 0 {
		return nil, shared.NewDomainError("MISSING_CONTACTS", "At least one emergency contact is required")
	}
	dob, err := parseOptionalDate("date_of_birth", req.DateOfBirth)
	if err != nil {
		return nil, err
	}

	now := s.now()
	validUntil := now.Add(s.config.DefaultValidity)
	if req.ValidUntil != 0 {
		if req.ValidUntil <= now.Unix() {
			return nil, shared.NewDomainError("INVALID_EXPIRY",
				fmt.Sprintf("validUntil must be in the future. Current: %d, Provided: %d", now.Unix(), req.ValidUntil))
		}
		validUntil = time.Unix(req.ValidUntil, 0)
	}
	validUntil = validUntil.Add(s.config.ValidityBuffer).Truncate(time.Second).UTC()

	claimed, err := s.claim(ctx, userID, "register", idempotencyKey)
	if err != nil {
		return nil, err
	}
	defer claimed.release(ctx)

	if _, err := s.repo.FindByUserID(ctx, userID); err == nil {
		return nil, ErrProfileExists
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	emergencyRef, err := s.vault.PutJSON(ctx, PurposeEmergency, req.EmergencyContacts)
	if err != nil {
		return nil, err
	}
	kycRef, err := s.vault.PutJSON(ctx, PurposeKYC, KYCDocument{
		Method: tourist.KYCMethodPending,
		Status: tourist.KYCStatusPending,
		Data:   KYCData{FullName: req.FullName, PhoneNumber: req.PhoneNumber, DateOfBirth: dob},
	})
	if err != nil {
		return nil, err
	}

	t, err := tourist.NewTourist(tourist.NewTouristParams{
		UserID:        userID,
		FullName:      req.FullName,
		PhoneNumber:   req.PhoneNumber,
		DateOfBirth:   dob,
		OwnerWallet:   req.OwnerWallet,
		KYCRef:        kycRef,
		EmergencyRef:  emergencyRef,
		ValidUntil:    validUntil,
		TrackingOptIn: req.TrackingOptIn,
	}, now)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, t); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			return nil, ErrProfileExists
		}
		return nil, err
	}
	claimed.keep()

	telemetry.SetAttributes(span, telemetry.SpanAttrTouristID, t.ID.String(), telemetry.SpanAttrChainID, t.ChainID)
	s.metrics.RecordRegistration(ctx)
	s.logger.Info("tourist registered",
		zap.String("tourist_id", t.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("chain_id", t.ChainID),
	)
	s.nudge(ctx)

	return &RegisterResponse{
		TouristID:     t.ID,
		ChainID:       t.ChainID,
		ValidUntil:    t.ValidUntil.Unix(),
		OnchainStatus: tourist.StatusPending.String(),
		KYCStatus:     string(t.KYC.Status),
		IsActive:      t.IsActive,
		Message:       "Tourist profile created. Complete KYC verification to activate your digital tourist ID.",
	}, nil
}

// UpdateProfile re-seals the emergency contacts and/or changes tracking
// consent, then appends an update item. Without new contacts the current
// emergency reference is resubmitted with the new consent.
func (s *Service) UpdateProfile(ctx context.Context, userID, touristID uuid.UUID, req UpdateProfileRequest, idempotencyKey string) (*WorkItemResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "tourist", "UpdateProfile",
		telemetry.WithAttribute(telemetry.SpanAttrTouristID, touristID.String()))
	defer span.End()

	if req.EmergencyContacts == nil && req.TrackingOptIn == nil {
		return nil, shared.NewDomainError("NOTHING_TO_UPDATE", "Provide emergency_contacts or tracking_opt_in")
	}
	if err := s.checkOwner(ctx, userID, touristID); err != nil {
		return nil, err
	}
	claimed, err := s.claim(ctx, userID, "update", idempotencyKey)
	if err != nil {
		return nil, err
	}
	defer claimed.release(ctx)

	var ref string
	if req.EmergencyContacts != nil {
		if ref, err = s.vault.PutJSON(ctx, PurposeEmergency, req.EmergencyContacts); err != nil {
			return nil, err
		}
	}

	var item tourist.WorkItem
	_, err = s.mutate(ctx, touristID, ownedBy(userID, func(t *tourist.Tourist) error {
		emergencyRef := ref
		if emergencyRef == "" {
			emergencyRef = t.EmergencyRef
		}
		var err error
		item, err = t.UpdateProfile(emergencyRef, req.TrackingOptIn, s.now())
		return err
	}))
	if err != nil {
		return nil, err
	}
	claimed.keep()

	s.logger.Info("tourist profile updated",
		zap.String("tourist_id", touristID.String()),
		zap.String("work_item_id", item.ID.String()),
	)
	s.nudge(ctx)
	resp := toWorkItemResponse(item)
	return &resp, nil
}

// RaisePanic seals the SOS evidence and records the panic with its item.
func (s *Service) RaisePanic(ctx context.Context, userID, touristID uuid.UUID, req RaisePanicRequest, idempotencyKey string) (*PanicResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "tourist", "RaisePanic",
		telemetry.WithAttribute(telemetry.SpanAttrTouristID, touristID.String()))
	defer span.End()

	if err := req.Location.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkOwner(ctx, userID, touristID); err != nil {
		return nil, err
	}
	claimed, err := s.claim(ctx, userID, "panic", idempotencyKey)
	if err != nil {
		return nil, err
	}
	defer claimed.release(ctx)

	now := s.now()
	evidenceRef, err := s.vault.PutJSON(ctx, PurposePanic, PanicEvidence{
		Location:     req.Location,
		Evidence:     req.Evidence,
		Description:  req.Description,
		Timestamp:    now,
		ReportedBy:   userID,
		DeviceInfo:   req.UserAgent,
		UrgencyLevel: "high",
	})
	if err != nil {
		return nil, err
	}

	var record tourist.PanicRecord
	t, err := s.mutate(ctx, touristID, ownedBy(userID, func(t *tourist.Tourist) error {
		var err error
		record, err = t.RaisePanic(req.Location, req.Description, evidenceRef, s.now())
		return err
	}))
	if err != nil {
		return nil, err
	}
	claimed.keep()
	item, _ := t.WorkItem(record.WorkItemID)

	s.metrics.RecordPanic(ctx)
	s.logger.Warn("SOS raised",
		zap.String("tourist_id", touristID.String()),
		zap.String("panic_id", record.ID.String()),
		zap.Float64("lat", req.Location.Lat),
		zap.Float64("lng", req.Location.Lng),
	)
	s.nudge(ctx)

	return &PanicResponse{
		PanicID:         record.ID,
		WorkItem:        toWorkItemResponse(*item),
		EmergencyNumber: s.config.EmergencyNumber,
		Message:         "SOS raised. Emergency services have been notified.",
	}, nil
}

// RecordIncidentPanic attaches a panic to the tourist for an emergency
// incident. The incident report's sealed payload doubles as the evidence.
func (s *Service) RecordIncidentPanic(ctx context.Context, touristID uuid.UUID, loc tourist.Location, description, evidenceRef string) (uuid.UUID, error) {
	var record tourist.PanicRecord
	if _, err := s.mutate(ctx, touristID, func(t *tourist.Tourist) error {
		var err error
		record, err = t.RaisePanic(loc, description, evidenceRef, s.now())
		return err
	}); err != nil {
		return uuid.Nil, err
	}
	s.metrics.RecordPanic(ctx)
	s.nudge(ctx)
	return record.ID, nil
}

// PushScore seals a safety score and appends a score item. Admin only.
func (s *Service) PushScore(ctx context.Context, actor Actor, touristID uuid.UUID, req PushScoreRequest, idempotencyKey string) (*ScorePushResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "tourist", "PushScore",
		telemetry.WithAttribute(telemetry.SpanAttrTouristID, touristID.String()))
	defer span.End()

	if !actor.IsAdmin {
		return nil, shared.ErrForbidden
	}
	if req.SafetyLevel == nil || *req.SafetyLevel < 0 || *req.SafetyLevel > 2 {
		return nil, shared.NewDomainError("INVALID_SAFETY_LEVEL", "safety_level must be 0, 1 or 2")
	}
	t, err := s.repo.FindByID(ctx, touristID)
	if err != nil {
		return nil, err
	}
	claimed, err := s.claim(ctx, actor.UserID, "score", idempotencyKey)
	if err != nil {
		return nil, err
	}
	defer claimed.release(ctx)

	model := req.ModelVersion
	if model == "" {
		model = "v1.0"
	}
	scoreRef, err := s.vault.PutJSON(ctx, PurposeScore, ScoreDocument{
		ChainID:      t.ChainID,
		SafetyLevel:  *req.SafetyLevel,
		Factors:      req.Factors,
		ModelVersion: model,
		Timestamp:    s.now(),
		CalculatedBy: "AI_SYSTEM",
	})
	if err != nil {
		return nil, err
	}

	var item tourist.WorkItem
	if _, err := s.mutate(ctx, touristID, func(t *tourist.Tourist) error {
		var err error
		item, err = t.PushScore(scoreRef, s.now())
		return err
	}); err != nil {
		return nil, err
	}
	claimed.keep()

	s.metrics.RecordScorePush(ctx)
	s.nudge(ctx)
	return &ScorePushResponse{
		WorkItem:    toWorkItemResponse(item),
		SafetyLevel: *req.SafetyLevel,
		ScoreRef:    scoreRef,
	}, nil
}

// RetryFailed appends a fresh item cloned from a failed one. The failed item
// is left untouched. Admin only.
func (s *Service) RetryFailed(ctx context.Context, actor Actor, touristID, itemID uuid.UUID) (*WorkItemResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "tourist", "RetryFailed",
		telemetry.WithAttribute(telemetry.SpanAttrTouristID, touristID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrWorkItemID, itemID.String()))
	defer span.End()

	if !actor.IsAdmin {
		return nil, shared.ErrForbidden
	}
	var item tourist.WorkItem
	if _, err := s.mutate(ctx, touristID, func(t *tourist.Tourist) error {
		var err error
		item, err = t.RetryWorkItem(itemID, s.now())
		return err
	}); err != nil {
		return nil, err
	}

	s.logger.Info("failed work item requeued",
		zap.String("tourist_id", touristID.String()),
		zap.String("failed_item_id", itemID.String()),
		zap.String("work_item_id", item.ID.String()),
		zap.String("action", item.Action.String()),
	)
	s.nudge(ctx)
	resp := toWorkItemResponse(item)
	return &resp, nil
}

func (s *Service) checkOwner(ctx context.Context, userID, touristID uuid.UUID) error {
	t, err := s.repo.FindByID(ctx, touristID)
	if err != nil {
		return err
	}
	if !t.IsOwnedBy(userID) {
		return shared.ErrForbidden
	}
	return nil
}

func parseOptionalDate(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	d, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, shared.NewDomainError("INVALID_DATE", fmt.Sprintf("%s must be formatted YYYY-MM-DD", field))
	}
	return &d, nil
}
