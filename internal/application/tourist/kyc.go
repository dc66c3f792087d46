package tourist

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/tsafe/backend/internal/domain/shared"
	"github.com/tsafe/backend/internal/domain/tourist"
	"github.com/tsafe/backend/internal/infrastructure/telemetry"
)

// codeAttempts bounds tourist code allocation when two verifications race
// for the same sequence number.
const codeAttempts = 5

// KYC errors
var (
	ErrKYCAlreadyVerified = shared.NewDomainError("KYC_ALREADY_VERIFIED", "KYC already verified")
	ErrOTPNotFound        = shared.NewDomainError("OTP_NOT_FOUND", "No OTP request found, initiate KYC first")
	ErrOTPExpired         = shared.NewDomainError("OTP_EXPIRED", "OTP has expired, request a new one")
	ErrInvalidOTP         = shared.NewDomainError("INVALID_OTP", "Invalid OTP")
	ErrTooManyAttempts    = shared.NewDomainError("TOO_MANY_ATTEMPTS", "Too many invalid OTP attempts, request a new one")
)

// InitiateKYC validates the submitted identity and issues an OTP challenge.
// A new call replaces any outstanding challenge.
func (s *Service) InitiateKYC(ctx context.Context, userID uuid.UUID, req InitiateKYCRequest) (*InitiateKYCResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "tourist", "InitiateKYC",
		telemetry.WithAttribute("kyc.method", string(req.Method)))
	defer span.End()

	t, err := s.findByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if t.KYC.Status == tourist.KYCStatusVerified {
		return nil, ErrKYCAlreadyVerified
	}

	dob, err := parseOptionalDate("date_of_birth", req.DateOfBirth)
	if err != nil {
		return nil, err
	}
	if dob == nil {
		return nil, shared.NewDomainError("INVALID_KYC", "date of birth is required")
	}
	passportExpiry, err := parseOptionalDate("passport_expiry_date", req.PassportExpiryDate)
	if err != nil {
		return nil, err
	}

	details := tourist.KYCDetails{
		Method:             req.Method,
		FullName:           req.FullName,
		PhoneNumber:        req.PhoneNumber,
		DateOfBirth:        *dob,
		Address:            req.Address,
		AadhaarNumber:      tourist.DigitsOnly(req.AadhaarNumber),
		PassportNumber:     strings.ToUpper(strings.TrimSpace(req.PassportNumber)),
		PassportCountry:    strings.TrimSpace(req.PassportCountry),
		PassportExpiryDate: passportExpiry,
	}
	now := s.now()
	if err := details.Validate(now); err != nil {
		s.metrics.RecordKYC(ctx, req.Method, "rejected")
		return nil, shared.NewDomainError("INVALID_KYC", err.Error())
	}

	otp, err := s.generateOTP()
	if err != nil {
		return nil, err
	}
	challenge := tourist.KYCChallenge{
		OTP:       otp,
		Details:   details,
		ExpiresAt: now.Add(s.config.OTPTTL),
	}
	if err := s.challenges.Put(ctx, userID.String(), challenge); err != nil {
		return nil, fmt.Errorf("store kyc challenge: %w", err)
	}

	if s.config.DemoMode {
		s.logger.Info("demo mode OTP issued",
			zap.String("user_id", userID.String()),
			zap.String("method", string(req.Method)),
			zap.String("otp", otp),
		)
	} else {
		s.logger.Info("OTP issued",
			zap.String("user_id", userID.String()),
			zap.String("method", string(req.Method)),
		)
	}

	return &InitiateKYCResponse{
		Method:      string(req.Method),
		PhoneNumber: details.PhoneNumber,
		ExpiresIn:   int(s.config.OTPTTL.Seconds()),
		Message:     "OTP sent to your registered phone number",
	}, nil
}

// VerifyKYC answers the outstanding challenge. On success the profile gets
// its tourist code, becomes active and a verify_kyc item is appended.
func (s *Service) VerifyKYC(ctx context.Context, userID uuid.UUID, req VerifyKYCRequest, idempotencyKey string) (*VerifyKYCResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "tourist", "VerifyKYC")
	defer span.End()

	t, err := s.findByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if t.KYC.Status == tourist.KYCStatusVerified {
		return nil, ErrKYCAlreadyVerified
	}

	key := userID.String()
	challenge, err := s.challenges.Get(ctx, key)
	if errors.Is(err, tourist.ErrChallengeNotFound) {
		return nil, ErrOTPNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load kyc challenge: %w", err)
	}
	method := challenge.Details.Method

	now := s.now()
	if challenge.IsExpired(now) {
		s.dropChallenge(ctx, key)
		s.metrics.RecordKYC(ctx, method, "expired")
		return nil, ErrOTPExpired
	}
	if challenge.Attempts >= s.config.MaxOTPAttempts {
		s.dropChallenge(ctx, key)
		return nil, ErrTooManyAttempts
	}
	if subtle.ConstantTimeCompare([]byte(challenge.OTP), []byte(req.OTP)) != 1 {
		challenge.Attempts++
		if challenge.Attempts >= s.config.MaxOTPAttempts {
			s.dropChallenge(ctx, key)
		} else if err := s.challenges.Put(ctx, key, challenge); err != nil {
			s.logger.Warn("failed to record OTP attempt", zap.Error(err))
		}
		s.metrics.RecordKYC(ctx, method, "invalid_otp")
		return nil, ErrInvalidOTP
	}

	claimed, err := s.claim(ctx, userID, "verify_kyc", idempotencyKey)
	if err != nil {
		return nil, err
	}
	defer claimed.release(ctx)

	details := challenge.Details
	details.FullName = normalizeName(details.FullName)
	dob := details.DateOfBirth
	kycRef, err := s.vault.PutJSON(ctx, PurposeKYC, KYCDocument{
		Method:     method,
		Status:     tourist.KYCStatusVerified,
		VerifiedAt: &now,
		Data: KYCData{
			FullName:           details.FullName,
			PhoneNumber:        details.PhoneNumber,
			DateOfBirth:        &dob,
			Address:            details.Address,
			AadhaarNumber:      details.AadhaarNumber,
			PassportNumber:     details.PassportNumber,
			PassportCountry:    details.PassportCountry,
			PassportExpiryDate: details.PassportExpiryDate,
		},
	})
	if err != nil {
		return nil, err
	}

	t, item, err := s.completeKYC(ctx, t.ID, tourist.KYCCompletion{
		Method:      method,
		Nationality: details.Nationality(),
		KYCRef:      kycRef,
		FullName:    details.FullName,
		PhoneNumber: details.PhoneNumber,
		DateOfBirth: &dob,
	})
	if err != nil {
		return nil, err
	}
	claimed.keep()
	s.dropChallenge(ctx, key)

	telemetry.SetAttributes(span, telemetry.SpanAttrTouristID, t.ID.String())
	s.metrics.RecordKYC(ctx, method, "verified")
	s.logger.Info("KYC verified",
		zap.String("tourist_id", t.ID.String()),
		zap.String("tourist_code", t.TouristCode),
		zap.String("method", string(method)),
	)
	s.nudge(ctx)

	return &VerifyKYCResponse{
		TouristCode: t.TouristCode,
		QRCode:      qrPayload(t, now.Unix()),
		Method:      string(method),
		Name:        details.FullName,
		MaskedID:    maskedID(details),
		PhoneNumber: details.PhoneNumber,
		Tourist:     toTouristResponse(t),
		WorkItem:    toWorkItemResponse(item),
	}, nil
}

// completeKYC allocates the next tourist code for the nationality and year
// and saves the verified profile. A code taken concurrently moves on to the
// following sequence number.
func (s *Service) completeKYC(ctx context.Context, id uuid.UUID, c tourist.KYCCompletion) (*tourist.Tourist, tourist.WorkItem, error) {
	prefix := tourist.TouristCodePrefix(c.Nationality, s.now().Year())
	for attempt := 0; attempt < codeAttempts; attempt++ {
		issued, err := s.repo.CountByCodePrefix(ctx, prefix)
		if err != nil {
			return nil, tourist.WorkItem{}, err
		}
		c.TouristCode = tourist.FormatTouristCode(c.Nationality, s.now().Year(), int(issued)+1+attempt)

		var item tourist.WorkItem
		t, err := s.mutate(ctx, id, func(t *tourist.Tourist) error {
			var err error
			item, err = t.CompleteKYC(c, s.now())
			return err
		})
		if err == nil {
			return t, item, nil
		}
		if !errors.Is(err, shared.ErrAlreadyExists) {
			return nil, tourist.WorkItem{}, err
		}
		s.logger.Debug("tourist code taken, trying next", zap.String("tourist_code", c.TouristCode))
	}
	return nil, tourist.WorkItem{}, fmt.Errorf("allocate tourist code with prefix %s: %w", prefix, shared.ErrConcurrencyConflict)
}

// KYCStatus reports the caller's verification and ledger progress.
func (s *Service) KYCStatus(ctx context.Context, userID uuid.UUID) (*KYCStatusResponse, error) {
	t, err := s.findByUser(ctx, userID)
	if errors.Is(err, ErrNoProfile) {
		return &KYCStatusResponse{
			KYCStatus:        "not_started",
			KYCMethod:        string(tourist.KYCMethodPending),
			BlockchainStatus: string(tourist.ChainStatusNotStarted),
		}, nil
	}
	if err != nil {
		return nil, err
	}

	summary := tourist.SummarizeChain(t.WorkItems)
	resp := &KYCStatusResponse{
		HasProfile:          true,
		KYCStatus:           string(t.KYC.Status),
		KYCMethod:           string(t.KYC.Method),
		TouristID:           &t.ID,
		TouristCode:         t.TouristCode,
		ChainID:             t.ChainID,
		BlockchainStatus:    string(summary.Status),
		IsRegisteredOnChain: summary.Registered,
		IsActive:            t.IsActive,
	}
	if t.Nationality != tourist.NationalityPending {
		resp.Nationality = string(t.Nationality)
	}
	if summary.Latest != nil {
		latest := toWorkItemResponse(*summary.Latest)
		resp.LatestTransaction = &latest
	}
	if c, err := s.challenges.Get(ctx, userID.String()); err == nil && !c.IsExpired(s.now()) {
		resp.ChallengePending = true
	}
	return resp, nil
}

// CancelKYC discards the caller's outstanding challenge.
func (s *Service) CancelKYC(ctx context.Context, userID uuid.UUID) error {
	return s.challenges.Delete(ctx, userID.String())
}

func (s *Service) dropChallenge(ctx context.Context, key string) {
	if err := s.challenges.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to delete kyc challenge", zap.Error(err))
	}
}

// generateOTP returns six uniformly distributed digits.
func (s *Service) generateOTP() (string, error) {
	n, err := rand.Int(s.random, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// normalizeName collapses whitespace and title-cases each word.
func normalizeName(name string) string {
	fields := strings.Fields(norm.NFC.String(name))
	return cases.Title(language.Und).String(strings.Join(fields, " "))
}

func maskedID(d tourist.KYCDetails) string {
	if d.Method == tourist.KYCMethodDigilocker {
		return d.MaskedAadhaar()
	}
	if len(d.PassportNumber) <= 4 {
		return d.PassportNumber
	}
	return strings.Repeat("X", len(d.PassportNumber)-4) + d.PassportNumber[len(d.PassportNumber)-4:]
}

type qrDocument struct {
	TouristCode string `json:"tourist_code"`
	TouristID   string `json:"tourist_id"`
	Timestamp   int64  `json:"timestamp"`
	Version     string `json:"version"`
}

// qrPayload is the base64 JSON rendered into the tourist's QR code.
func qrPayload(t *tourist.Tourist, issuedAt int64) string {
	raw, _ := json.Marshal(qrDocument{
		TouristCode: t.TouristCode,
		TouristID:   t.ChainID,
		Timestamp:   issuedAt,
		Version:     "1.0",
	})
	return base64.StdEncoding.EncodeToString(raw)
}
