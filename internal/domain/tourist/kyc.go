package tourist

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrChallengeNotFound is returned when no OTP challenge is outstanding for a user.
var ErrChallengeNotFound = errors.New("kyc challenge not found")

var (
	aadhaarPattern     = regexp.MustCompile(`^\d{12}$`)
	indianPhonePattern = regexp.MustCompile(`^[6-9]\d{9}$`)
	passportPattern    = regexp.MustCompile(`^[A-Z0-9]{6,12}$`)
)

// KYCDetails is the identity document submitted for verification. Only the
// fields matching Method are populated.
type KYCDetails struct {
	Method             KYCMethod  `json:"method"`
	FullName           string     `json:"full_name"`
	PhoneNumber        string     `json:"phone_number"`
	DateOfBirth        time.Time  `json:"date_of_birth"`
	Address            string     `json:"address,omitempty"`
	AadhaarNumber      string     `json:"aadhaar_number,omitempty"`
	PassportNumber     string     `json:"passport_number,omitempty"`
	PassportCountry    string     `json:"passport_country,omitempty"`
	PassportExpiryDate *time.Time `json:"passport_expiry_date,omitempty"`
}

// Nationality returns the nationality implied by the verification method.
func (d KYCDetails) Nationality() Nationality {
	if d.Method == KYCMethodDigilocker {
		return NationalityIndian
	}
	return NationalityInternational
}

// Validate checks the method-specific fields. Digits are compared after
// stripping separators.
func (d KYCDetails) Validate(now time.Time) error {
	if strings.TrimSpace(d.FullName) == "" {
		return fmt.Errorf("full name is required")
	}
	if d.DateOfBirth.IsZero() || !d.DateOfBirth.Before(now) {
		return fmt.Errorf("date of birth must be in the past")
	}
	switch d.Method {
	case KYCMethodDigilocker:
		if !aadhaarPattern.MatchString(DigitsOnly(d.AadhaarNumber)) {
			return fmt.Errorf("invalid Aadhaar number format, must be 12 digits")
		}
		if !indianPhonePattern.MatchString(DigitsOnly(d.PhoneNumber)) {
			return fmt.Errorf("invalid phone number format, must be 10 digits starting with 6-9")
		}
		if strings.TrimSpace(d.Address) == "" {
			return fmt.Errorf("address is required")
		}
	case KYCMethodPassport:
		if !passportPattern.MatchString(strings.ToUpper(strings.TrimSpace(d.PassportNumber))) {
			return fmt.Errorf("invalid passport number")
		}
		if strings.TrimSpace(d.PassportCountry) == "" {
			return fmt.Errorf("passport country is required")
		}
		if d.PassportExpiryDate == nil || !d.PassportExpiryDate.After(now) {
			return fmt.Errorf("passport must not be expired")
		}
		if strings.TrimSpace(d.PhoneNumber) == "" {
			return fmt.Errorf("phone number is required")
		}
	default:
		return fmt.Errorf("unsupported kyc method %q", d.Method)
	}
	return nil
}

// MaskedAadhaar hides all but the last four digits.
func (d KYCDetails) MaskedAadhaar() string {
	digits := DigitsOnly(d.AadhaarNumber)
	if len(digits) <= 4 {
		return digits
	}
	return strings.Repeat("X", len(digits)-4) + digits[len(digits)-4:]
}

// DigitsOnly strips every non-digit rune.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// KYCChallenge is an outstanding OTP challenge. It expires on its own; a
// verified challenge is deleted.
type KYCChallenge struct {
	OTP       string     `json:"otp"`
	Details   KYCDetails `json:"details"`
	ExpiresAt time.Time  `json:"expires_at"`
	Attempts  int        `json:"attempts"`
}

// IsExpired reports whether the challenge can no longer be answered.
func (c KYCChallenge) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// ChallengeStore keeps KYC OTP challenges keyed by user id.
type ChallengeStore interface {
	// Put stores or replaces the user's challenge until ExpiresAt.
	Put(ctx context.Context, userID string, c KYCChallenge) error

	// Get returns the outstanding challenge or ErrChallengeNotFound.
	Get(ctx context.Context, userID string) (KYCChallenge, error)

	// Delete removes the user's challenge. Deleting a missing challenge is not an error.
	Delete(ctx context.Context, userID string) error
}

// TouristCodePrefix returns the issuing prefix for a nationality and year,
// e.g. "TID-IND-2026-".
func TouristCodePrefix(n Nationality, year int) string {
	if n == NationalityIndian {
		return fmt.Sprintf("TID-IND-%d-", year)
	}
	return fmt.Sprintf("TID-INTL-%d-", year)
}

// FormatTouristCode renders a human-readable tourist code.
func FormatTouristCode(n Nationality, year, seq int) string {
	return fmt.Sprintf("%s%06d", TouristCodePrefix(n, year), seq)
}
