package dto

import "net/http"

// Codes raised by the HTTP layer itself or translated from the generic
// shared domain errors.
const (
	ErrCodeInternal    = "ERR_INTERNAL"
	ErrCodeUnavailable = "ERR_UNAVAILABLE"
	ErrCodeTimeout     = "ERR_TIMEOUT"

	ErrCodeBadRequest          = "ERR_BAD_REQUEST"
	ErrCodeValidation          = "ERR_VALIDATION"
	ErrCodeInvalidInput        = "ERR_INVALID_INPUT"
	ErrCodeUnauthorized        = "ERR_UNAUTHORIZED"
	ErrCodeForbidden           = "ERR_FORBIDDEN"
	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists       = "ERR_ALREADY_EXISTS"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	ErrCodeInvalidState        = "ERR_INVALID_STATE"

	ErrCodeRateLimited     = "RATE_LIMIT_EXCEEDED"
	ErrCodeKYCRateLimited  = "KYC_RATE_LIMIT_EXCEEDED"
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
)

// Use-case codes travel to the client unchanged so it can branch on them.
const (
	ErrCodeProfileExists      = "PROFILE_EXISTS"
	ErrCodeNoProfile          = "NO_PROFILE"
	ErrCodeDuplicateRequest   = "DUPLICATE_REQUEST"
	ErrCodeWorkerUnavailable  = "WORKER_UNAVAILABLE"
	ErrCodeNothingToUpdate    = "NOTHING_TO_UPDATE"
	ErrCodeInvalidPhone       = "INVALID_PHONE"
	ErrCodeInvalidWallet      = "INVALID_WALLET"
	ErrCodeMissingContacts    = "MISSING_CONTACTS"
	ErrCodeInvalidDate        = "INVALID_DATE"
	ErrCodeInvalidExpiry      = "INVALID_EXPIRY"
	ErrCodeInvalidLocation    = "INVALID_LOCATION"
	ErrCodeInvalidSafetyLevel = "INVALID_SAFETY_LEVEL"
	ErrCodeInvalidKYC         = "INVALID_KYC"
	ErrCodeKYCAlreadyVerified = "KYC_ALREADY_VERIFIED"
	ErrCodeOTPNotFound        = "OTP_NOT_FOUND"
	ErrCodeOTPExpired         = "OTP_EXPIRED"
	ErrCodeInvalidOTP         = "INVALID_OTP"
	ErrCodeTooManyAttempts    = "TOO_MANY_ATTEMPTS"
	ErrCodeAlreadyRegistered  = "ALREADY_REGISTERED"
	ErrCodeMissingPayload     = "MISSING_PAYLOAD"
	ErrCodeInvalidAction      = "INVALID_ACTION"
	ErrCodeInvalidUser        = "INVALID_USER"
	ErrCodeInvalidTourist     = "INVALID_TOURIST"
	ErrCodeInvalidType        = "INVALID_TYPE"
	ErrCodeInvalidSeverity    = "INVALID_SEVERITY"
	ErrCodeInvalidStatus      = "INVALID_STATUS"
)

var statusByCode = indexByCode(map[int][]string{
	http.StatusBadRequest: {
		ErrCodeBadRequest, ErrCodeValidation, ErrCodeInvalidInput,
		ErrCodeNothingToUpdate, ErrCodeInvalidPhone, ErrCodeInvalidWallet, ErrCodeMissingContacts,
		ErrCodeInvalidDate, ErrCodeInvalidExpiry, ErrCodeInvalidLocation, ErrCodeInvalidSafetyLevel,
		ErrCodeInvalidKYC, ErrCodeOTPNotFound, ErrCodeOTPExpired, ErrCodeInvalidOTP,
		ErrCodeMissingPayload, ErrCodeInvalidAction, ErrCodeInvalidUser,
		ErrCodeInvalidTourist, ErrCodeInvalidType, ErrCodeInvalidSeverity, ErrCodeInvalidStatus,
	},
	http.StatusUnauthorized: {ErrCodeUnauthorized},
	http.StatusForbidden:    {ErrCodeForbidden},
	http.StatusNotFound:     {ErrCodeNotFound, ErrCodeNoProfile},
	http.StatusConflict: {
		ErrCodeAlreadyExists, ErrCodeConcurrencyConflict, ErrCodeProfileExists,
		ErrCodeDuplicateRequest, ErrCodeKYCAlreadyVerified, ErrCodeAlreadyRegistered,
	},
	http.StatusRequestEntityTooLarge: {ErrCodeRequestTooLarge},
	http.StatusUnprocessableEntity:   {ErrCodeInvalidState},
	http.StatusTooManyRequests:       {ErrCodeRateLimited, ErrCodeKYCRateLimited, ErrCodeTooManyAttempts},
	http.StatusInternalServerError:   {ErrCodeInternal},
	http.StatusServiceUnavailable:    {ErrCodeUnavailable, ErrCodeWorkerUnavailable},
	http.StatusGatewayTimeout:        {ErrCodeTimeout},
})

func indexByCode(byStatus map[int][]string) map[string]int {
	index := make(map[string]int)
	for status, codes := range byStatus {
		for _, code := range codes {
			index[code] = status
		}
	}
	return index
}

// sharedCodes renames the generic domain error codes into the ERR_ space.
var sharedCodes = map[string]string{
	"NOT_FOUND":            ErrCodeNotFound,
	"ALREADY_EXISTS":       ErrCodeAlreadyExists,
	"INVALID_INPUT":        ErrCodeInvalidInput,
	"INVALID_STATE":        ErrCodeInvalidState,
	"UNAUTHORIZED":         ErrCodeUnauthorized,
	"FORBIDDEN":            ErrCodeForbidden,
	"CONCURRENCY_CONFLICT": ErrCodeConcurrencyConflict,
	"VALIDATION_ERROR":     ErrCodeValidation,
	"BAD_REQUEST":          ErrCodeBadRequest,
	"INTERNAL_ERROR":       ErrCodeInternal,
}

// CanonicalCode returns the client-facing form of code.
func CanonicalCode(code string) string {
	if c, ok := sharedCodes[code]; ok {
		return c
	}
	return code
}

// StatusFor returns the HTTP status for code, or 500 for unknown codes.
func StatusFor(code string) int {
	if status, ok := statusByCode[CanonicalCode(code)]; ok {
		return status
	}
	return http.StatusInternalServerError
}
