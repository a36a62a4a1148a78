package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField  ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidParish ErrorCode = "validation_invalid_parish"
	ErrCodeValidationInvalidSize   ErrorCode = "validation_invalid_lawn_size"
	ErrCodeValidationInvalidDay    ErrorCode = "validation_invalid_recurring_day"
	ErrCodeValidationInvalidRating ErrorCode = "validation_invalid_rating"
	ErrCodeValidationInvalidDate   ErrorCode = "validation_invalid_date"
	ErrCodeValidationInvalidJSON   ErrorCode = "validation_invalid_json"

	// Auth (401)
	ErrCodeAuthMissing      ErrorCode = "auth_identity_missing"
	ErrCodeAuthCronToken    ErrorCode = "auth_cron_token_invalid"
	ErrCodeAuthNotPermitted ErrorCode = "auth_actor_not_permitted"

	// Permission / gating (403)
	ErrCodePermissionNotOwner        ErrorCode = "permission_not_job_party"
	ErrCodePermissionAdminOnly       ErrorCode = "permission_admin_only"
	ErrCodeProviderNotEligible       ErrorCode = "provider_not_eligible"
	ErrCodePendingReviewsOutstanding ErrorCode = "pending_reviews_outstanding"

	// Not Found (404)
	ErrCodeNotFoundJob      ErrorCode = "not_found_job"
	ErrCodeNotFoundSchedule ErrorCode = "not_found_autopay_schedule"
	ErrCodeNotFoundDispute  ErrorCode = "not_found_dispute"

	// Conflict (409)
	ErrCodeConflictStateChanged ErrorCode = "conflict_job_state_changed"
	ErrCodeConflictAlreadyPaid  ErrorCode = "conflict_already_paid"
	ErrCodeConflictDuplicate    ErrorCode = "conflict_duplicate_record"

	// Payment-specific
	ErrCodePaymentNotPaid     ErrorCode = "payment_not_paid"
	ErrCodePaymentUnresolved  ErrorCode = "payment_verification_pending"
	ErrCodePaymentWrongMethod ErrorCode = "payment_wrong_method"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamGateway    ErrorCode = "upstream_gateway_unavailable"
	ErrCodeUpstreamEmail      ErrorCode = "upstream_email_provider_unavailable"
	ErrCodeUpstreamQueue      ErrorCode = "upstream_queue_unavailable"

	// Rate limiting (429)
	ErrCodeUpstreamRateLimited ErrorCode = "rate_limited_upstream"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized
	case strings.HasPrefix(s, "permission_"),
		s == string(ErrCodeProviderNotEligible),
		s == string(ErrCodePendingReviewsOutstanding):
		return http.StatusForbidden
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict
	case s == string(ErrCodePaymentNotPaid):
		return http.StatusPaymentRequired
	case s == string(ErrCodePaymentUnresolved):
		return http.StatusAccepted
	case s == string(ErrCodePaymentWrongMethod):
		return http.StatusConflict
	case s == string(ErrCodeUpstreamRateLimited):
		return http.StatusTooManyRequests
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type used throughout the
// platform. All domain and handler errors should be expressed as
// AppError to enable consistent error formatting, HTTP status mapping,
// and error chain support. Wrapped driver errors are never surfaced to
// callers.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error. This is the standard constructor for
// domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
