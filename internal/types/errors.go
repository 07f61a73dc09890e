package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors. Ledger
// classifications reuse these codes verbatim so delivery-log rows and API
// errors share one vocabulary.
type ErrorCode string

const (
	// Per-notification terminal classifications (recorded in the ledger).
	ErrCodeMissingToken ErrorCode = "missing_fcm_token"
	ErrCodeSkippedPrefs ErrorCode = "skipped_preferences"
	ErrCodeGatewayError ErrorCode = "fcm_error"
	ErrCodeDryRun       ErrorCode = "dry_run"

	// Run-level failures (surfaced to the scheduler).
	ErrCodeCredentialExchange ErrorCode = "credential_exchange_failed"
	ErrCodeProfileFetch       ErrorCode = "profile_fetch_failed"

	// Gateway response classifications (per endpoint, aggregated into
	// fcm_error at the ledger level).
	ErrCodeGatewayMalformed   ErrorCode = "fcm_malformed_response"
	ErrCodeGatewayUnreachable ErrorCode = "fcm_unreachable"

	// Infrastructure.
	ErrCodeValidation          ErrorCode = "validation_invalid_input"
	ErrCodeInternalDB          ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
)

// HTTPStatus maps an ErrorCode to the status the trigger endpoint returns.
// Unrecognized codes default to 500.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case c == ErrCodeUpstreamRateLimited:
		return http.StatusTooManyRequests
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type. Domain and repository
// errors are expressed as AppError so callers can branch on Code and the
// trigger endpoint can map failures to HTTP statuses.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
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
// optional underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
