package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. All packages use these constants instead of
// hardcoded strings so failures can be classified uniformly in logs and
// metrics.
const (
	// Validation
	ErrCodeValidationMissingField   ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidWebhook ErrorCode = "validation_invalid_webhook_url"
	ErrCodeValidationInvalidEvent   ErrorCode = "validation_invalid_event"

	// Rule configuration
	ErrCodeRuleUnknownTrigger ErrorCode = "rule_unknown_trigger"
	ErrCodeRuleStoreRead      ErrorCode = "rule_store_read_failed"

	// Delivery (surfaced by the delivery collaborator)
	ErrCodeDeliveryNetwork     ErrorCode = "delivery_network"
	ErrCodeDeliveryAuth        ErrorCode = "delivery_auth"
	ErrCodeDeliveryRateLimited ErrorCode = "delivery_rate_limited"
	ErrCodeDeliveryRejected    ErrorCode = "delivery_rejected"

	// Registry lifecycle
	ErrCodeRegistryFrozen ErrorCode = "registry_frozen"

	// Internal/Upstream
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamSlack      ErrorCode = "upstream_slack_unavailable"
)

// AppError is the standard application error type. Domain errors are
// expressed as AppError to enable consistent classification and error chain
// support via errors.Is/errors.As.
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

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the ingest API to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"), s == string(ErrCodeRuleUnknownTrigger):
		return http.StatusBadRequest // 400
	case s == string(ErrCodeDeliveryAuth):
		return http.StatusUnauthorized // 401
	case s == string(ErrCodeDeliveryRateLimited):
		return http.StatusTooManyRequests // 429
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	default:
		return http.StatusInternalServerError // 500
	}
}

// HTTPStatus maps the error to an HTTP status code via its ErrorCode.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// IsDelivery reports whether the error belongs to the delivery taxonomy.
// The dispatch core logs delivery failures but never interprets them further;
// retries belong to the delivery collaborator.
func (e *AppError) IsDelivery() bool {
	switch e.Code {
	case ErrCodeDeliveryNetwork, ErrCodeDeliveryAuth,
		ErrCodeDeliveryRateLimited, ErrCodeDeliveryRejected:
		return true
	}
	return false
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

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
