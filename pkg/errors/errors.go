// Package errors defines the gateway error taxonomy: every rejection the
// gateway produces carries a stable machine-readable code that maps to an
// HTTP status and the standard error envelope.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of gateway failure.
type Code string

// Authentication failures.
const (
	CodeInvalidCredential Code = "INVALID_CREDENTIAL"
	CodeExpiredCredential Code = "CREDENTIAL_EXPIRED"
	CodeRevokedCredential Code = "CREDENTIAL_REVOKED"
)

// Tenant authorization failures.
const (
	CodeMissingTenantID       Code = "MISSING_TENANT_ID"
	CodeTenantAccessDenied    Code = "TENANT_ACCESS_DENIED"
	CodeTenantNotFound        Code = "TENANT_NOT_FOUND"
	CodeTenantInactive        Code = "TENANT_INACTIVE"
	CodeFeatureUnavailable    Code = "TENANT_FEATURE_UNAVAILABLE"
	CodeInsufficientTier      Code = "INSUFFICIENT_SUBSCRIPTION_TIER"
)

// Admission control failures.
const (
	CodeRateLimitExceeded          Code = "RATE_LIMIT_EXCEEDED"
	CodeBurstRateLimitExceeded     Code = "BURST_RATE_LIMIT_EXCEEDED"
	CodeSustainedRateLimitExceeded Code = "SUSTAINED_RATE_LIMIT_EXCEEDED"
	CodeAdaptiveRateLimitExceeded  Code = "ADAPTIVE_RATE_LIMIT_EXCEEDED"
	CodeTenantQuotaExceeded        Code = "TENANT_QUOTA_EXCEEDED"
)

// Real-time connection failures.
const (
	CodeConnectionAuthFailed Code = "CONNECTION_AUTH_FAILED"
	CodeConnectionStale      Code = "CONNECTION_STALE"
)

// Infrastructure failures.
const (
	CodeCacheUnavailable    Code = "CACHE_UNAVAILABLE"
	CodeUpstreamUnavailable Code = "UPSTREAM_UNAVAILABLE"
	CodeInvalidInput        Code = "INVALID_INPUT"
	CodeInternal            Code = "INTERNAL"
)

// Error is a gateway error with a stable code and optional structured details.
type Error struct {
	Code    Code
	Message string
	Details map[string]interface{}
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches two gateway errors by code, so sentinel comparisons with
// errors.Is work across wrapped instances.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// New creates a gateway error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a gateway code to an underlying error.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// WithDetails returns a copy of the error carrying the given details.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: details, cause: e.cause}
}

// CodeOf extracts the gateway code from an error chain. Unclassified errors
// report CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// DetailsOf extracts structured details from an error chain, if any.
func DetailsOf(err error) map[string]interface{} {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}

// HTTPStatus maps a gateway code to its HTTP status. Caller-attributable
// failures are 4xx; 5xx is reserved for infrastructure failures.
func HTTPStatus(code Code) int {
	switch code {
	case CodeInvalidCredential, CodeExpiredCredential, CodeRevokedCredential, CodeConnectionAuthFailed:
		return http.StatusUnauthorized
	case CodeMissingTenantID, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeTenantAccessDenied, CodeTenantInactive, CodeFeatureUnavailable, CodeInsufficientTier:
		return http.StatusForbidden
	case CodeTenantNotFound:
		return http.StatusNotFound
	case CodeRateLimitExceeded, CodeBurstRateLimitExceeded, CodeSustainedRateLimitExceeded,
		CodeAdaptiveRateLimitExceeded, CodeTenantQuotaExceeded:
		return http.StatusTooManyRequests
	case CodeUpstreamUnavailable:
		return http.StatusBadGateway
	case CodeCacheUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Sentinel instances for errors.Is comparisons.
var (
	ErrInvalidCredential = New(CodeInvalidCredential, "invalid credential")
	ErrExpiredCredential = New(CodeExpiredCredential, "credential expired")
	ErrRevokedCredential = New(CodeRevokedCredential, "credential revoked")

	ErrMissingTenantID    = New(CodeMissingTenantID, "tenant id missing")
	ErrTenantAccessDenied = New(CodeTenantAccessDenied, "tenant access denied")
	ErrTenantNotFound     = New(CodeTenantNotFound, "tenant not found")
	ErrTenantInactive     = New(CodeTenantInactive, "tenant inactive")
	ErrFeatureUnavailable = New(CodeFeatureUnavailable, "feature not available for tenant")
	ErrInsufficientTier   = New(CodeInsufficientTier, "subscription tier too low")

	ErrRateLimitExceeded          = New(CodeRateLimitExceeded, "rate limit exceeded")
	ErrBurstRateLimitExceeded     = New(CodeBurstRateLimitExceeded, "burst rate limit exceeded")
	ErrSustainedRateLimitExceeded = New(CodeSustainedRateLimitExceeded, "sustained rate limit exceeded")
	ErrAdaptiveRateLimitExceeded  = New(CodeAdaptiveRateLimitExceeded, "adaptive rate limit exceeded")
	ErrTenantQuotaExceeded        = New(CodeTenantQuotaExceeded, "tenant quota exceeded")

	ErrConnectionAuthFailed = New(CodeConnectionAuthFailed, "connection authentication failed")
	ErrConnectionStale      = New(CodeConnectionStale, "connection stale")

	ErrCacheUnavailable    = New(CodeCacheUnavailable, "cache unavailable")
	ErrUpstreamUnavailable = New(CodeUpstreamUnavailable, "upstream unavailable")
)
