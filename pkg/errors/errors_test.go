package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		code   Code
		status int
	}{
		{
			name:   "invalid credential",
			err:    ErrInvalidCredential,
			code:   CodeInvalidCredential,
			status: http.StatusUnauthorized,
		},
		{
			name:   "expired credential",
			err:    ErrExpiredCredential,
			code:   CodeExpiredCredential,
			status: http.StatusUnauthorized,
		},
		{
			name:   "revoked credential",
			err:    ErrRevokedCredential,
			code:   CodeRevokedCredential,
			status: http.StatusUnauthorized,
		},
		{
			name:   "missing tenant id",
			err:    ErrMissingTenantID,
			code:   CodeMissingTenantID,
			status: http.StatusBadRequest,
		},
		{
			name:   "tenant access denied",
			err:    ErrTenantAccessDenied,
			code:   CodeTenantAccessDenied,
			status: http.StatusForbidden,
		},
		{
			name:   "tenant not found",
			err:    ErrTenantNotFound,
			code:   CodeTenantNotFound,
			status: http.StatusNotFound,
		},
		{
			name:   "tenant inactive",
			err:    ErrTenantInactive,
			code:   CodeTenantInactive,
			status: http.StatusForbidden,
		},
		{
			name:   "rate limit exceeded",
			err:    ErrRateLimitExceeded,
			code:   CodeRateLimitExceeded,
			status: http.StatusTooManyRequests,
		},
		{
			name:   "burst rate limit exceeded",
			err:    ErrBurstRateLimitExceeded,
			code:   CodeBurstRateLimitExceeded,
			status: http.StatusTooManyRequests,
		},
		{
			name:   "quota exceeded",
			err:    ErrTenantQuotaExceeded,
			code:   CodeTenantQuotaExceeded,
			status: http.StatusTooManyRequests,
		},
		{
			name:   "upstream unavailable",
			err:    ErrUpstreamUnavailable,
			code:   CodeUpstreamUnavailable,
			status: http.StatusBadGateway,
		},
		{
			name:   "cache unavailable",
			err:    ErrCacheUnavailable,
			code:   CodeCacheUnavailable,
			status: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, CodeOf(tt.err))
			assert.Equal(t, tt.status, HTTPStatus(tt.code))
		})
	}
}

func TestWrapPreservesCode(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(cause, CodeUpstreamUnavailable, "tenant service fetch failed")

	assert.Equal(t, CodeUpstreamUnavailable, CodeOf(err))
	assert.True(t, errors.Is(err, ErrUpstreamUnavailable))
	assert.ErrorIs(t, err, cause)
}

func TestIsMatchesByCode(t *testing.T) {
	a := New(CodeTenantAccessDenied, "header tenant does not match claim")
	assert.True(t, errors.Is(a, ErrTenantAccessDenied))
	assert.False(t, errors.Is(a, ErrTenantNotFound))
}

func TestWithDetails(t *testing.T) {
	err := ErrTenantQuotaExceeded.WithDetails(map[string]interface{}{
		"limit":     int64(100),
		"current":   int64(95),
		"requested": int64(10),
	})

	assert.True(t, errors.Is(err, ErrTenantQuotaExceeded))
	details := DetailsOf(err)
	assert.Equal(t, int64(100), details["limit"])
	assert.Nil(t, DetailsOf(fmt.Errorf("plain")))
}

func TestCodeOfUnclassified(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(fmt.Errorf("boom")))
}
