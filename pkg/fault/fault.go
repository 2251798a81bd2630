// Package fault defines the closed error taxonomy of the ChatForge core.
//
// Every error that crosses a component boundary carries one of the codes
// below. Handlers map codes to HTTP statuses; components use errors.As /
// fault.CodeOf to branch on them. Structural errors (NotFound, Unauthorized,
// ValidationError) are terminal for a call and surfaced verbatim — never
// retried. Provider errors are never surfaced from a chat turn; the
// orchestrator converts them into a fallback reply.
package fault

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeNotFound             Code = "not_found"
	CodeUnauthorized         Code = "unauthorized"
	CodeValidation           Code = "validation_error"
	CodeConfiguration        Code = "configuration_error"
	CodeInternal             Code = "internal_error"
	CodeRateLimitExceeded    Code = "rate_limit_exceeded"
	CodeQuotaExceeded        Code = "quota_exceeded"
	CodeSubscriptionLimit    Code = "subscription_limit_exceeded"
	CodeUserNotFound         Code = "user_not_found"
	CodeSessionExpired       Code = "session_expired"
	CodeInvalidSession       Code = "invalid_session"
	CodeProviderUnavailable  Code = "provider_unavailable"
	CodeProviderRateLimited  Code = "provider_rate_limited"
	CodeProviderInvalidInput Code = "provider_invalid_input"
)

// Error is a coded error with an optional human-readable detail.
type Error struct {
	Code   Code
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Detail
}

// New creates a coded error with a formatted detail.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing entity, e.g. NotFound("agent", id).
func NotFound(entity, key string) *Error {
	return &Error{Code: CodeNotFound, Detail: entity + " not found: " + key}
}

// Unauthorized reports an ownership or permission failure.
func Unauthorized(detail string) *Error {
	return &Error{Code: CodeUnauthorized, Detail: detail}
}

// Validation reports a blocking configuration-rubric failure.
func Validation(detail string) *Error {
	return &Error{Code: CodeValidation, Detail: detail}
}

// Internal wraps an unexpected failure.
func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Detail: err.Error()}
}

// CodeOf extracts the fault code from err, unwrapping as needed.
// Errors outside the taxonomy map to CodeInternal.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
