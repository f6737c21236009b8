// Package errors provides structured error handling for the user registry.
package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/overlaykit/userdir/pkg/types"
)

// ErrorCode represents specific error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation    ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrCodeMissingField  ErrorCode = "MISSING_FIELD"
	ErrCodeInvalidFormat ErrorCode = "INVALID_FORMAT"

	// Authentication/Authorization errors
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeTokenExpired ErrorCode = "TOKEN_EXPIRED"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"

	// Resource errors
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// Upstream catalog errors
	ErrCodeSourceUnavailable ErrorCode = "SOURCE_UNAVAILABLE"
	ErrCodeSourceMalformed   ErrorCode = "SOURCE_MALFORMED"

	// Overlay store errors
	ErrCodeStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
	ErrCodeIdentityCollision  ErrorCode = "IDENTITY_COLLISION"

	// System errors
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeTimeout  ErrorCode = "TIMEOUT"

	// Configuration errors
	ErrCodeConfigError    ErrorCode = "CONFIG_ERROR"
	ErrCodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG_INVALID"
)

// RegistryError represents a structured error in the user registry
type RegistryError struct {
	Type       types.ErrorType        `json:"type"`
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	StackTrace string                 `json:"stack_trace,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
}

// Error implements the error interface
func (e *RegistryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (caused by: %v)", e.Code, e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *RegistryError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *RegistryError) WithDetail(key string, value interface{}) *RegistryError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithRequestID adds a request ID to the error
func (e *RegistryError) WithRequestID(requestID string) *RegistryError {
	e.RequestID = requestID
	return e
}

// WithStackTrace adds a stack trace to the error
func (e *RegistryError) WithStackTrace() *RegistryError {
	e.StackTrace = getStackTrace()
	return e
}

// NewRegistryError creates a new registry error
func NewRegistryError(errType types.ErrorType, code ErrorCode, message string) *RegistryError {
	return &RegistryError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

// NewRegistryErrorWithCause creates a new registry error with a cause
func NewRegistryErrorWithCause(errType types.ErrorType, code ErrorCode, message string, cause error) *RegistryError {
	return &RegistryError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Validation error constructors
func NewValidationError(message string) *RegistryError {
	return NewRegistryError(types.ErrorTypeValidation, ErrCodeValidation, message)
}

func NewInvalidInputError(message string) *RegistryError {
	return NewRegistryError(types.ErrorTypeValidation, ErrCodeInvalidInput, message)
}

func NewMissingFieldError(field string) *RegistryError {
	return NewRegistryError(types.ErrorTypeValidation, ErrCodeMissingField,
		fmt.Sprintf("missing required field: %s", field)).WithDetail("field", field)
}

func NewInvalidFormatError(field, expectedFormat string) *RegistryError {
	return NewRegistryError(types.ErrorTypeValidation, ErrCodeInvalidFormat,
		fmt.Sprintf("invalid format for field %s, expected: %s", field, expectedFormat)).
		WithDetail("field", field).WithDetail("expected_format", expectedFormat)
}

// Authentication/Authorization error constructors
func NewUnauthorizedError(message string) *RegistryError {
	return NewRegistryError(types.ErrorTypeUnauthorized, ErrCodeUnauthorized, message)
}

func NewForbiddenError(message string) *RegistryError {
	return NewRegistryError(types.ErrorTypeUnauthorized, ErrCodeForbidden, message)
}

func NewTokenExpiredError() *RegistryError {
	return NewRegistryError(types.ErrorTypeUnauthorized, ErrCodeTokenExpired, "token has expired")
}

func NewInvalidTokenError() *RegistryError {
	return NewRegistryError(types.ErrorTypeUnauthorized, ErrCodeInvalidToken, "invalid token")
}

// NewUserNotFoundError reports an id absent from both sources.
func NewUserNotFoundError(id uint64) *RegistryError {
	return NewRegistryError(types.ErrorTypeNotFound, ErrCodeNotFound,
		fmt.Sprintf("user %d not found", id)).WithDetail("user_id", id)
}

func NewNotFoundError(resource string) *RegistryError {
	return NewRegistryError(types.ErrorTypeNotFound, ErrCodeNotFound,
		fmt.Sprintf("%s not found", resource)).WithDetail("resource", resource)
}

// Upstream catalog error constructors.
//
// SourceUnavailable covers transport failures, timeouts and 5xx answers.
// SourceMalformed covers payloads that cannot be decoded. Both belong to
// the external error type, which the registry surfaces as
// upstream-unavailable wherever the catalog's answer was required.
func NewSourceUnavailableError(message string, cause error) *RegistryError {
	return NewRegistryErrorWithCause(types.ErrorTypeExternal, ErrCodeSourceUnavailable, message, cause)
}

func NewSourceMalformedError(message string, cause error) *RegistryError {
	return NewRegistryErrorWithCause(types.ErrorTypeExternal, ErrCodeSourceMalformed, message, cause)
}

// Overlay store error constructors
func NewStorageUnavailableError(message string, cause error) *RegistryError {
	return NewRegistryErrorWithCause(types.ErrorTypeInternal, ErrCodeStorageUnavailable, message, cause)
}

// NewIdentityCollisionError reports an allocated id that turned out to be
// taken when re-verified against the overlay store.
func NewIdentityCollisionError(id uint64) *RegistryError {
	return NewRegistryError(types.ErrorTypeInternal, ErrCodeIdentityCollision,
		fmt.Sprintf("allocated id %d already in use", id)).WithDetail("user_id", id)
}

// System error constructors
func NewInternalError(message string) *RegistryError {
	return NewRegistryError(types.ErrorTypeInternal, ErrCodeInternal, message)
}

func NewInternalErrorWithCause(message string, cause error) *RegistryError {
	return NewRegistryErrorWithCause(types.ErrorTypeInternal, ErrCodeInternal, message, cause)
}

func NewTimeoutError(operation string) *RegistryError {
	return NewRegistryError(types.ErrorTypeInternal, ErrCodeTimeout,
		fmt.Sprintf("%s operation timed out", operation)).WithDetail("operation", operation)
}

// Configuration error constructors
func NewConfigError(message string) *RegistryError {
	return NewRegistryError(types.ErrorTypeValidation, ErrCodeConfigError, message)
}

func NewConfigNotFoundError(configPath string) *RegistryError {
	return NewRegistryError(types.ErrorTypeNotFound, ErrCodeConfigNotFound,
		fmt.Sprintf("configuration file not found: %s", configPath)).WithDetail("config_path", configPath)
}

func NewConfigInvalidError(message string) *RegistryError {
	return NewRegistryError(types.ErrorTypeValidation, ErrCodeConfigInvalid, message)
}

// Helper functions
func getStackTrace() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var trace strings.Builder
	for {
		frame, more := frames.Next()
		if !more {
			break
		}
		trace.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
	}

	return trace.String()
}

// IsRegistryError checks if an error is a RegistryError anywhere in its chain
func IsRegistryError(err error) bool {
	var regErr *RegistryError
	return stderrors.As(err, &regErr)
}

// GetRegistryError extracts a RegistryError from an error chain
func GetRegistryError(err error) *RegistryError {
	var regErr *RegistryError
	if stderrors.As(err, &regErr) {
		return regErr
	}
	return nil
}

// WrapError wraps an error as a RegistryError
func WrapError(err error, errType types.ErrorType, code ErrorCode, message string) *RegistryError {
	return NewRegistryErrorWithCause(errType, code, message, err)
}

// hasCode reports whether the error chain carries a RegistryError with the
// given code.
func hasCode(err error, code ErrorCode) bool {
	regErr := GetRegistryError(err)
	return regErr != nil && regErr.Code == code
}

// IsNotFound reports whether the error means the record exists in neither
// source.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsUpstreamUnavailable reports whether the error means the upstream catalog
// could not supply an answer that the operation required. Malformed catalog
// payloads count: an undecodable answer is no answer.
func IsUpstreamUnavailable(err error) bool {
	regErr := GetRegistryError(err)
	return regErr != nil && regErr.Type == types.ErrorTypeExternal
}

// IsSourceMalformed reports whether the upstream answer could not be decoded
func IsSourceMalformed(err error) bool {
	return hasCode(err, ErrCodeSourceMalformed)
}

// IsStorageUnavailable reports whether the overlay store failed
func IsStorageUnavailable(err error) bool {
	return hasCode(err, ErrCodeStorageUnavailable)
}

// IsIdentityCollision reports whether an allocated id was already taken
func IsIdentityCollision(err error) bool {
	return hasCode(err, ErrCodeIdentityCollision)
}

// IsValidation reports whether the error is a validation failure
func IsValidation(err error) bool {
	regErr := GetRegistryError(err)
	return regErr != nil && regErr.Type == types.ErrorTypeValidation
}

// IsUnauthorized reports whether the error is an authentication or
// authorization failure.
func IsUnauthorized(err error) bool {
	regErr := GetRegistryError(err)
	return regErr != nil && regErr.Type == types.ErrorTypeUnauthorized
}
