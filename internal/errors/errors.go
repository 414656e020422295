package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Startup
	ErrCodeConfig ErrorCode = "CONFIG_ERROR"

	// Storage
	ErrCodeStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"

	// Inbound
	ErrCodeProtocol ErrorCode = "PROTOCOL_ERROR"
	ErrCodeIgnored  ErrorCode = "IGNORED"

	// Delivery
	ErrCodeTransientTransport ErrorCode = "TRANSIENT_TRANSPORT_ERROR"
	ErrCodePermanentTransport ErrorCode = "PERMANENT_TRANSPORT_ERROR"
	ErrCodeTopicNotFound      ErrorCode = "TOPIC_NOT_FOUND"
	ErrCodeDeliveryRejected   ErrorCode = "DELIVERY_REJECTED"
	ErrCodeRateLimitExceeded  ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Lifecycle
	ErrCodeShuttingDown ErrorCode = "SHUTTING_DOWN"

	// Webhook
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// AppError is a structured error shared by every layer of the relay
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`

	// RetryAfter is the wait the upstream asked for, zero when unknown.
	RetryAfter time.Duration `json:"-"`
	cause      error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithRetryAfter(d time.Duration) *AppError {
	e.RetryAfter = d
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func ConfigError(field, reason string) *AppError {
	return New(ErrCodeConfig, fmt.Sprintf("%s %s", field, reason))
}

func StorageUnavailable(cause error) *AppError {
	return Wrap(ErrCodeStorageUnavailable, "Storage unavailable", cause)
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func ProtocolError(reason string) *AppError {
	return New(ErrCodeProtocol, fmt.Sprintf("Malformed update: %s", reason))
}

func Ignored(reason string) *AppError {
	return New(ErrCodeIgnored, reason)
}

func TransientTransport(operation string, cause error) *AppError {
	return Wrap(ErrCodeTransientTransport, fmt.Sprintf("Transient transport failure: %s", operation), cause)
}

func PermanentTransport(operation string, cause error) *AppError {
	return Wrap(ErrCodePermanentTransport, fmt.Sprintf("Transport rejected request: %s", operation), cause)
}

func TopicNotFound(topicID int64, cause error) *AppError {
	return Wrap(ErrCodeTopicNotFound, fmt.Sprintf("Topic %d not found", topicID), cause)
}

func DeliveryRejected(reason string) *AppError {
	return New(ErrCodeDeliveryRejected, fmt.Sprintf("Delivery rejected: %s", reason))
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func ShuttingDown() *AppError {
	return New(ErrCodeShuttingDown, "Shutting down")
}

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// Is reports whether err carries the given code anywhere in its chain
func Is(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// RetryAfterOf returns the upstream-requested wait, or zero.
func RetryAfterOf(err error) time.Duration {
	if appErr, ok := AsAppError(err); ok {
		return appErr.RetryAfter
	}
	return 0
}
