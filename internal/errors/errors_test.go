package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("Error returns formatted string", func(t *testing.T) {
		err := New(ErrCodeNotFound, "Conversation not found")
		assert.Equal(t, "NOT_FOUND: Conversation not found", err.Error())
	})

	t.Run("Error with cause includes cause", func(t *testing.T) {
		cause := errors.New("database is locked")
		err := StorageUnavailable(cause)
		assert.Contains(t, err.Error(), "STORAGE_UNAVAILABLE")
		assert.Contains(t, err.Error(), "database is locked")
	})

	t.Run("WithCause adds cause to error", func(t *testing.T) {
		cause := errors.New("original error")
		err := New(ErrCodeInternal, "Something went wrong").WithCause(cause)
		assert.Equal(t, cause, err.Unwrap())
	})

	t.Run("WithDetails adds details to error", func(t *testing.T) {
		details := map[string]int64{"chatId": 42}
		err := New(ErrCodeDeliveryRejected, "blocked").WithDetails(details)
		assert.Equal(t, details, err.Details)
	})

	t.Run("WithRetryAfter is readable through wrapping", func(t *testing.T) {
		err := TransientTransport("copyMessage", nil).WithRetryAfter(3 * time.Second)
		wrapped := fmt.Errorf("deliver: %w", err)
		assert.Equal(t, 3*time.Second, RetryAfterOf(wrapped))
		assert.Zero(t, RetryAfterOf(errors.New("plain")))
	})
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name         string
		constructor  func() *AppError
		expectedCode ErrorCode
	}{
		{"ConfigError", func() *AppError { return ConfigError("TOKEN", "missing") }, ErrCodeConfig},
		{"StorageUnavailable", func() *AppError { return StorageUnavailable(errors.New("x")) }, ErrCodeStorageUnavailable},
		{"NotFound", func() *AppError { return NotFound("Conversation") }, ErrCodeNotFound},
		{"ProtocolError", func() *AppError { return ProtocolError("no chat") }, ErrCodeProtocol},
		{"Ignored", func() *AppError { return Ignored("general topic") }, ErrCodeIgnored},
		{"TransientTransport", func() *AppError { return TransientTransport("sendMessage", nil) }, ErrCodeTransientTransport},
		{"PermanentTransport", func() *AppError { return PermanentTransport("sendMessage", nil) }, ErrCodePermanentTransport},
		{"TopicNotFound", func() *AppError { return TopicNotFound(7, nil) }, ErrCodeTopicNotFound},
		{"DeliveryRejected", func() *AppError { return DeliveryRejected("blocked") }, ErrCodeDeliveryRejected},
		{"RateLimitExceeded", func() *AppError { return RateLimitExceeded() }, ErrCodeRateLimitExceeded},
		{"ShuttingDown", func() *AppError { return ShuttingDown() }, ErrCodeShuttingDown},
		{"Unauthorized", func() *AppError { return Unauthorized("bad secret") }, ErrCodeUnauthorized},
		{"InvalidInput", func() *AppError { return InvalidInput("body", "not json") }, ErrCodeInvalidInput},
		{"Internal", func() *AppError { return Internal("test") }, ErrCodeInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.constructor()
			assert.Equal(t, tc.expectedCode, err.Code)
			assert.NotEmpty(t, err.Message)
		})
	}
}

func TestAsAppError(t *testing.T) {
	t.Run("extracts wrapped AppError", func(t *testing.T) {
		original := NotFound("Conversation")
		extracted, ok := AsAppError(fmt.Errorf("find by topic: %w", original))
		assert.True(t, ok)
		assert.Equal(t, original, extracted)
	})

	t.Run("returns false for non-AppError", func(t *testing.T) {
		extracted, ok := AsAppError(errors.New("standard error"))
		assert.False(t, ok)
		assert.Nil(t, extracted)
	})
}

func TestGetCode(t *testing.T) {
	t.Run("returns code for AppError", func(t *testing.T) {
		assert.Equal(t, ErrCodeNotFound, GetCode(NotFound("x")))
	})

	t.Run("returns ErrCodeInternal for standard error", func(t *testing.T) {
		assert.Equal(t, ErrCodeInternal, GetCode(errors.New("standard error")))
	})
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", DeliveryRejected("blocked"))
	assert.True(t, Is(err, ErrCodeDeliveryRejected))
	assert.False(t, Is(err, ErrCodeNotFound))
	assert.False(t, Is(errors.New("x"), ErrCodeInternal))
}
