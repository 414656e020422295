package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/mymmrac/telego/telegoapi"

	apperrors "github.com/Jlypx/BetterForward-enhance/internal/errors"
)

// Descriptions the bot API uses when a forum topic no longer exists.
var topicGoneMarkers = []string{
	"message thread not found",
	"TOPIC_DELETED",
	"TOPIC_ID_INVALID",
}

// classify maps a bot API failure onto the relay error taxonomy. threadID is
// the topic the call targeted, zero when none.
func classify(op string, threadID int64, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.TransientTransport(op, err)
	}

	var apiErr *telegoapi.Error
	if errors.As(err, &apiErr) {
		return classifyAPIError(op, threadID, apiErr.ErrorCode, apiErr.Description, retryAfter(apiErr), err)
	}

	// Errors that reach us unparsed still carry the description text.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "Too Many Requests"):
		return apperrors.TransientTransport(op, err)
	case threadID != 0 && topicGone(msg):
		return apperrors.TopicNotFound(threadID, err)
	case strings.Contains(msg, "Bad Request"), strings.Contains(msg, "Forbidden"):
		return apperrors.PermanentTransport(op, err)
	}
	return apperrors.TransientTransport(op, err)
}

func classifyAPIError(op string, threadID int64, code int, description string, wait time.Duration, err error) error {
	switch {
	case code == http.StatusTooManyRequests:
		return apperrors.TransientTransport(op, err).WithRetryAfter(wait)
	case code >= http.StatusInternalServerError:
		return apperrors.TransientTransport(op, err)
	case threadID != 0 && topicGone(description):
		return apperrors.TopicNotFound(threadID, err)
	case code >= http.StatusBadRequest:
		return apperrors.PermanentTransport(op, err)
	default:
		return apperrors.TransientTransport(op, err)
	}
}

func retryAfter(apiErr *telegoapi.Error) time.Duration {
	if apiErr.Parameters == nil {
		return 0
	}
	return time.Duration(apiErr.Parameters.RetryAfter) * time.Second
}

func topicGone(description string) bool {
	for _, marker := range topicGoneMarkers {
		if strings.Contains(description, marker) {
			return true
		}
	}
	return false
}
