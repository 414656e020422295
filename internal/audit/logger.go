// Package audit records staff actions and webhook authentication failures on
// a dedicated log stream.
package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventBan                EventType = "ban"
	EventUnban              EventType = "unban"
	EventStatusQuery        EventType = "status_query"
	EventTopicCreated       EventType = "topic_created"
	EventTopicClosed        EventType = "topic_closed"
	EventWebhookAuthFailure EventType = "webhook_auth_failure"
	EventUserLeft           EventType = "user_left"
)

type Event struct {
	Type EventType
	// ActorID is the staff member who issued a command, zero for system events.
	ActorID   int64
	ChatID    int64
	TopicID   int64
	IP        string
	UserAgent string
	Details   map[string]any
}

func Log(ctx context.Context, event Event) {
	builder := log.With().
		Str("audit", "relay").
		Str("eventType", string(event.Type)).
		Time("timestamp", time.Now().UTC())

	if event.ActorID != 0 {
		builder = builder.Int64("actorId", event.ActorID)
	}
	if event.ChatID != 0 {
		builder = builder.Int64("chatId", event.ChatID)
	}
	if event.TopicID != 0 {
		builder = builder.Int64("topicId", event.TopicID)
	}
	if event.IP != "" {
		builder = builder.Str("ip", event.IP)
	}
	if event.UserAgent != "" {
		builder = builder.Str("userAgent", event.UserAgent)
	}
	l := builder.Logger()

	logEvent := l.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("audit event")
}

func addField(e *zerolog.Event, key string, value any) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = clientIP(r)
	event.UserAgent = r.UserAgent()
	Log(r.Context(), event)
}

// clientIP relies on chi's RealIP middleware having rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
