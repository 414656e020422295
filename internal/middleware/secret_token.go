package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/Jlypx/BetterForward-enhance/internal/audit"
	apperrors "github.com/Jlypx/BetterForward-enhance/internal/errors"
	"github.com/Jlypx/BetterForward-enhance/internal/httputil"
	"github.com/Jlypx/BetterForward-enhance/internal/util"
)

// SecretTokenHeader carries the secret given to setWebhook on every push.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

type SecretTokenMiddleware struct {
	secret string
}

func NewSecretTokenMiddleware(secret string) *SecretTokenMiddleware {
	return &SecretTokenMiddleware{secret: secret}
}

func (m *SecretTokenMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.secret == "" {
			log.Warn().Msg("webhook secret verification bypassed: no secret configured")
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get(SecretTokenHeader)
		if token == "" {
			m.reject(w, r, "Missing secret token")
			return
		}
		if !util.ConstantTimeEqual(token, m.secret) {
			m.reject(w, r, "Invalid secret token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *SecretTokenMiddleware) reject(w http.ResponseWriter, r *http.Request, reason string) {
	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventWebhookAuthFailure,
		Details: map[string]any{"reason": reason},
	})
	httputil.WriteError(w, apperrors.Unauthorized(reason))
}
