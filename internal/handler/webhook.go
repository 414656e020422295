package handler

import (
	"encoding/json"
	"net/http"

	"github.com/mymmrac/telego"
	"github.com/rs/zerolog/log"

	apperrors "github.com/Jlypx/BetterForward-enhance/internal/errors"
	"github.com/Jlypx/BetterForward-enhance/internal/httputil"
	"github.com/Jlypx/BetterForward-enhance/internal/model"
	"github.com/Jlypx/BetterForward-enhance/internal/telegram"
)

// WebhookHandler feeds pushed updates into the same stream long polling
// would. A non-2xx answer makes the bot API redeliver the update later.
type WebhookHandler struct {
	updates chan<- model.Update
}

func NewWebhookHandler(updates chan<- model.Update) *WebhookHandler {
	return &WebhookHandler{updates: updates}
}

func (h *WebhookHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	var raw telego.Update
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		log.Warn().Err(err).Msg("invalid webhook update")
		httputil.WriteError(w, apperrors.InvalidInput("body", "not a bot API update"))
		return
	}

	update, ok := telegram.Convert(raw)
	if !ok {
		log.Debug().Int("updateId", raw.UpdateID).Msg("skipping unsupported update")
		writeOK(w)
		return
	}

	select {
	case h.updates <- update:
		writeOK(w)
	case <-r.Context().Done():
		log.Warn().Int64("updateId", update.ID).Msg("update stream full, asking for redelivery")
		httputil.WriteError(w, apperrors.ShuttingDown())
	}
}
