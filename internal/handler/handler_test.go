package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jlypx/BetterForward-enhance/internal/model"
)

func TestWebhookHandler(t *testing.T) {
	t.Run("forwards converted update", func(t *testing.T) {
		updates := make(chan model.Update, 1)
		h := NewWebhookHandler(updates)

		body := `{"update_id": 9, "message": {"message_id": 3, "date": 1700000000,
			"chat": {"id": 501, "type": "private"}, "from": {"id": 501, "is_bot": false, "first_name": "Alice"}, "text": "hi"}}`
		req := httptest.NewRequest("POST", "/telegram/webhook", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()

		h.Webhook(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, updates, 1)
		u := <-updates
		assert.Equal(t, int64(9), u.ID)
		assert.Equal(t, "hi", u.Message.Text)
	})

	t.Run("acknowledges unsupported update", func(t *testing.T) {
		updates := make(chan model.Update, 1)
		h := NewWebhookHandler(updates)

		req := httptest.NewRequest("POST", "/telegram/webhook", bytes.NewBufferString(`{"update_id": 10}`))
		rec := httptest.NewRecorder()

		h.Webhook(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, updates)
	})

	t.Run("rejects invalid JSON", func(t *testing.T) {
		h := NewWebhookHandler(make(chan model.Update, 1))

		req := httptest.NewRequest("POST", "/telegram/webhook", bytes.NewBufferString(`{not json`))
		rec := httptest.NewRecorder()

		h.Webhook(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("asks for redelivery when stream is full", func(t *testing.T) {
		h := NewWebhookHandler(make(chan model.Update))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		body := `{"update_id": 11, "message": {"message_id": 3, "date": 1700000000, "chat": {"id": 501, "type": "private"}}}`
		req := httptest.NewRequest("POST", "/telegram/webhook", bytes.NewBufferString(body)).WithContext(ctx)
		rec := httptest.NewRecorder()

		h.Webhook(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubQueue struct{ n int }

func (s stubQueue) Pending() int { return s.n }

func TestHealthHandler(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		h := NewHealthHandler(stubPinger{}, stubQueue{n: 3}, time.Second)
		rec := httptest.NewRecorder()

		h.Health(rec, httptest.NewRequest("GET", "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "ok", resp["status"])
		assert.Equal(t, float64(3), resp["pendingJobs"])
	})

	t.Run("database down", func(t *testing.T) {
		h := NewHealthHandler(stubPinger{err: errors.New("closed")}, stubQueue{}, time.Second)
		rec := httptest.NewRecorder()

		h.Health(rec, httptest.NewRequest("GET", "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "degraded", resp["status"])
		assert.Equal(t, "unavailable", resp["database"])
	})
}
