package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type QueueReporter interface {
	Pending() int
}

type HealthHandler struct {
	db          Pinger
	queue       QueueReporter
	pingTimeout time.Duration
}

func NewHealthHandler(db Pinger, queue QueueReporter, pingTimeout time.Duration) *HealthHandler {
	return &HealthHandler{db: db, queue: queue, pingTimeout: pingTimeout}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.pingTimeout)
	defer cancel()

	status, code, database := "ok", http.StatusOK, "ok"
	if err := h.db.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("health check: database ping failed")
		status, code, database = "degraded", http.StatusServiceUnavailable, "unavailable"
	}

	writeJSON(w, code, map[string]any{
		"status":      status,
		"database":    database,
		"pendingJobs": h.queue.Pending(),
		"timestamp":   time.Now().UnixMilli(),
	})
}
