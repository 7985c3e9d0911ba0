package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	httputil "cardoctor/pkg/http"
	kafka_middleware "cardoctor/pkg/kafka/middleware"
	"cardoctor/pkg/logger"
)

const (
	rootBanner   = "Doctor is running"
	readyTimeout = 2 * time.Second
)

// Pinger reports whether the document store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EventStats exposes publish counters for the booking event stream.
type EventStats interface {
	Snapshot() kafka_middleware.MetricsSnapshot
}

type HealthResponse struct {
	Status   string                            `json:"status"`
	Database string                            `json:"database,omitempty"`
	Events   *kafka_middleware.MetricsSnapshot `json:"events,omitempty"`
}

type HealthHandler struct {
	db     Pinger
	events EventStats
	log    *logger.Logger
}

// NewHealthHandler builds the liveness routes. events may be nil when no
// broker is configured.
func NewHealthHandler(db Pinger, events EventStats, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		events: events,
		log:    log,
	}
}

func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := httputil.WriteText(w, http.StatusOK, rootBanner); err != nil {
		h.log.Error("failed to write text response", "handler", "Root", "operation", "WriteText", "error", err)
	}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	resp := HealthResponse{Status: "ok"}
	if h.events != nil {
		snapshot := h.events.Snapshot()
		resp.Events = &snapshot
	}

	if err := httputil.WriteJSON(w, http.StatusOK, resp); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Health", "operation", "WriteJSON", "error", err)
	}
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.log.Error("Database health check failed",
			"error", err,
			"path", r.URL.Path,
		)
		if writeErr := httputil.WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:   "unavailable",
			Database: "error",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Ready", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteJSON(w, http.StatusOK, HealthResponse{
		Status:   "ready",
		Database: "ok",
	}); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Ready", "operation", "WriteJSON", "error", err)
	}
}

func (h *HealthHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}
