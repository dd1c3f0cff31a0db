package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports whether the snapshot store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles GET /health
type HealthHandler struct {
	store Pinger
}

// NewHealthHandler creates a new handler checking the given store
func NewHealthHandler(store Pinger) *HealthHandler {
	return &HealthHandler{store: store}
}

// GetHealth pings the store and answers 503 when it is unreachable
func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "error",
			"store":     "disconnected",
			"timestamp": time.Now().UTC(),
			"error":     err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"store":     "connected",
		"timestamp": time.Now().UTC(),
	})
}

// Healthz is a plain liveness probe
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Ping answers "pong"
func Ping(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("pong"))
}
