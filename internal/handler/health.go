package handler

import (
	"net/http"

	"github.com/teamup-labs/chat-platform/internal/feed"
	"github.com/teamup-labs/chat-platform/internal/store"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store      store.Store
	feedClient *feed.Client
}

// NewHealthHandler creates a new health handler. feedClient may be nil
// when the deployment runs without realtime updates.
func NewHealthHandler(st store.Store, feedClient *feed.Client) *HealthHandler {
	return &HealthHandler{
		store:      st,
		feedClient: feedClient,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "store unreachable",
		})
		return
	}

	if h.feedClient != nil && !h.feedClient.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
