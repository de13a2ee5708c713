// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/teamup-labs/chat-platform/internal/middleware"
	"github.com/teamup-labs/chat-platform/internal/store"
	"github.com/teamup-labs/chat-platform/pkg/logger"
)

// UserHandler handles user profile endpoints.
type UserHandler struct {
	store  store.Store
	logger *logger.Logger
}

// NewUserHandler creates a new user handler.
func NewUserHandler(st store.Store, log *logger.Logger) *UserHandler {
	return &UserHandler{
		store:  st,
		logger: log,
	}
}

// Me handles GET /api/v1/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	user, err := h.store.User(ctx, userID)
	if err != nil {
		writeStoreError(w, h.logger, "failed to fetch profile", err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Get handles GET /api/v1/users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if err := middleware.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.store.User(ctx, id)
	if err != nil {
		writeStoreError(w, h.logger, "failed to fetch user", err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Batch handles GET /api/v1/users?ids=a,b,c, the batched profile
// lookup behind the conversation list join.
func (h *UserHandler) Batch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw := r.URL.Query().Get("ids")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "ids parameter is required")
		return
	}

	ids := strings.Split(raw, ",")
	if len(ids) > 100 {
		writeError(w, http.StatusBadRequest, "too many ids")
		return
	}
	for _, id := range ids {
		if err := middleware.ValidateID(id); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	users, err := h.store.Users(ctx, ids)
	if err != nil {
		writeStoreError(w, h.logger, "failed to fetch users", err)
		return
	}

	writeJSON(w, http.StatusOK, users)
}
