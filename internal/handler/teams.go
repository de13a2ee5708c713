package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/teamup-labs/chat-platform/internal/feed"
	"github.com/teamup-labs/chat-platform/internal/middleware"
	"github.com/teamup-labs/chat-platform/internal/model"
	"github.com/teamup-labs/chat-platform/internal/store"
	"github.com/teamup-labs/chat-platform/pkg/logger"
)

// TeamHandler handles team channel endpoints. Team channels have no
// request gating: any authenticated member may post.
type TeamHandler struct {
	store     store.Store
	publisher *feed.Publisher
	logger    *logger.Logger
}

// NewTeamHandler creates a new team handler.
func NewTeamHandler(st store.Store, pub *feed.Publisher, log *logger.Logger) *TeamHandler {
	return &TeamHandler{
		store:     st,
		publisher: pub,
		logger:    log,
	}
}

// Get handles GET /api/v1/teams/{id}
func (h *TeamHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	teamID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(teamID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	team, err := h.store.Team(ctx, teamID)
	if err != nil {
		writeStoreError(w, h.logger, "failed to fetch team", err)
		return
	}

	writeJSON(w, http.StatusOK, team)
}

// Messages handles GET /api/v1/teams/{id}/messages
func (h *TeamHandler) Messages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	teamID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(teamID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	messages, err := h.store.TeamMessages(ctx, teamID)
	if err != nil {
		writeStoreError(w, h.logger, "failed to list team messages", err)
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}

	writeJSON(w, http.StatusOK, messages)
}

// Send handles POST /api/v1/teams/{id}/messages
func (h *TeamHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	teamID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(teamID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.store.InsertTeamMessage(ctx, userID, model.Message{
		TeamID:  teamID,
		Content: req.Content,
	})
	if err != nil {
		writeStoreError(w, h.logger, "failed to send team message", err)
		return
	}

	publishChange(ctx, h.publisher, h.logger, model.ChangeInsert, model.TableTeamMessages, msg, msg.TeamID)
	writeJSON(w, http.StatusCreated, msg)
}
