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

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	store     store.Store
	publisher *feed.Publisher
	logger    *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(st store.Store, pub *feed.Publisher, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		store:     st,
		publisher: pub,
		logger:    log,
	}
}

// Create handles POST /api/v1/conversations. The caller becomes the
// requester and the conversation starts pending.
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req model.CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateID(req.ParticipantID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ParticipantID == userID {
		writeError(w, http.StatusBadRequest, "cannot start a conversation with yourself")
		return
	}
	if _, err := h.store.User(ctx, req.ParticipantID); err != nil {
		writeStoreError(w, h.logger, "failed to fetch participant", err)
		return
	}

	conv, err := h.store.InsertConversation(ctx, model.Conversation{
		ParticipantOne: userID,
		ParticipantTwo: req.ParticipantID,
		Status:         model.StatusPending,
		RequesterID:    userID,
	})
	if err != nil {
		writeStoreError(w, h.logger, "failed to create conversation", err)
		return
	}

	publishChange(ctx, h.publisher, h.logger, model.ChangeInsert, model.TableConversations, conv, conv.ID)
	writeJSON(w, http.StatusCreated, conv)
}

// List handles GET /api/v1/conversations: the single-round-trip
// summary listing, each of the caller's conversations joined with its
// latest message.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	rows, err := h.store.ConversationRows(ctx, userID)
	if err != nil {
		writeStoreError(w, h.logger, "failed to list conversations", err)
		return
	}
	if rows == nil {
		rows = []model.ConversationRow{}
	}

	writeJSON(w, http.StatusOK, rows)
}

// Get handles GET /api/v1/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.store.Conversation(ctx, userID, conversationID)
	if err != nil {
		writeStoreError(w, h.logger, "failed to fetch conversation", err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// UpdateStatus handles PATCH /api/v1/conversations/{id}/status, the
// accept/decline decision. The store enforces who may resolve a
// pending request.
func (h *ConversationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.UpdateConversationStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Status.Valid() || req.Status == model.StatusPending {
		writeError(w, http.StatusBadRequest, "status must be accepted or blocked")
		return
	}

	conv, err := h.store.UpdateConversationStatus(ctx, userID, conversationID, req.Status)
	if err != nil {
		writeStoreError(w, h.logger, "failed to update conversation", err)
		return
	}

	publishChange(ctx, h.publisher, h.logger, model.ChangeUpdate, model.TableConversations, conv, conv.ID)
	writeJSON(w, http.StatusOK, conv)
}
