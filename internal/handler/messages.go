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

// MessageHandler handles direct-conversation message endpoints.
type MessageHandler struct {
	store     store.Store
	publisher *feed.Publisher
	logger    *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(st store.Store, pub *feed.Publisher, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		store:     st,
		publisher: pub,
		logger:    log,
	}
}

// List handles GET /api/v1/conversations/{id}/messages: the full
// ascending history with sender profiles joined.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	messages, err := h.store.Messages(ctx, userID, conversationID)
	if err != nil {
		writeStoreError(w, h.logger, "failed to list messages", err)
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}

	writeJSON(w, http.StatusOK, messages)
}

// Send handles POST /api/v1/conversations/{id}/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(conversationID); err != nil {
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

	msg, err := h.store.InsertMessage(ctx, userID, model.Message{
		ConversationID: conversationID,
		Content:        req.Content,
	})
	if err != nil {
		writeStoreError(w, h.logger, "failed to send message", err)
		return
	}

	publishChange(ctx, h.publisher, h.logger, model.ChangeInsert, model.TableMessages, msg, msg.ConversationID)
	writeJSON(w, http.StatusCreated, msg)
}
