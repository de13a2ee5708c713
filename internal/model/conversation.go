package model

import (
	"time"
)

// ConversationStatus is the request/accept/block state of a direct
// conversation.
type ConversationStatus string

const (
	StatusPending  ConversationStatus = "pending"
	StatusAccepted ConversationStatus = "accepted"
	StatusBlocked  ConversationStatus = "blocked"
)

// Valid reports whether s is one of the known status values.
func (s ConversationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusBlocked:
		return true
	}
	return false
}

// Conversation is a direct chat between two users. There is one
// conversation per unordered pair of participants; the status may be
// re-written by the backend at any time and clients must re-derive
// their state from whatever arrives.
type Conversation struct {
	ID             string             `json:"id"`
	ParticipantOne string             `json:"participant_one"`
	ParticipantTwo string             `json:"participant_two"`
	Status         ConversationStatus `json:"status"`
	RequesterID    string             `json:"requester_id"`
	CreatedAt      time.Time          `json:"created_at"`
}

// HasParticipant reports whether userID is one of the two participants.
func (c Conversation) HasParticipant(userID string) bool {
	return c.ParticipantOne == userID || c.ParticipantTwo == userID
}

// OtherParticipant returns the participant that is not userID.
func (c Conversation) OtherParticipant(userID string) string {
	if c.ParticipantOne == userID {
		return c.ParticipantTwo
	}
	return c.ParticipantOne
}

// ConversationRow is one row of the list-conversations query: the
// conversation joined with its most recent message, if any. The
// listing is a single round trip per user, not one query per
// conversation.
type ConversationRow struct {
	ID                   string             `json:"id"`
	ParticipantOne       string             `json:"participant_one"`
	ParticipantTwo       string             `json:"participant_two"`
	LastMessageContent   *string            `json:"last_message_content"`
	LastMessageCreatedAt *time.Time         `json:"last_message_created_at"`
	Status               ConversationStatus `json:"status"`
	RequesterID          string             `json:"requester_id"`
}

// LastMessage is the preview of the most recent message in a
// conversation summary.
type LastMessage struct {
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationSummary is the client-side view of a conversation: the
// other participant's profile plus the most recent message. Summaries
// exist only for conversations where the signed-in user is one of two
// distinct participants.
type ConversationSummary struct {
	ConversationID   string             `json:"conversation_id"`
	OtherParticipant User               `json:"other_participant"`
	LastMessage      *LastMessage       `json:"last_message,omitempty"`
	Status           ConversationStatus `json:"status"`
	RequesterID      string             `json:"requester_id"`
}

// CreateConversationRequest is the request to open a conversation with
// another user. The caller becomes the requester and the conversation
// starts pending.
type CreateConversationRequest struct {
	ParticipantID string `json:"participant_id"`
}

// UpdateConversationStatusRequest is the request to accept or decline
// a pending conversation.
type UpdateConversationStatusRequest struct {
	Status ConversationStatus `json:"status"`
}
