package model

import (
	"strings"
	"time"
)

// TempIDPrefix marks client-generated provisional message ids. Backend
// ids are UUIDs and can never carry the prefix, so optimistic entries
// never collide with authoritative rows.
const TempIDPrefix = "temp-"

// Message is one entry in a conversation or team thread, ordered by
// created_at ascending. The id is authoritative once assigned by the
// backend. Exactly one of ConversationID and TeamID is set.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	TeamID         string    `json:"team_id,omitempty"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`

	// Sender is the denormalized sender profile, populated on read.
	Sender *User `json:"sender,omitempty"`
}

// IsTemp reports whether the message is an optimistic local entry that
// has not been confirmed by the backend.
func (m Message) IsTemp() bool {
	return strings.HasPrefix(m.ID, TempIDPrefix)
}

// SendMessageRequest is the request to append a message to a
// conversation or team thread.
type SendMessageRequest struct {
	Content string `json:"content"`
}
