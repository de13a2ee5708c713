package model

import (
	"encoding/json"
	"fmt"
)

// ChangeType represents the kind of row change carried by the feed.
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
)

// Logical table names used by the change feed and the store.
const (
	TableUsers         = "users"
	TableConversations = "conversations"
	TableMessages      = "messages"
	TableTeamMessages  = "team_messages"
)

// ChangeEvent is a row insert/update notification from the change
// feed. New carries the full row as it exists after the change.
type ChangeEvent struct {
	Type  ChangeType      `json:"type"`
	Table string          `json:"table"`
	New   json.RawMessage `json:"new"`
}

// Message decodes the event row as a Message.
func (e ChangeEvent) Message() (Message, error) {
	var m Message
	if err := json.Unmarshal(e.New, &m); err != nil {
		return Message{}, fmt.Errorf("decode message event: %w", err)
	}
	return m, nil
}

// Conversation decodes the event row as a Conversation.
func (e ChangeEvent) Conversation() (Conversation, error) {
	var c Conversation
	if err := json.Unmarshal(e.New, &c); err != nil {
		return Conversation{}, fmt.Errorf("decode conversation event: %w", err)
	}
	return c, nil
}

// NewChangeEvent builds a ChangeEvent for the given row.
func NewChangeEvent(t ChangeType, table string, row any) (ChangeEvent, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return ChangeEvent{}, fmt.Errorf("encode %s event: %w", table, err)
	}
	return ChangeEvent{Type: t, Table: table, New: data}, nil
}
