// Package store provides persistence for users, conversations,
// messages and team channels.
package store

import (
	"context"

	"github.com/teamup-labs/chat-platform/internal/model"
)

// Store is the persistence interface consumed by the HTTP handlers.
//
// Reads and mutations against conversations and their messages are
// scoped to a requesting user id: rows the user does not participate
// in behave as if they do not exist (model.ErrNotFound). Team channels
// have no such scoping.
type Store interface {
	// Users
	User(ctx context.Context, id string) (model.User, error)
	Users(ctx context.Context, ids []string) ([]model.User, error)
	InsertUser(ctx context.Context, u model.User) (model.User, error)

	// Conversations
	Conversation(ctx context.Context, userID, id string) (model.Conversation, error)
	InsertConversation(ctx context.Context, c model.Conversation) (model.Conversation, error)
	// UpdateConversationStatus applies an accept/decline decision.
	// While pending, only the non-requester participant may change the
	// status; blocked is terminal.
	UpdateConversationStatus(ctx context.Context, userID, id string, status model.ConversationStatus) (model.Conversation, error)
	// ConversationRows lists the user's conversations joined with the
	// latest message in a single query.
	ConversationRows(ctx context.Context, userID string) ([]model.ConversationRow, error)

	// Messages
	Messages(ctx context.Context, userID, conversationID string) ([]model.Message, error)
	InsertMessage(ctx context.Context, userID string, m model.Message) (model.Message, error)

	// Teams
	Team(ctx context.Context, id string) (model.TeamChannel, error)
	InsertTeam(ctx context.Context, t model.TeamChannel) (model.TeamChannel, error)
	TeamMessages(ctx context.Context, teamID string) ([]model.Message, error)
	InsertTeamMessage(ctx context.Context, userID string, m model.Message) (model.Message, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
