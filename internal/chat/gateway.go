package chat

import (
	"context"

	"github.com/teamup-labs/chat-platform/internal/model"
)

// Subscription is a live change-feed channel that must be released
// when the consuming surface is no longer displayed.
type Subscription interface {
	Unsubscribe() error
}

// Gateway is the remote data gateway the synchronizers consume: point
// reads and mutations against the four logical tables, the batched
// list-conversations query, and the change-feed subscription. The
// signed-in user is established out of band (bearer token); methods
// operate within that user's visibility.
type Gateway interface {
	User(ctx context.Context, id string) (model.User, error)
	Users(ctx context.Context, ids []string) ([]model.User, error)

	Conversation(ctx context.Context, id string) (model.Conversation, error)
	ConversationRows(ctx context.Context) ([]model.ConversationRow, error)
	UpdateConversationStatus(ctx context.Context, id string, status model.ConversationStatus) error

	Messages(ctx context.Context, conversationID string) ([]model.Message, error)
	InsertMessage(ctx context.Context, m model.Message) error

	Team(ctx context.Context, id string) (model.TeamChannel, error)
	TeamMessages(ctx context.Context, teamID string) ([]model.Message, error)
	InsertTeamMessage(ctx context.Context, m model.Message) error

	// Subscribe delivers insert/update events for a table, optionally
	// filtered by scope (conversation id, team id, or row id). An
	// empty filter matches the whole table.
	Subscribe(table, filter string, fn func(model.ChangeEvent)) (Subscription, error)
}
