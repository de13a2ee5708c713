package chat_test

import (
	"context"
	"errors"
	"sync"

	"github.com/teamup-labs/chat-platform/internal/chat"
	"github.com/teamup-labs/chat-platform/internal/model"
)

// fakeGateway is an in-memory chat.Gateway for driving the
// synchronizers in tests.
type fakeGateway struct {
	mu sync.Mutex

	users         map[string]model.User
	rows          []model.ConversationRow
	conversations map[string]model.Conversation
	messages      map[string][]model.Message
	teams         map[string]model.TeamChannel
	teamMessages  map[string][]model.Message

	rowsErr   error
	usersErr  error
	insertErr error
	statusErr error

	userCalls     int
	inserted      []model.Message
	statusUpdates map[string]model.ConversationStatus

	// insertStarted/insertRelease, when set, make InsertMessage block
	// so a send can be held in flight.
	insertStarted chan struct{}
	insertRelease chan struct{}

	subs []*fakeSubscription
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		users:         make(map[string]model.User),
		conversations: make(map[string]model.Conversation),
		messages:      make(map[string][]model.Message),
		teams:         make(map[string]model.TeamChannel),
		teamMessages:  make(map[string][]model.Message),
		statusUpdates: make(map[string]model.ConversationStatus),
	}
}

type fakeSubscription struct {
	table        string
	filter       string
	fn           func(model.ChangeEvent)
	unsubscribed bool
}

func (s *fakeSubscription) Unsubscribe() error {
	s.unsubscribed = true
	return nil
}

func (g *fakeGateway) User(ctx context.Context, id string) (model.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.userCalls++
	if g.usersErr != nil {
		return model.User{}, g.usersErr
	}
	u, ok := g.users[id]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return u, nil
}

func (g *fakeGateway) Users(ctx context.Context, ids []string) ([]model.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.usersErr != nil {
		return nil, g.usersErr
	}
	var out []model.User
	for _, id := range ids {
		if u, ok := g.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (g *fakeGateway) Conversation(ctx context.Context, id string) (model.Conversation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	c, ok := g.conversations[id]
	if !ok {
		return model.Conversation{}, model.ErrNotFound
	}
	return c, nil
}

func (g *fakeGateway) ConversationRows(ctx context.Context) ([]model.ConversationRow, error) {
	if g.rowsErr != nil {
		return nil, g.rowsErr
	}
	return g.rows, nil
}

func (g *fakeGateway) UpdateConversationStatus(ctx context.Context, id string, status model.ConversationStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.statusErr != nil {
		return g.statusErr
	}
	g.statusUpdates[id] = status
	if c, ok := g.conversations[id]; ok {
		c.Status = status
		g.conversations[id] = c
	}
	return nil
}

func (g *fakeGateway) Messages(ctx context.Context, conversationID string) ([]model.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.messages[conversationID], nil
}

func (g *fakeGateway) InsertMessage(ctx context.Context, m model.Message) error {
	if g.insertStarted != nil {
		close(g.insertStarted)
		g.insertStarted = nil
		<-g.insertRelease
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.insertErr != nil {
		return g.insertErr
	}
	g.inserted = append(g.inserted, m)
	return nil
}

func (g *fakeGateway) Team(ctx context.Context, id string) (model.TeamChannel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.teams[id]
	if !ok {
		return model.TeamChannel{}, model.ErrNotFound
	}
	return t, nil
}

func (g *fakeGateway) TeamMessages(ctx context.Context, teamID string) ([]model.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.teams[teamID]; !ok {
		return nil, model.ErrNotFound
	}
	return g.teamMessages[teamID], nil
}

func (g *fakeGateway) InsertTeamMessage(ctx context.Context, m model.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.insertErr != nil {
		return g.insertErr
	}
	g.inserted = append(g.inserted, m)
	return nil
}

func (g *fakeGateway) Subscribe(table, filter string, fn func(model.ChangeEvent)) (chat.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	sub := &fakeSubscription{table: table, filter: filter, fn: fn}
	g.subs = append(g.subs, sub)
	return sub, nil
}

var errBackend = errors.New("backend unavailable")
