package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teamup-labs/chat-platform/internal/model"
	"github.com/teamup-labs/chat-platform/pkg/metrics"
)

// MemoryStore is an in-memory Store used for tests and NATS-less
// development. It applies the same scoping and transition rules as the
// Postgres store.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]model.User
	conversations map[string]model.Conversation
	messages      map[string][]model.Message // keyed by conversation id
	teams         map[string]model.TeamChannel
	teamMessages  map[string][]model.Message // keyed by team id
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]model.User),
		conversations: make(map[string]model.Conversation),
		messages:      make(map[string][]model.Message),
		teams:         make(map[string]model.TeamChannel),
		teamMessages:  make(map[string][]model.Message),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) User(ctx context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) Users(ctx context.Context, ids []string) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var users []model.User
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

func (s *MemoryStore) InsertUser(ctx context.Context, u model.User) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.Must(uuid.NewV7()).String()
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *MemoryStore) Conversation(ctx context.Context, userID, id string) (model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.conversationLocked(userID, id)
}

func (s *MemoryStore) conversationLocked(userID, id string) (model.Conversation, error) {
	c, ok := s.conversations[id]
	if !ok || !c.HasParticipant(userID) {
		return model.Conversation{}, model.ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) InsertConversation(ctx context.Context, c model.Conversation) (model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ParticipantOne == c.ParticipantTwo {
		return model.Conversation{}, fmt.Errorf("participants must be distinct")
	}
	if !c.HasParticipant(c.RequesterID) {
		return model.Conversation{}, fmt.Errorf("requester must be a participant")
	}
	for _, existing := range s.conversations {
		if existing.HasParticipant(c.ParticipantOne) && existing.HasParticipant(c.ParticipantTwo) {
			return model.Conversation{}, fmt.Errorf("conversation already exists for pair")
		}
	}
	if c.ID == "" {
		c.ID = uuid.Must(uuid.NewV7()).String()
	}
	if c.Status == "" {
		c.Status = model.StatusPending
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.conversations[c.ID] = c

	metrics.ConversationsTotal.Inc()
	return c, nil
}

func (s *MemoryStore) UpdateConversationStatus(ctx context.Context, userID, id string, status model.ConversationStatus) (model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.conversationLocked(userID, id)
	if err != nil {
		return model.Conversation{}, err
	}
	if err := checkStatusTransition(c, userID, status); err != nil {
		return model.Conversation{}, err
	}

	c.Status = status
	s.conversations[id] = c
	return c, nil
}

func (s *MemoryStore) ConversationRows(ctx context.Context, userID string) ([]model.ConversationRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type keyed struct {
		row      model.ConversationRow
		activity time.Time
	}

	var rows []keyed
	for _, c := range s.conversations {
		if !c.HasParticipant(userID) {
			continue
		}
		r := model.ConversationRow{
			ID:             c.ID,
			ParticipantOne: c.ParticipantOne,
			ParticipantTwo: c.ParticipantTwo,
			Status:         c.Status,
			RequesterID:    c.RequesterID,
		}
		activity := c.CreatedAt
		if msgs := s.messages[c.ID]; len(msgs) > 0 {
			last := msgs[len(msgs)-1]
			content := last.Content
			created := last.CreatedAt
			r.LastMessageContent = &content
			r.LastMessageCreatedAt = &created
			activity = created
		}
		rows = append(rows, keyed{row: r, activity: activity})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].activity.After(rows[j].activity)
	})

	result := make([]model.ConversationRow, len(rows))
	for i, k := range rows {
		result[i] = k.row
	}
	return result, nil
}

func (s *MemoryStore) Messages(ctx context.Context, userID, conversationID string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.conversationLocked(userID, conversationID); err != nil {
		return nil, err
	}

	msgs := s.messages[conversationID]
	result := make([]model.Message, len(msgs))
	copy(result, msgs)
	for i := range result {
		if u, ok := s.users[result[i].SenderID]; ok {
			sender := u
			result[i].Sender = &sender
		}
	}
	return result, nil
}

func (s *MemoryStore) InsertMessage(ctx context.Context, userID string, m model.Message) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.conversationLocked(userID, m.ConversationID)
	if err != nil {
		return model.Message{}, err
	}
	if conv.Status == model.StatusBlocked {
		return model.Message{}, model.ErrBlocked
	}

	m.SenderID = userID
	if m.ID == "" || m.IsTemp() {
		m.ID = uuid.Must(uuid.NewV7()).String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.Sender = nil
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], m)

	if u, ok := s.users[m.SenderID]; ok {
		sender := u
		m.Sender = &sender
	}

	metrics.MessagesTotal.WithLabelValues(model.TableMessages).Inc()
	return m, nil
}

func (s *MemoryStore) Team(ctx context.Context, id string) (model.TeamChannel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.teams[id]
	if !ok {
		return model.TeamChannel{}, model.ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) InsertTeam(ctx context.Context, t model.TeamChannel) (model.TeamChannel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.Must(uuid.NewV7()).String()
	}
	s.teams[t.ID] = t
	return t, nil
}

func (s *MemoryStore) TeamMessages(ctx context.Context, teamID string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.teams[teamID]; !ok {
		return nil, model.ErrNotFound
	}

	msgs := s.teamMessages[teamID]
	result := make([]model.Message, len(msgs))
	copy(result, msgs)
	for i := range result {
		if u, ok := s.users[result[i].SenderID]; ok {
			sender := u
			result[i].Sender = &sender
		}
	}
	return result, nil
}

func (s *MemoryStore) InsertTeamMessage(ctx context.Context, userID string, m model.Message) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.teams[m.TeamID]; !ok {
		return model.Message{}, model.ErrNotFound
	}

	m.SenderID = userID
	if m.ID == "" || m.IsTemp() {
		m.ID = uuid.Must(uuid.NewV7()).String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.Sender = nil
	s.teamMessages[m.TeamID] = append(s.teamMessages[m.TeamID], m)

	if u, ok := s.users[m.SenderID]; ok {
		sender := u
		m.Sender = &sender
	}

	metrics.MessagesTotal.WithLabelValues(model.TableTeamMessages).Inc()
	return m, nil
}
