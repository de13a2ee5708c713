package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/teamup-labs/chat-platform/internal/model"
	"github.com/teamup-labs/chat-platform/pkg/metrics"
)

// ErrNotAllowed indicates the requesting user is a participant but may
// not perform the mutation (e.g. a requester accepting their own
// request).
var ErrNotAllowed = errors.New("not allowed")

// PostgresStore is the Postgres-backed Store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// DB returns the underlying database handle.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) User(ctx context.Context, id string) (model.User, error) {
	defer observe("user")()

	var u model.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, full_name, avatar_url FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.FullName, &u.AvatarURL)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, model.ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) Users(ctx context.Context, ids []string) ([]model.User, error) {
	defer observe("users")()

	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, full_name, avatar_url FROM users WHERE id = ANY($1)`, pgArray(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.FullName, &u.AvatarURL); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (s *PostgresStore) InsertUser(ctx context.Context, u model.User) (model.User, error) {
	defer observe("insert_user")()

	if u.ID == "" {
		u.ID = uuid.Must(uuid.NewV7()).String()
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, full_name, avatar_url) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET full_name = $2, avatar_url = $3`,
		u.ID, u.FullName, u.AvatarURL,
	); err != nil {
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) Conversation(ctx context.Context, userID, id string) (model.Conversation, error) {
	defer observe("conversation")()

	var c model.Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, participant_one, participant_two, status, requester_id, created_at
		 FROM conversations
		 WHERE id = $1 AND (participant_one = $2 OR participant_two = $2)`,
		id, userID,
	).Scan(&c.ID, &c.ParticipantOne, &c.ParticipantTwo, &c.Status, &c.RequesterID, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Conversation{}, model.ErrNotFound
	}
	if err != nil {
		return model.Conversation{}, fmt.Errorf("select conversation: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) InsertConversation(ctx context.Context, c model.Conversation) (model.Conversation, error) {
	defer observe("insert_conversation")()

	if c.ParticipantOne == c.ParticipantTwo {
		return model.Conversation{}, fmt.Errorf("participants must be distinct")
	}
	if !c.HasParticipant(c.RequesterID) {
		return model.Conversation{}, fmt.Errorf("requester must be a participant")
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

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, participant_one, participant_two, status, requester_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.ParticipantOne, c.ParticipantTwo, c.Status, c.RequesterID, c.CreatedAt,
	); err != nil {
		return model.Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}

	metrics.ConversationsTotal.Inc()
	return c, nil
}

func (s *PostgresStore) UpdateConversationStatus(ctx context.Context, userID, id string, status model.ConversationStatus) (model.Conversation, error) {
	defer observe("update_conversation_status")()

	c, err := s.Conversation(ctx, userID, id)
	if err != nil {
		return model.Conversation{}, err
	}
	if err := checkStatusTransition(c, userID, status); err != nil {
		return model.Conversation{}, err
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status = $1 WHERE id = $2`, status, id,
	); err != nil {
		return model.Conversation{}, fmt.Errorf("update conversation status: %w", err)
	}

	c.Status = status
	return c, nil
}

func (s *PostgresStore) ConversationRows(ctx context.Context, userID string) ([]model.ConversationRow, error) {
	defer observe("conversation_rows")()

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.participant_one, c.participant_two,
		        m.content, m.created_at, c.status, c.requester_id
		 FROM conversations c
		 LEFT JOIN LATERAL (
		     SELECT content, created_at FROM messages
		     WHERE conversation_id = c.id
		     ORDER BY created_at DESC
		     LIMIT 1
		 ) m ON true
		 WHERE c.participant_one = $1 OR c.participant_two = $1
		 ORDER BY COALESCE(m.created_at, c.created_at) DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select conversation rows: %w", err)
	}
	defer rows.Close()

	var result []model.ConversationRow
	for rows.Next() {
		var r model.ConversationRow
		if err := rows.Scan(
			&r.ID, &r.ParticipantOne, &r.ParticipantTwo,
			&r.LastMessageContent, &r.LastMessageCreatedAt,
			&r.Status, &r.RequesterID,
		); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation rows: %w", err)
	}
	return result, nil
}

func (s *PostgresStore) Messages(ctx context.Context, userID, conversationID string) ([]model.Message, error) {
	defer observe("messages")()

	if _, err := s.Conversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.conversation_id, m.sender_id, m.content, m.created_at,
		        u.id, u.full_name, u.avatar_url
		 FROM messages m
		 JOIN users u ON u.id = m.sender_id
		 WHERE m.conversation_id = $1
		 ORDER BY m.created_at ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows, false)
}

func (s *PostgresStore) InsertMessage(ctx context.Context, userID string, m model.Message) (model.Message, error) {
	defer observe("insert_message")()

	conv, err := s.Conversation(ctx, userID, m.ConversationID)
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

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.ConversationID, m.SenderID, m.Content, m.CreatedAt,
	); err != nil {
		return model.Message{}, fmt.Errorf("insert message: %w", err)
	}

	if sender, err := s.User(ctx, m.SenderID); err == nil {
		m.Sender = &sender
	}

	metrics.MessagesTotal.WithLabelValues(model.TableMessages).Inc()
	return m, nil
}

func (s *PostgresStore) Team(ctx context.Context, id string) (model.TeamChannel, error) {
	defer observe("team")()

	var t model.TeamChannel
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, banner_url FROM teams WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.BannerURL)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TeamChannel{}, model.ErrNotFound
	}
	if err != nil {
		return model.TeamChannel{}, fmt.Errorf("select team: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) InsertTeam(ctx context.Context, t model.TeamChannel) (model.TeamChannel, error) {
	defer observe("insert_team")()

	if t.ID == "" {
		t.ID = uuid.Must(uuid.NewV7()).String()
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO teams (id, name, banner_url) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET name = $2, banner_url = $3`,
		t.ID, t.Name, t.BannerURL,
	); err != nil {
		return model.TeamChannel{}, fmt.Errorf("insert team: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) TeamMessages(ctx context.Context, teamID string) ([]model.Message, error) {
	defer observe("team_messages")()

	if _, err := s.Team(ctx, teamID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.team_id, m.sender_id, m.content, m.created_at,
		        u.id, u.full_name, u.avatar_url
		 FROM team_messages m
		 JOIN users u ON u.id = m.sender_id
		 WHERE m.team_id = $1
		 ORDER BY m.created_at ASC`,
		teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("select team messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows, true)
}

func (s *PostgresStore) InsertTeamMessage(ctx context.Context, userID string, m model.Message) (model.Message, error) {
	defer observe("insert_team_message")()

	if _, err := s.Team(ctx, m.TeamID); err != nil {
		return model.Message{}, err
	}

	m.SenderID = userID
	if m.ID == "" || m.IsTemp() {
		m.ID = uuid.Must(uuid.NewV7()).String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO team_messages (id, team_id, sender_id, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.TeamID, m.SenderID, m.Content, m.CreatedAt,
	); err != nil {
		return model.Message{}, fmt.Errorf("insert team message: %w", err)
	}

	if sender, err := s.User(ctx, m.SenderID); err == nil {
		m.Sender = &sender
	}

	metrics.MessagesTotal.WithLabelValues(model.TableTeamMessages).Inc()
	return m, nil
}

// checkStatusTransition enforces who may change a conversation status.
// Pending requests may only be resolved by the non-requester; accepted
// conversations may still be blocked by either participant; blocked is
// terminal.
func checkStatusTransition(c model.Conversation, userID string, status model.ConversationStatus) error {
	if !status.Valid() || status == model.StatusPending {
		return fmt.Errorf("invalid status %q", status)
	}
	switch c.Status {
	case model.StatusBlocked:
		return model.ErrBlocked
	case model.StatusPending:
		if c.RequesterID == userID {
			return ErrNotAllowed
		}
	case model.StatusAccepted:
		if status != model.StatusBlocked {
			return ErrNotAllowed
		}
	}
	return nil
}

func scanMessages(rows *sql.Rows, team bool) ([]model.Message, error) {
	var messages []model.Message
	for rows.Next() {
		var m model.Message
		var sender model.User
		var container *string
		if team {
			container = &m.TeamID
		} else {
			container = &m.ConversationID
		}
		if err := rows.Scan(
			&m.ID, container, &m.SenderID, &m.Content, &m.CreatedAt,
			&sender.ID, &sender.FullName, &sender.AvatarURL,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Sender = &sender
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// pgArray renders ids as a Postgres text array literal for ANY($1).
func pgArray(ids []string) string {
	out := "{"
	for i, id := range ids {
		if i > 0 {
			out += ","
		}
		out += id
	}
	return out + "}"
}

func observe(query string) func() {
	start := time.Now()
	return func() {
		metrics.StoreQueryDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
	}
}
