// Package gateway implements the remote data gateway consumed by the
// synchronizers: a JSON HTTP client for queries and mutations plus a
// NATS subscriber for the change feed.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teamup-labs/chat-platform/internal/chat"
	"github.com/teamup-labs/chat-platform/internal/feed"
	"github.com/teamup-labs/chat-platform/internal/model"
	"github.com/teamup-labs/chat-platform/pkg/logger"
)

// Client talks to the chat platform API on behalf of one signed-in
// user. It satisfies chat.Gateway.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	subscriber *feed.Subscriber
	logger     *logger.Logger
}

// New creates a gateway client. feedClient may be nil, in which case
// Subscribe fails and the synchronizers degrade to fetch-only mode.
func New(baseURL, token string, feedClient *feed.Client, log *logger.Logger) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: log,
	}
	if feedClient != nil {
		c.subscriber = feed.NewSubscriber(feedClient)
	}
	return c
}

// Me fetches the signed-in user's own profile.
func (c *Client) Me(ctx context.Context) (model.User, error) {
	var u model.User
	err := c.do(ctx, http.MethodGet, "/api/v1/me", nil, &u)
	return u, err
}

func (c *Client) User(ctx context.Context, id string) (model.User, error) {
	var u model.User
	err := c.do(ctx, http.MethodGet, "/api/v1/users/"+url.PathEscape(id), nil, &u)
	return u, err
}

func (c *Client) Users(ctx context.Context, ids []string) ([]model.User, error) {
	var users []model.User
	path := "/api/v1/users?ids=" + url.QueryEscape(strings.Join(ids, ","))
	err := c.do(ctx, http.MethodGet, path, nil, &users)
	return users, err
}

func (c *Client) Conversation(ctx context.Context, id string) (model.Conversation, error) {
	var conv model.Conversation
	err := c.do(ctx, http.MethodGet, "/api/v1/conversations/"+url.PathEscape(id), nil, &conv)
	return conv, err
}

func (c *Client) ConversationRows(ctx context.Context) ([]model.ConversationRow, error) {
	var rows []model.ConversationRow
	err := c.do(ctx, http.MethodGet, "/api/v1/conversations", nil, &rows)
	return rows, err
}

// CreateConversation opens a pending conversation with another user;
// the caller becomes the requester.
func (c *Client) CreateConversation(ctx context.Context, participantID string) (model.Conversation, error) {
	var conv model.Conversation
	req := model.CreateConversationRequest{ParticipantID: participantID}
	err := c.do(ctx, http.MethodPost, "/api/v1/conversations", req, &conv)
	return conv, err
}

func (c *Client) UpdateConversationStatus(ctx context.Context, id string, status model.ConversationStatus) error {
	req := model.UpdateConversationStatusRequest{Status: status}
	path := "/api/v1/conversations/" + url.PathEscape(id) + "/status"
	return c.do(ctx, http.MethodPatch, path, req, nil)
}

func (c *Client) Messages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var messages []model.Message
	path := "/api/v1/conversations/" + url.PathEscape(conversationID) + "/messages"
	err := c.do(ctx, http.MethodGet, path, nil, &messages)
	return messages, err
}

func (c *Client) InsertMessage(ctx context.Context, m model.Message) error {
	req := model.SendMessageRequest{Content: m.Content}
	path := "/api/v1/conversations/" + url.PathEscape(m.ConversationID) + "/messages"
	return c.do(ctx, http.MethodPost, path, req, nil)
}

func (c *Client) Team(ctx context.Context, id string) (model.TeamChannel, error) {
	var team model.TeamChannel
	err := c.do(ctx, http.MethodGet, "/api/v1/teams/"+url.PathEscape(id), nil, &team)
	return team, err
}

func (c *Client) TeamMessages(ctx context.Context, teamID string) ([]model.Message, error) {
	var messages []model.Message
	path := "/api/v1/teams/" + url.PathEscape(teamID) + "/messages"
	err := c.do(ctx, http.MethodGet, path, nil, &messages)
	return messages, err
}

func (c *Client) InsertTeamMessage(ctx context.Context, m model.Message) error {
	req := model.SendMessageRequest{Content: m.Content}
	path := "/api/v1/teams/" + url.PathEscape(m.TeamID) + "/messages"
	return c.do(ctx, http.MethodPost, path, req, nil)
}

// Subscribe opens a change-feed subscription. Without a feed
// connection the call fails and callers fall back to fetch-only
// behavior.
func (c *Client) Subscribe(table, filter string, fn func(model.ChangeEvent)) (chat.Subscription, error) {
	if c.subscriber == nil {
		return nil, fmt.Errorf("change feed not connected")
	}
	return c.subscriber.Subscribe(table, filter, fn)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, path, model.ErrNotFound)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: %s", method, path, apiError(resp.Body, resp.StatusCode))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func apiError(body io.Reader, status int) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return http.StatusText(status)
}
