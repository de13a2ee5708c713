package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/teamup-labs/chat-platform/internal/model"
	"github.com/teamup-labs/chat-platform/pkg/metrics"
)

// SubjectPrefix is the prefix for all change-feed subjects.
const SubjectPrefix = "chg"

// Subject returns the publish subject for a row change. Scope is the
// value change-feed consumers filter on: the conversation id for
// messages, the team id for team messages, and the row id for
// conversations.
func Subject(table, scope string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, table, scope)
}

// SubscribeSubject returns the subscription subject for a table and
// optional filter. An empty filter matches every row of the table.
func SubscribeSubject(table, filter string) string {
	if filter == "" {
		return fmt.Sprintf("%s.%s.>", SubjectPrefix, table)
	}
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, table, filter)
}

// Publisher publishes row-change events. Delivery is at-most-once:
// the feed is a change notification, not a message store, and clients
// own their reconciliation against fetched state.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher over an established connection.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Publish emits a change event under the given scope.
func (p *Publisher) Publish(ctx context.Context, ev model.ChangeEvent, scope string) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	if err := p.client.conn.Publish(Subject(ev.Table, scope), data); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}

	metrics.FeedEventsPublished.WithLabelValues(ev.Table, string(ev.Type)).Inc()
	return nil
}

// Subscriber consumes row-change events.
type Subscriber struct {
	client *Client
}

// NewSubscriber creates a subscriber over an established connection.
func NewSubscriber(client *Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscription is a live change-feed subscription. It must be
// unsubscribed when the consuming surface goes away.
type Subscription struct {
	sub *nats.Subscription
}

// Unsubscribe tears the subscription down.
func (s *Subscription) Unsubscribe() error {
	metrics.DecrementSubscriptions()
	return s.sub.Unsubscribe()
}

// Subscribe delivers change events for a table, optionally filtered by
// scope, to fn. Events that fail to decode are dropped with a log line
// rather than stopping the feed.
func (s *Subscriber) Subscribe(table, filter string, fn func(model.ChangeEvent)) (*Subscription, error) {
	sub, err := s.client.conn.Subscribe(SubscribeSubject(table, filter), func(msg *nats.Msg) {
		var ev model.ChangeEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			s.client.logger.Warn("dropping malformed change event",
				zap.String("subject", msg.Subject),
				zap.Error(err),
			)
			return
		}
		fn(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", table, err)
	}

	metrics.IncrementSubscriptions()
	return &Subscription{sub: sub}, nil
}
