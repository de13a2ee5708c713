package chat

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/teamup-labs/chat-platform/internal/model"
	"github.com/teamup-labs/chat-platform/pkg/logger"
	"github.com/teamup-labs/chat-platform/pkg/metrics"
)

// ConversationList owns the in-memory, most-recent-activity-first list
// of conversation summaries for the signed-in user. It merges one
// initial fetch with live change-feed events; all client-held state is
// a cache of what the gateway holds.
//
// All mutations are serialized through a single event queue consumed
// by Run; feed callbacks only enqueue. Snapshot accessors copy under a
// read lock.
type ConversationList struct {
	gw   Gateway
	user model.User
	log  *logger.Logger

	mu        sync.RWMutex
	summaries []model.ConversationSummary
	profiles  map[string]model.User
	version   uint64

	events    chan model.ChangeEvent
	updates   chan struct{}
	quit      chan struct{}
	closeOnce sync.Once
	subs      []Subscription
}

// NewConversationList creates a list synchronizer for the given user.
func NewConversationList(gw Gateway, user model.User, log *logger.Logger) *ConversationList {
	return &ConversationList{
		gw:       gw,
		user:     user,
		log:      log.WithUser(user.ID),
		profiles: map[string]model.User{user.ID: user},
		events:   make(chan model.ChangeEvent, 64),
		updates:  make(chan struct{}, 1),
		quit:     make(chan struct{}),
	}
}

// Load performs the initial fetch: one summary-listing query, then one
// batch profile lookup, joined client-side. On failure the list is
// left empty; callers render an empty state, never a partial one.
func (l *ConversationList) Load(ctx context.Context) error {
	rows, err := l.gw.ConversationRows(ctx)
	if err != nil {
		l.replace(nil)
		return newError(ErrorLoad, "list conversations", err)
	}

	ids := make([]string, 0, len(rows))
	seen := make(map[string]bool)
	for _, r := range rows {
		if !rowHasParticipant(r, l.user.ID) || r.ParticipantOne == r.ParticipantTwo {
			continue
		}
		other := otherOf(r, l.user.ID)
		if seen[other] {
			continue
		}
		seen[other] = true
		ids = append(ids, other)
	}

	var profiles []model.User
	if len(ids) > 0 {
		profiles, err = l.gw.Users(ctx, ids)
		if err != nil {
			l.replace(nil)
			return newError(ErrorLoad, "load participant profiles", err)
		}
	}

	byID := make(map[string]model.User, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = p
	}

	summaries := make([]model.ConversationSummary, 0, len(rows))
	for _, r := range rows {
		if !rowHasParticipant(r, l.user.ID) || r.ParticipantOne == r.ParticipantTwo {
			continue
		}
		other, ok := byID[otherOf(r, l.user.ID)]
		if !ok {
			// Row references a profile the batch lookup did not
			// return; drop it rather than show a broken entry.
			continue
		}
		s := model.ConversationSummary{
			ConversationID:   r.ID,
			OtherParticipant: other,
			Status:           r.Status,
			RequesterID:      r.RequesterID,
		}
		if r.LastMessageContent != nil && r.LastMessageCreatedAt != nil {
			s.LastMessage = &model.LastMessage{
				Content:   *r.LastMessageContent,
				CreatedAt: *r.LastMessageCreatedAt,
			}
		}
		summaries = append(summaries, s)
	}

	l.mu.Lock()
	l.summaries = summaries
	for id, p := range byID {
		l.profiles[id] = p
	}
	l.bump()
	l.mu.Unlock()
	return nil
}

// Start subscribes to the two change-feed channels (message inserts
// and conversation inserts/updates) and starts the event loop. On
// subscription failure the list keeps working in fetch-only mode and
// the returned error carries ErrorSubscription.
func (l *ConversationList) Start(ctx context.Context) error {
	msgSub, err := l.gw.Subscribe(model.TableMessages, "", l.enqueue)
	if err != nil {
		return newError(ErrorSubscription, "subscribe messages", err)
	}
	convSub, err := l.gw.Subscribe(model.TableConversations, "", l.enqueue)
	if err != nil {
		msgSub.Unsubscribe()
		return newError(ErrorSubscription, "subscribe conversations", err)
	}

	l.subs = []Subscription{msgSub, convSub}
	go l.run(ctx)
	return nil
}

// Close tears down the subscriptions and stops the event loop. Events
// arriving after Close are not applied.
func (l *ConversationList) Close() {
	l.closeOnce.Do(func() {
		for _, s := range l.subs {
			if err := s.Unsubscribe(); err != nil {
				l.log.Warn("unsubscribe failed", zap.Error(err))
			}
		}
		close(l.quit)
	})
}

// Summaries returns a snapshot of the ordered list.
func (l *ConversationList) Summaries() []model.ConversationSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]model.ConversationSummary, len(l.summaries))
	copy(out, l.summaries)
	for i := range out {
		if out[i].LastMessage != nil {
			lm := *out[i].LastMessage
			out[i].LastMessage = &lm
		}
	}
	return out
}

// Version returns the mutation counter. It increments exactly once per
// state change.
func (l *ConversationList) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// Updates signals state changes. The channel coalesces: consumers
// drain it and read Version to observe the mutation count.
func (l *ConversationList) Updates() <-chan struct{} {
	return l.updates
}

func (l *ConversationList) enqueue(ev model.ChangeEvent) {
	select {
	case <-l.quit:
		return
	default:
	}
	select {
	case <-l.quit:
	case l.events <- ev:
	}
}

func (l *ConversationList) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.quit:
			return
		case ev := <-l.events:
			l.apply(ctx, ev)
		}
	}
}

func (l *ConversationList) apply(ctx context.Context, ev model.ChangeEvent) {
	metrics.FeedEventsApplied.WithLabelValues(ev.Table, string(ev.Type)).Inc()

	switch {
	case ev.Table == model.TableMessages && ev.Type == model.ChangeInsert:
		m, err := ev.Message()
		if err != nil {
			l.log.Warn("dropping message event", zap.Error(err))
			return
		}
		l.ApplyMessageInsert(m)
	case ev.Table == model.TableConversations && ev.Type == model.ChangeInsert:
		c, err := ev.Conversation()
		if err != nil {
			l.log.Warn("dropping conversation event", zap.Error(err))
			return
		}
		l.ApplyConversationInsert(ctx, c)
	case ev.Table == model.TableConversations && ev.Type == model.ChangeUpdate:
		c, err := ev.Conversation()
		if err != nil {
			l.log.Warn("dropping conversation event", zap.Error(err))
			return
		}
		l.ApplyConversationUpdate(c)
	}
}

// ApplyMessageInsert updates the matching summary's last message and
// moves it to the front. Messages for conversations not in view are a
// no-op.
func (l *ConversationList) ApplyMessageInsert(m model.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.indexOf(m.ConversationID)
	if idx < 0 {
		return
	}

	s := l.summaries[idx]
	s.LastMessage = &model.LastMessage{Content: m.Content, CreatedAt: m.CreatedAt}
	copy(l.summaries[1:idx+1], l.summaries[:idx])
	l.summaries[0] = s
	l.bump()
}

// ApplyConversationInsert prepends a summary for a newly created
// conversation. Events for conversations the signed-in user does not
// participate in are ignored out of hand. Duplicate inserts upsert by
// conversation id instead of producing a second entry.
func (l *ConversationList) ApplyConversationInsert(ctx context.Context, c model.Conversation) {
	if !c.HasParticipant(l.user.ID) || c.ParticipantOne == c.ParticipantTwo {
		return
	}

	otherID := c.OtherParticipant(l.user.ID)

	l.mu.Lock()
	if idx := l.indexOf(c.ID); idx >= 0 {
		l.summaries[idx].Status = c.Status
		l.summaries[idx].RequesterID = c.RequesterID
		l.bump()
		l.mu.Unlock()
		return
	}
	other, cached := l.profiles[otherID]
	l.mu.Unlock()

	if !cached {
		fetched, err := l.gw.User(ctx, otherID)
		if err != nil {
			l.log.Warn("dropping conversation insert, profile unavailable",
				zap.String("conversation_id", c.ID),
				zap.Error(err),
			)
			return
		}
		other = fetched
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Re-check: a duplicate may have landed while the profile fetch
	// was in flight.
	if idx := l.indexOf(c.ID); idx >= 0 {
		l.summaries[idx].Status = c.Status
		l.summaries[idx].RequesterID = c.RequesterID
		l.bump()
		return
	}

	l.profiles[otherID] = other
	s := model.ConversationSummary{
		ConversationID:   c.ID,
		OtherParticipant: other,
		Status:           c.Status,
		RequesterID:      c.RequesterID,
	}
	l.summaries = append([]model.ConversationSummary{s}, l.summaries...)
	l.bump()
}

// ApplyConversationUpdate patches the status of the matching summary
// in place. Position and last message are untouched.
func (l *ConversationList) ApplyConversationUpdate(c model.Conversation) {
	if !c.HasParticipant(l.user.ID) {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.indexOf(c.ID)
	if idx < 0 {
		return
	}
	l.summaries[idx].Status = c.Status
	l.bump()
}

func (l *ConversationList) indexOf(conversationID string) int {
	for i, s := range l.summaries {
		if s.ConversationID == conversationID {
			return i
		}
	}
	return -1
}

func (l *ConversationList) replace(summaries []model.ConversationSummary) {
	l.mu.Lock()
	l.summaries = summaries
	l.bump()
	l.mu.Unlock()
}

// bump increments the version and signals the updates channel. Callers
// hold the write lock.
func (l *ConversationList) bump() {
	l.version++
	select {
	case l.updates <- struct{}{}:
	default:
	}
}

func otherOf(r model.ConversationRow, userID string) string {
	if r.ParticipantOne == userID {
		return r.ParticipantTwo
	}
	return r.ParticipantOne
}

func rowHasParticipant(r model.ConversationRow, userID string) bool {
	return r.ParticipantOne == userID || r.ParticipantTwo == userID
}
