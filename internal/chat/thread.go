package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teamup-labs/chat-platform/internal/model"
	"github.com/teamup-labs/chat-platform/pkg/logger"
	"github.com/teamup-labs/chat-platform/pkg/metrics"
)

// Thread owns the ordered message list for one open conversation or
// team channel: initial history merged with live inserts, optimistic
// local entries for in-flight sends, and (for direct conversations)
// the gate derived from the conversation status.
//
// Mutations are serialized through a single event queue consumed by
// Run; an in-flight send never blocks event application.
type Thread struct {
	gw   Gateway
	user model.User
	log  *logger.Logger

	mu           sync.RWMutex
	conversation *model.Conversation
	team         *model.TeamChannel
	other        model.User
	messages     []model.Message
	profiles     map[string]model.User
	version      uint64
	sending      bool

	events    chan model.ChangeEvent
	updates   chan struct{}
	quit      chan struct{}
	closeOnce sync.Once
	subs      []Subscription
}

// OpenConversation fetches a direct conversation, its full ascending
// history and the other participant's profile. A missing or
// inaccessible conversation yields ErrorNotFound.
func OpenConversation(ctx context.Context, gw Gateway, user model.User, conversationID string, log *logger.Logger) (*Thread, error) {
	conv, err := gw.Conversation(ctx, conversationID)
	if err != nil {
		return nil, classifyFetch("fetch conversation", err)
	}

	messages, err := gw.Messages(ctx, conversationID)
	if err != nil {
		return nil, classifyFetch("fetch message history", err)
	}

	other, err := gw.User(ctx, conv.OtherParticipant(user.ID))
	if err != nil {
		return nil, classifyFetch("fetch participant profile", err)
	}

	t := newThread(gw, user, log.WithConversation(conversationID))
	t.conversation = &conv
	t.other = other
	t.messages = messages
	t.profiles[other.ID] = other
	t.cacheSenders(messages)
	return t, nil
}

// OpenTeam fetches a team channel and its full ascending history.
// Team threads have no gate: the composer is always open to members.
func OpenTeam(ctx context.Context, gw Gateway, user model.User, teamID string, log *logger.Logger) (*Thread, error) {
	team, err := gw.Team(ctx, teamID)
	if err != nil {
		return nil, classifyFetch("fetch team", err)
	}

	messages, err := gw.TeamMessages(ctx, teamID)
	if err != nil {
		return nil, classifyFetch("fetch team history", err)
	}

	t := newThread(gw, user, log.With(zap.String("team_id", teamID)))
	t.team = &team
	t.messages = messages
	t.cacheSenders(messages)
	return t, nil
}

func newThread(gw Gateway, user model.User, log *logger.Logger) *Thread {
	return &Thread{
		gw:       gw,
		user:     user,
		log:      log.WithUser(user.ID),
		profiles: map[string]model.User{user.ID: user},
		events:   make(chan model.ChangeEvent, 64),
		updates:  make(chan struct{}, 1),
		quit:     make(chan struct{}),
	}
}

// Start subscribes to the thread's change-feed channels and starts the
// event loop. Direct conversations watch message inserts scoped to the
// conversation plus status updates for the conversation row; team
// threads watch team message inserts only. On failure the thread keeps
// working in fetch-only mode.
func (t *Thread) Start(ctx context.Context) error {
	var subs []Subscription

	if t.team != nil {
		sub, err := t.gw.Subscribe(model.TableTeamMessages, t.team.ID, t.enqueue)
		if err != nil {
			return newError(ErrorSubscription, "subscribe team messages", err)
		}
		subs = append(subs, sub)
	} else {
		msgSub, err := t.gw.Subscribe(model.TableMessages, t.conversation.ID, t.enqueue)
		if err != nil {
			return newError(ErrorSubscription, "subscribe messages", err)
		}
		convSub, err := t.gw.Subscribe(model.TableConversations, t.conversation.ID, t.enqueue)
		if err != nil {
			msgSub.Unsubscribe()
			return newError(ErrorSubscription, "subscribe conversation", err)
		}
		subs = append(subs, msgSub, convSub)
	}

	t.subs = subs
	go t.run(ctx)
	return nil
}

// Close tears down the subscriptions and stops the event loop. Events
// arriving after Close are not applied: switching away from a thread
// stops it, it does not merely stop rendering.
func (t *Thread) Close() {
	t.closeOnce.Do(func() {
		for _, s := range t.subs {
			if err := s.Unsubscribe(); err != nil {
				t.log.Warn("unsubscribe failed", zap.Error(err))
			}
		}
		close(t.quit)
	})
}

// Messages returns a snapshot of the ordered message list.
func (t *Thread) Messages() []model.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]model.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Conversation returns the conversation, or false for team threads.
func (t *Thread) Conversation() (model.Conversation, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.conversation == nil {
		return model.Conversation{}, false
	}
	return *t.conversation, true
}

// Team returns the team channel, or false for direct threads.
func (t *Thread) Team() (model.TeamChannel, bool) {
	if t.team == nil {
		return model.TeamChannel{}, false
	}
	return *t.team, true
}

// OtherParticipant returns the other side of a direct conversation.
func (t *Thread) OtherParticipant() model.User {
	return t.other
}

// Gate returns the current composer affordance. Team threads are
// always open.
func (t *Thread) Gate() GateState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.gateLocked()
}

func (t *Thread) gateLocked() GateState {
	if t.conversation == nil {
		return GateOpen
	}
	return DeriveGate(t.conversation.Status, t.conversation.RequesterID, t.user.ID)
}

// Version returns the mutation counter. It increments exactly once per
// state change.
func (t *Thread) Version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

// Updates signals state changes; the view layer uses it to scroll to
// the newest entry. The channel coalesces: consumers drain it and read
// Version to observe the mutation count.
func (t *Thread) Updates() <-chan struct{} {
	return t.updates
}

// Send appends an optimistic entry and issues the insert mutation.
// Empty or whitespace-only content is rejected, as is a send while a
// previous one is in flight: one outstanding send, no client-side
// queueing. On mutation failure the optimistic entry is removed by its
// temporary id, leaving the list exactly as it was, and an ErrorSend
// is returned for the caller to surface; resubmitting is the only
// retry.
func (t *Thread) Send(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return newError(ErrorSend, "empty message", nil)
	}

	t.mu.Lock()
	if t.sending {
		t.mu.Unlock()
		return newError(ErrorSend, "send already in flight", nil)
	}
	sender := t.user
	optimistic := model.Message{
		ID:        model.TempIDPrefix + uuid.NewString(),
		SenderID:  t.user.ID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
		Sender:    &sender,
	}
	if t.team != nil {
		optimistic.TeamID = t.team.ID
	} else {
		optimistic.ConversationID = t.conversation.ID
	}
	t.sending = true
	t.messages = append(t.messages, optimistic)
	t.bump()
	t.mu.Unlock()

	var err error
	if optimistic.TeamID != "" {
		err = t.gw.InsertTeamMessage(ctx, optimistic)
	} else {
		err = t.gw.InsertMessage(ctx, optimistic)
	}

	t.mu.Lock()
	t.sending = false
	if err != nil {
		t.removeLocked(optimistic.ID)
		t.bump()
		t.mu.Unlock()
		metrics.RecordSend("failure")
		return newError(ErrorSend, "send message", err)
	}
	t.mu.Unlock()

	metrics.RecordSend("success")
	return nil
}

// Accept resolves a pending request the signed-in user received. Valid
// only while the gate shows RequestPending; on success the gate opens
// for both participants, on failure the state is unchanged.
func (t *Thread) Accept(ctx context.Context) error {
	return t.respond(ctx, model.StatusAccepted)
}

// Decline blocks a pending request the signed-in user received. Valid
// only while the gate shows RequestPending; on success the gate is
// terminally blocked.
func (t *Thread) Decline(ctx context.Context) error {
	return t.respond(ctx, model.StatusBlocked)
}

func (t *Thread) respond(ctx context.Context, status model.ConversationStatus) error {
	t.mu.RLock()
	gate := t.gateLocked()
	var conversationID string
	if t.conversation != nil {
		conversationID = t.conversation.ID
	}
	t.mu.RUnlock()

	if !gate.CanRespond() {
		return newError(ErrorSend, "no pending request to respond to", nil)
	}

	if err := t.gw.UpdateConversationStatus(ctx, conversationID, status); err != nil {
		return newError(ErrorSend, "update conversation status", err)
	}

	t.mu.Lock()
	t.conversation.Status = status
	t.bump()
	t.mu.Unlock()
	return nil
}

func (t *Thread) enqueue(ev model.ChangeEvent) {
	select {
	case <-t.quit:
		return
	default:
	}
	select {
	case <-t.quit:
	case t.events <- ev:
	}
}

func (t *Thread) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.quit:
			return
		case ev := <-t.events:
			t.apply(ctx, ev)
		}
	}
}

func (t *Thread) apply(ctx context.Context, ev model.ChangeEvent) {
	metrics.FeedEventsApplied.WithLabelValues(ev.Table, string(ev.Type)).Inc()

	switch {
	case (ev.Table == model.TableMessages || ev.Table == model.TableTeamMessages) && ev.Type == model.ChangeInsert:
		m, err := ev.Message()
		if err != nil {
			t.log.Warn("dropping message event", zap.Error(err))
			return
		}
		t.ApplyMessageInsert(ctx, m)
	case ev.Table == model.TableConversations && ev.Type == model.ChangeUpdate:
		c, err := ev.Conversation()
		if err != nil {
			t.log.Warn("dropping conversation event", zap.Error(err))
			return
		}
		t.ApplyStatusUpdate(c)
	}
}

// ApplyMessageInsert appends an authoritative message to the tail.
// Events from the signed-in user are dropped: the send path already
// placed an optimistic copy, so applying the echo would render the
// message twice. Duplicate delivery of the same id is a no-op.
func (t *Thread) ApplyMessageInsert(ctx context.Context, m model.Message) {
	if m.SenderID == t.user.ID {
		return
	}

	t.mu.RLock()
	duplicate := t.indexLocked(m.ID) >= 0
	sender, cached := t.profiles[m.SenderID]
	t.mu.RUnlock()
	if duplicate {
		return
	}

	if !cached {
		fetched, err := t.gw.User(ctx, m.SenderID)
		if err != nil {
			t.log.Warn("sender profile unavailable", zap.String("sender_id", m.SenderID), zap.Error(err))
		} else {
			sender = fetched
			cached = true
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.indexLocked(m.ID) >= 0 {
		return
	}
	if cached {
		t.profiles[m.SenderID] = sender
		s := sender
		m.Sender = &s
	}
	t.messages = append(t.messages, m)
	t.bump()
}

// ApplyStatusUpdate re-derives the gate from an authoritative status.
func (t *Thread) ApplyStatusUpdate(c model.Conversation) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conversation == nil || t.conversation.ID != c.ID {
		return
	}
	t.conversation.Status = c.Status
	t.bump()
}

func (t *Thread) indexLocked(messageID string) int {
	for i, m := range t.messages {
		if m.ID == messageID {
			return i
		}
	}
	return -1
}

func (t *Thread) removeLocked(messageID string) {
	if idx := t.indexLocked(messageID); idx >= 0 {
		t.messages = append(t.messages[:idx], t.messages[idx+1:]...)
	}
}

// bump increments the version and signals the updates channel. Callers
// hold the write lock.
func (t *Thread) bump() {
	t.version++
	select {
	case t.updates <- struct{}{}:
	default:
	}
}

func (t *Thread) cacheSenders(messages []model.Message) {
	for _, m := range messages {
		if m.Sender != nil {
			t.profiles[m.Sender.ID] = *m.Sender
		}
	}
}
