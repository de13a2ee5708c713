package chat_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/teamup-labs/chat-platform/internal/chat"
	"github.com/teamup-labs/chat-platform/internal/model"
	"github.com/teamup-labs/chat-platform/pkg/logger"
)

func acceptedConversation(id string) model.Conversation {
	return model.Conversation{
		ID:             id,
		ParticipantOne: alice.ID,
		ParticipantTwo: bob.ID,
		Status:         model.StatusAccepted,
		RequesterID:    alice.ID,
	}
}

func openThread(t *testing.T, gw *fakeGateway, user model.User, conversationID string) *chat.Thread {
	t.Helper()
	th, err := chat.OpenConversation(context.Background(), gw, user, conversationID, logger.NewNop())
	if err != nil {
		t.Fatalf("OpenConversation: %v", err)
	}
	return th
}

func TestOpenConversationNotFound(t *testing.T) {
	gw := newFakeGateway()

	_, err := chat.OpenConversation(context.Background(), gw, alice, "missing", logger.NewNop())
	if err == nil {
		t.Fatalf("expected error for missing conversation")
	}
	if !chat.IsNotFound(err) {
		t.Fatalf("expected not-found classification, got %v", err)
	}
}

func TestOpenConversationLoadsHistoryAndProfile(t *testing.T) {
	gw := newFakeGateway()
	gw.users[bob.ID] = bob
	gw.conversations["c1"] = acceptedConversation("c1")
	gw.messages["c1"] = []model.Message{
		{ID: "m1", ConversationID: "c1", SenderID: bob.ID, Content: "morning"},
		{ID: "m2", ConversationID: "c1", SenderID: alice.ID, Content: "hey"},
	}

	th := openThread(t, gw, alice, "c1")

	if got := th.OtherParticipant(); got.ID != bob.ID {
		t.Fatalf("other participant = %s, want %s", got.ID, bob.ID)
	}
	msgs := th.Messages()
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Fatalf("history not preserved in order: %+v", msgs)
	}
	if th.Gate() != chat.GateOpen {
		t.Fatalf("accepted conversation must be open, got %s", th.Gate())
	}
}

func TestSendRejectsEmptyContent(t *testing.T) {
	gw := newFakeGateway()
	gw.users[bob.ID] = bob
	gw.conversations["c1"] = acceptedConversation("c1")

	th := openThread(t, gw, alice, "c1")

	for _, content := range []string{"", "   ", "\n\t"} {
		err := th.Send(context.Background(), content)
		if kind, ok := chat.KindOf(err); !ok || kind != chat.ErrorSend {
			t.Fatalf("Send(%q) = %v, want send error", content, err)
		}
	}
	if len(th.Messages()) != 0 {
		t.Fatalf("rejected sends must not append anything")
	}
	if len(gw.inserted) != 0 {
		t.Fatalf("rejected sends must not reach the gateway")
	}
}

func TestSendAppendsOptimisticallyThenSucceeds(t *testing.T) {
	gw := newFakeGateway()
	gw.users[bob.ID] = bob
	gw.conversations["c1"] = acceptedConversation("c1")

	th := openThread(t, gw, alice, "c1")

	if err := th.Send(context.Background(), "  on my way  "); err != nil {
		t.Fatalf("Send: %v", err)
	}

	msgs := th.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(msgs))
	}
	if msgs[0].Content != "on my way" {
		t.Fatalf("content not trimmed: %q", msgs[0].Content)
	}
	if !strings.HasPrefix(msgs[0].ID, model.TempIDPrefix) {
		t.Fatalf("optimistic entry must carry a temporary id, got %s", msgs[0].ID)
	}
	if msgs[0].SenderID != alice.ID {
		t.Fatalf("sender = %s, want %s", msgs[0].SenderID, alice.ID)
	}
	if len(gw.inserted) != 1 || gw.inserted[0].ConversationID != "c1" {
		t.Fatalf("insert not issued: %+v", gw.inserted)
	}
}

func TestSendRollsBackOnFailure(t *testing.T) {
	gw := newFakeGateway()
	gw.users[bob.ID] = bob
	gw.conversations["c1"] = acceptedConversation("c1")
	gw.messages["c1"] = []model.Message{
		{ID: "m1", ConversationID: "c1", SenderID: bob.ID, Content: "there?"},
	}

	th := openThread(t, gw, alice, "c1")
	before := th.Messages()

	gw.insertErr = errBackend
	err := th.Send(context.Background(), "yes")
	if kind, ok := chat.KindOf(err); !ok || kind != chat.ErrorSend {
		t.Fatalf("expected send error, got %v", err)
	}

	after := th.Messages()
	if len(after) != len(before) {
		t.Fatalf("rollback must restore the list, got %d messages", len(after))
	}
	for i := range after {
		if after[i].ID != before[i].ID {
			t.Fatalf("rollback changed message %d: %s != %s", i, after[i].ID, before[i].ID)
		}
	}

	// A follow-up send after the failure works; resubmitting is the
	// only retry.
	gw.insertErr = nil
	if err := th.Send(context.Background(), "yes"); err != nil {
		t.Fatalf("resubmit failed: %v", err)
	}
}

func TestSendRejectsWhileInFlight(t *testing.T) {
	gw := newFakeGateway()
	gw.users[bob.ID] = bob
	gw.conversations["c1"] = acceptedConversation("c1")

	th := openThread(t, gw, alice, "c1")

	started := make(chan struct{})
	release := make(chan struct{})
	gw.insertStarted = started
	gw.insertRelease = release

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- th.Send(context.Background(), "first")
	}()
	<-started

	err := th.Send(context.Background(), "second")
	if kind, ok := chat.KindOf(err); !ok || kind != chat.ErrorSend {
		t.Fatalf("expected in-flight rejection, got %v", err)
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	if len(th.Messages()) != 1 {
		t.Fatalf("expected exactly the first message, got %d", len(th.Messages()))
	}

	// Once the first send settles, sending works again.
	if err := th.Send(context.Background(), "second"); err != nil {
		t.Fatalf("send after settle failed: %v", err)
	}
}

func TestApplyMessageInsertDropsOwnEcho(t *testing.T) {
	gw := newFakeGateway()
	gw.users[bob.ID] = bob
	gw.conversations["c1"] = acceptedConversation("c1")

	th := openThread(t, gw, alice, "c1")
	if err := th.Send(context.Background(), "ping"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	// The feed echoes the insert back with the authoritative id.
	th.ApplyMessageInsert(context.Background(), model.Message{
		ID:             "server-id",
		ConversationID: "c1",
		SenderID:       alice.ID,
		Content:        "ping",
	})

	if len(th.Messages()) != 1 {
		t.Fatalf("own echo must not double the message, got %d", len(th.Messages()))
	}
}

func TestApplyMessageInsertIsIdempotent(t *testing.T) {
	gw := newFakeGateway()
	gw.users[bob.ID] = bob
	gw.conversations["c1"] = acceptedConversation("c1")

	th := openThread(t, gw, alice, "c1")

	m := model.Message{ID: "m1", ConversationID: "c1", SenderID: bob.ID, Content: "hello"}
	th.ApplyMessageInsert(context.Background(), m)
	th.ApplyMessageInsert(context.Background(), m)

	if len(th.Messages()) != 1 {
		t.Fatalf("duplicate delivery must be a no-op, got %d messages", len(th.Messages()))
	}
}

func TestApplyMessageInsertResolvesSenderOnce(t *testing.T) {
	gw := newFakeGateway()
	gw.users[bob.ID] = bob
	gw.users[carol.ID] = carol
	gw.conversations["c1"] = acceptedConversation("c1")

	th := openThread(t, gw, alice, "c1")
	calls := gw.userCalls

	th.ApplyMessageInsert(context.Background(), model.Message{
		ID: "m1", ConversationID: "c1", SenderID: carol.ID, Content: "joining late",
	})
	th.ApplyMessageInsert(context.Background(), model.Message{
		ID: "m2", ConversationID: "c1", SenderID: carol.ID, Content: "sorry",
	})

	if gw.userCalls != calls+1 {
		t.Fatalf("sender profile must be fetched once then cached, got %d fetches", gw.userCalls-calls)
	}
	msgs := th.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected both messages, got %d", len(msgs))
	}
	if msgs[0].Sender == nil || msgs[0].Sender.FullName != carol.FullName {
		t.Fatalf("sender profile not attached: %+v", msgs[0].Sender)
	}
}

func TestGateForPendingConversation(t *testing.T) {
	gw := newFakeGateway()
	gw.users[alice.ID] = alice
	gw.users[bob.ID] = bob
	conv := model.Conversation{
		ID:             "c1",
		ParticipantOne: alice.ID,
		ParticipantTwo: bob.ID,
		Status:         model.StatusPending,
		RequesterID:    alice.ID,
	}
	gw.conversations["c1"] = conv

	requester := openThread(t, gw, alice, "c1")
	if requester.Gate() != chat.GateLockedRequester {
		t.Fatalf("requester gate = %s, want locked", requester.Gate())
	}

	recipient := openThread(t, gw, bob, "c1")
	if recipient.Gate() != chat.GateRequestPending {
		t.Fatalf("recipient gate = %s, want request pending", recipient.Gate())
	}
}

func TestAcceptResolvesPendingRequest(t *testing.T) {
	gw := newFakeGateway()
	gw.users[alice.ID] = alice
	gw.users[bob.ID] = bob
	gw.conversations["c1"] = model.Conversation{
		ID:             "c1",
		ParticipantOne: alice.ID,
		ParticipantTwo: bob.ID,
		Status:         model.StatusPending,
		RequesterID:    alice.ID,
	}

	th := openThread(t, gw, bob, "c1")
	if err := th.Accept(context.Background()); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	if th.Gate() != chat.GateOpen {
		t.Fatalf("gate after accept = %s, want open", th.Gate())
	}
	if gw.statusUpdates["c1"] != model.StatusAccepted {
		t.Fatalf("status mutation not issued")
	}
}

func TestAcceptRejectedForRequester(t *testing.T) {
	gw := newFakeGateway()
	gw.users[alice.ID] = alice
	gw.users[bob.ID] = bob
	gw.conversations["c1"] = model.Conversation{
		ID:             "c1",
		ParticipantOne: alice.ID,
		ParticipantTwo: bob.ID,
		Status:         model.StatusPending,
		RequesterID:    alice.ID,
	}

	th := openThread(t, gw, alice, "c1")
	err := th.Accept(context.Background())
	if kind, ok := chat.KindOf(err); !ok || kind != chat.ErrorSend {
		t.Fatalf("requester must not resolve their own request, got %v", err)
	}
	if len(gw.statusUpdates) != 0 {
		t.Fatalf("no mutation may be issued for a rejected response")
	}
}

func TestAcceptFailureLeavesGateUnchanged(t *testing.T) {
	gw := newFakeGateway()
	gw.users[alice.ID] = alice
	gw.users[bob.ID] = bob
	gw.conversations["c1"] = model.Conversation{
		ID:             "c1",
		ParticipantOne: alice.ID,
		ParticipantTwo: bob.ID,
		Status:         model.StatusPending,
		RequesterID:    alice.ID,
	}

	th := openThread(t, gw, bob, "c1")
	gw.statusErr = errBackend

	err := th.Accept(context.Background())
	if kind, ok := chat.KindOf(err); !ok || kind != chat.ErrorSend {
		t.Fatalf("expected send error, got %v", err)
	}
	if th.Gate() != chat.GateRequestPending {
		t.Fatalf("failed accept must leave the gate pending, got %s", th.Gate())
	}
}

func TestDeclineBlocksTerminally(t *testing.T) {
	gw := newFakeGateway()
	gw.users[alice.ID] = alice
	gw.users[bob.ID] = bob
	gw.conversations["c1"] = model.Conversation{
		ID:             "c1",
		ParticipantOne: alice.ID,
		ParticipantTwo: bob.ID,
		Status:         model.StatusPending,
		RequesterID:    alice.ID,
	}

	th := openThread(t, gw, bob, "c1")
	if err := th.Decline(context.Background()); err != nil {
		t.Fatalf("Decline: %v", err)
	}
	if th.Gate() != chat.GateBlocked {
		t.Fatalf("gate after decline = %s, want blocked", th.Gate())
	}

	// Blocked is terminal: no further response is possible.
	err := th.Accept(context.Background())
	if kind, ok := chat.KindOf(err); !ok || kind != chat.ErrorSend {
		t.Fatalf("accept after decline must fail, got %v", err)
	}
}

func TestStatusUpdateReopensGate(t *testing.T) {
	gw := newFakeGateway()
	gw.users[alice.ID] = alice
	gw.users[bob.ID] = bob
	conv := model.Conversation{
		ID:             "c1",
		ParticipantOne: alice.ID,
		ParticipantTwo: bob.ID,
		Status:         model.StatusPending,
		RequesterID:    alice.ID,
	}
	gw.conversations["c1"] = conv

	th := openThread(t, gw, alice, "c1")
	if th.Gate() != chat.GateLockedRequester {
		t.Fatalf("precondition: requester starts locked")
	}

	conv.Status = model.StatusAccepted
	th.ApplyStatusUpdate(conv)

	if th.Gate() != chat.GateOpen {
		t.Fatalf("accepted status must open the requester's composer, got %s", th.Gate())
	}
}

func TestStatusUpdateForOtherConversationIgnored(t *testing.T) {
	gw := newFakeGateway()
	gw.users[bob.ID] = bob
	gw.conversations["c1"] = acceptedConversation("c1")

	th := openThread(t, gw, alice, "c1")
	before := th.Version()

	th.ApplyStatusUpdate(model.Conversation{
		ID:             "c9",
		ParticipantOne: alice.ID,
		ParticipantTwo: bob.ID,
		Status:         model.StatusBlocked,
		RequesterID:    bob.ID,
	})

	if th.Version() != before {
		t.Fatalf("foreign status update must not mutate the thread")
	}
	if th.Gate() != chat.GateOpen {
		t.Fatalf("gate changed by foreign update")
	}
}

func TestTeamThreadAlwaysOpen(t *testing.T) {
	gw := newFakeGateway()
	gw.teams["t1"] = model.TeamChannel{ID: "t1", Name: "platform"}
	gw.teamMessages["t1"] = []model.Message{
		{ID: "m1", TeamID: "t1", SenderID: bob.ID, Content: "standup in 5", Sender: &bob},
	}

	th, err := chat.OpenTeam(context.Background(), gw, alice, "t1", logger.NewNop())
	if err != nil {
		t.Fatalf("OpenTeam: %v", err)
	}

	if th.Gate() != chat.GateOpen {
		t.Fatalf("team thread gate = %s, want open", th.Gate())
	}
	if _, ok := th.Conversation(); ok {
		t.Fatalf("team thread must not report a conversation")
	}
	team, ok := th.Team()
	if !ok || team.Name != "platform" {
		t.Fatalf("team not loaded: %+v", team)
	}

	if err := th.Send(context.Background(), "omw"); err != nil {
		t.Fatalf("team send: %v", err)
	}
	if len(gw.inserted) != 1 || gw.inserted[0].TeamID != "t1" {
		t.Fatalf("team insert not issued: %+v", gw.inserted)
	}

	err = th.Accept(context.Background())
	if kind, ok := chat.KindOf(err); !ok || kind != chat.ErrorSend {
		t.Fatalf("team threads have nothing to accept, got %v", err)
	}
}

func TestThreadStartScopesSubscriptions(t *testing.T) {
	gw := newFakeGateway()
	gw.users[bob.ID] = bob
	gw.conversations["c1"] = acceptedConversation("c1")

	th := openThread(t, gw, alice, "c1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := th.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if len(gw.subs) != 2 {
		t.Fatalf("expected message and conversation subscriptions, got %d", len(gw.subs))
	}
	if gw.subs[0].table != model.TableMessages || gw.subs[0].filter != "c1" {
		t.Fatalf("message subscription not scoped: %+v", gw.subs[0])
	}
	if gw.subs[1].table != model.TableConversations || gw.subs[1].filter != "c1" {
		t.Fatalf("conversation subscription not scoped: %+v", gw.subs[1])
	}

	th.Close()
	for _, sub := range gw.subs {
		if !sub.unsubscribed {
			t.Fatalf("subscription %s not released on Close", sub.table)
		}
	}
}

func TestThreadEventLoopAppliesInserts(t *testing.T) {
	gw := newFakeGateway()
	gw.users[bob.ID] = bob
	gw.conversations["c1"] = acceptedConversation("c1")

	th := openThread(t, gw, alice, "c1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := th.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer th.Close()

	ev, err := model.NewChangeEvent(model.ChangeInsert, model.TableMessages, model.Message{
		ID:             "m1",
		ConversationID: "c1",
		SenderID:       bob.ID,
		Content:        "here",
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("NewChangeEvent: %v", err)
	}
	gw.subs[0].fn(ev)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("feed event never applied")
		case <-th.Updates():
		}
		if msgs := th.Messages(); len(msgs) == 1 && msgs[0].ID == "m1" {
			return
		}
	}
}
