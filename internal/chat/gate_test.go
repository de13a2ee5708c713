package chat_test

import (
	"testing"

	"github.com/teamup-labs/chat-platform/internal/chat"
	"github.com/teamup-labs/chat-platform/internal/model"
)

func TestDeriveGate(t *testing.T) {
	cases := []struct {
		name      string
		status    model.ConversationStatus
		requester string
		user      string
		want      chat.GateState
	}{
		{"pending requester is locked", model.StatusPending, "a", "a", chat.GateLockedRequester},
		{"pending recipient sees request", model.StatusPending, "a", "b", chat.GateRequestPending},
		{"accepted is open", model.StatusAccepted, "a", "a", chat.GateOpen},
		{"accepted is open for recipient", model.StatusAccepted, "a", "b", chat.GateOpen},
		{"blocked for requester", model.StatusBlocked, "a", "a", chat.GateBlocked},
		{"blocked for recipient", model.StatusBlocked, "a", "b", chat.GateBlocked},
		{"unknown status fails open", model.ConversationStatus("archived"), "a", "b", chat.GateOpen},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := chat.DeriveGate(tc.status, tc.requester, tc.user)
			if got != tc.want {
				t.Fatalf("DeriveGate(%q, %q, %q) = %v, want %v", tc.status, tc.requester, tc.user, got, tc.want)
			}
		})
	}
}

func TestGateAffordances(t *testing.T) {
	if !chat.GateOpen.CanSend() {
		t.Fatalf("open gate must allow sending")
	}
	for _, g := range []chat.GateState{chat.GateLockedRequester, chat.GateRequestPending, chat.GateBlocked} {
		if g.CanSend() {
			t.Fatalf("%v must not allow sending", g)
		}
	}
	if !chat.GateRequestPending.CanRespond() {
		t.Fatalf("request pending must expose accept/decline")
	}
	for _, g := range []chat.GateState{chat.GateOpen, chat.GateLockedRequester, chat.GateBlocked} {
		if g.CanRespond() {
			t.Fatalf("%v must not expose accept/decline", g)
		}
	}
}
