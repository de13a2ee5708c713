package chat

import (
	"github.com/teamup-labs/chat-platform/internal/model"
)

// GateState is the affordance a conversation surface should show,
// derived from the conversation status and the requester identity.
// Transitions are driven exclusively by authoritative status values;
// the client never invents one except through Accept/Decline.
type GateState int

const (
	// GateOpen enables the composer. Accepted conversations and any
	// status the client does not recognize land here: unknown states
	// fail toward functionality, not lockout.
	GateOpen GateState = iota
	// GateLockedRequester is shown to the requester while the request
	// is pending: composer disabled with an explanatory note.
	GateLockedRequester
	// GateRequestPending is shown to the recipient of a pending
	// request: accept/decline instead of a composer.
	GateRequestPending
	// GateBlocked is the terminal disabled state. No transition leads
	// out of it.
	GateBlocked
)

func (g GateState) String() string {
	switch g {
	case GateOpen:
		return "open"
	case GateLockedRequester:
		return "locked_requester"
	case GateRequestPending:
		return "request_pending"
	case GateBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// CanSend reports whether the composer is enabled.
func (g GateState) CanSend() bool {
	return g == GateOpen
}

// CanRespond reports whether the accept/decline affordance is active.
func (g GateState) CanRespond() bool {
	return g == GateRequestPending
}

// DeriveGate computes the gate state for currentUserID.
func DeriveGate(status model.ConversationStatus, requesterID, currentUserID string) GateState {
	switch status {
	case model.StatusPending:
		if requesterID == currentUserID {
			return GateLockedRequester
		}
		return GateRequestPending
	case model.StatusBlocked:
		return GateBlocked
	default:
		return GateOpen
	}
}
