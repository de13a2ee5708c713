// Package chat implements the client-side synchronization core: the
// conversation list and thread synchronizers that merge initial
// fetches with live change-feed events, and the gating state machine
// that decides which composer affordance is active.
package chat

import (
	"errors"

	"github.com/teamup-labs/chat-platform/internal/model"
)

// ErrorKind classifies failures at the synchronizer boundary. Every
// I/O error is converted to one of these kinds before it reaches a
// caller; nothing propagates uncaught. No kind triggers an automatic
// retry; retries are always caller-initiated.
type ErrorKind int

const (
	// ErrorLoad means an initial fetch failed; callers show an empty
	// state, never a partial one.
	ErrorLoad ErrorKind = iota
	// ErrorSend means a mutation failed; any optimistic entry has
	// been rolled back and the caller may resubmit.
	ErrorSend
	// ErrorNotFound means the referenced conversation or team does
	// not exist or is not accessible.
	ErrorNotFound
	// ErrorSubscription means the change feed failed to establish;
	// the synchronizer still works in fetch-only mode.
	ErrorSubscription
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorLoad:
		return "load"
	case ErrorSend:
		return "send"
	case ErrorNotFound:
		return "not_found"
	case ErrorSubscription:
		return "subscription"
	default:
		return "unknown"
	}
}

// Error is a classified synchronizer failure.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the error kind, if err came from a synchronizer.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsNotFound reports whether err is an ErrorNotFound synchronizer
// error.
func IsNotFound(err error) bool {
	k, ok := KindOf(err)
	return ok && k == ErrorNotFound
}

// classifyFetch maps a fetch failure to NotFound or Load.
func classifyFetch(op string, err error) *Error {
	if errors.Is(err, model.ErrNotFound) {
		return newError(ErrorNotFound, op, err)
	}
	return newError(ErrorLoad, op, err)
}
