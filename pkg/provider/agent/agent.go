// Package agent defines the bridge between finalized user utterances and the
// conversational backend that answers them.
//
// The voice pipeline treats the agent as an opaque collaborator: it delivers
// exactly one transcript per finalized non-empty utterance and receives one
// reply text to speak. Session memory, tool execution, and conversation
// policy all live behind this interface.
//
// Implementations must be safe for concurrent use and must honour context
// cancellation; callers bound each delivery with a per-turn timeout.
package agent

import (
	"context"
	"fmt"
)

// Agent receives finalized utterances and produces spoken replies.
type Agent interface {
	// Deliver sends one finalized transcript on behalf of senderID and
	// returns the reply text to synthesize. An empty reply with nil error
	// means the agent chose not to respond.
	Deliver(ctx context.Context, senderID, text string) (string, error)
}

// Decision is the outcome of a permission check.
type Decision int

const (
	// DecisionDeny blocks the action.
	DecisionDeny Decision = iota
	// DecisionAllow permits the action.
	DecisionAllow
	// DecisionNeedConfirmation defers the action until the user confirms
	// it out loud.
	DecisionNeedConfirmation
)

// String returns a human-readable decision name.
func (d Decision) String() string {
	switch d {
	case DecisionAllow:
		return "ALLOW"
	case DecisionDeny:
		return "DENY"
	case DecisionNeedConfirmation:
		return "NEED_CONFIRMATION"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// PermissionFunc is consulted before the agent performs a destructive or
// otherwise gated action. The policy behind it is external; a nil
// PermissionFunc denies everything.
type PermissionFunc func(ctx context.Context, action string) (Decision, error)

// Error reports a failed delivery. The pipeline speaks an apology and
// returns to idle rather than retrying.
type Error struct {
	// Backend names the agent implementation.
	Backend string

	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("agent: %s: %v", e.Backend, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
