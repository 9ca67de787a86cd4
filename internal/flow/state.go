// Package flow implements the conversational search workflow: facet refinement,
// search and selection, and confirmation, sequenced by a resumable orchestrator.
package flow

import (
	"context"

	"github.com/BTreeMap/SearchPipe/internal/models"
)

// StateManager defines the interface for loading and persisting workflow state.
type StateManager interface {
	// LoadState returns the conversation's state, or nil when it has none.
	LoadState(ctx context.Context, conversationID string) (*models.SessionState, error)

	// SaveState persists state for state.ConversationID.
	SaveState(ctx context.Context, state models.SessionState) error

	// ResetState removes all state for the conversation.
	ResetState(ctx context.Context, conversationID string) error
}

// Action tells the orchestrator what to do after a step ran.
type Action int

const (
	// ActionSuspend persists the returned state and waits for the next message.
	ActionSuspend Action = iota
	// ActionAdvance moves to the next step immediately, without new input.
	ActionAdvance
)

func (a Action) String() string {
	switch a {
	case ActionSuspend:
		return "suspend"
	case ActionAdvance:
		return "advance"
	default:
		return "unknown"
	}
}

// Outcome is the result of running a step once.
type Outcome struct {
	Action  Action
	Replies []models.Outbound
	State   models.SessionState
}

// Step is one unit of the workflow. Run is a transition function: it receives a copy
// of the current state and the inbound text and returns the next state. Input validation
// problems are reported through Replies; a returned error is either infrastructure
// failure or models.ErrCorruptState.
type Step interface {
	ID() string
	Kind() models.StepKind
	Run(ctx context.Context, state models.SessionState, input string) (Outcome, error)
}

func suspend(state models.SessionState, replies ...models.Outbound) (Outcome, error) {
	return Outcome{Action: ActionSuspend, Replies: replies, State: state}, nil
}

func advance(state models.SessionState, replies ...models.Outbound) (Outcome, error) {
	return Outcome{Action: ActionAdvance, Replies: replies, State: state}, nil
}
