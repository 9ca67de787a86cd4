package models

import "time"

// StepKind identifies the behavior of a workflow step.
type StepKind string

const (
	// StepKindRefine captures one facet value.
	StepKindRefine StepKind = "refine"
	// StepKindSearch runs the composed query and collects a selection.
	StepKindSearch StepKind = "search"
	// StepKindConfirm summarizes the selection.
	StepKindConfirm StepKind = "confirm"
)

// SearchPhase is the sub-state of the search and selection step.
type SearchPhase string

const (
	// PhaseAwaitingKeywords waits for the free-text query.
	PhaseAwaitingKeywords SearchPhase = "awaiting_keywords"
	// PhaseAwaitingSelection waits for a pick from the last-presented results.
	PhaseAwaitingSelection SearchPhase = "awaiting_selection"
)

// SessionState is the per-conversation workflow record persisted between turns.
type SessionState struct {
	ConversationID string      `json:"conversation_id"`
	StepIndex      int         `json:"step_index"`
	StepID         string      `json:"step_id"`
	Prompted       bool        `json:"prompted,omitempty"`
	Phase          SearchPhase `json:"phase,omitempty"`
	Query          Query       `json:"query"`
	LastResults    []SearchHit `json:"last_results,omitempty"`
	Selection      []SearchHit `json:"selection,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// NewSessionState returns the initial state for a conversation: step 0, empty query, no results.
func NewSessionState(conversationID, firstStepID string, now time.Time) SessionState {
	return SessionState{
		ConversationID: conversationID,
		StepID:         firstStepID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Clone returns a deep copy of s.
func (s SessionState) Clone() SessionState {
	out := s
	out.Query = s.Query.clone()
	if s.LastResults != nil {
		out.LastResults = append([]SearchHit(nil), s.LastResults...)
	}
	if s.Selection != nil {
		out.Selection = append([]SearchHit(nil), s.Selection...)
	}
	return out
}
