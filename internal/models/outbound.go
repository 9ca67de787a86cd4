package models

// OutboundKind classifies an outbound message produced by the workflow.
type OutboundKind string

const (
	OutboundPrompt       OutboundKind = "prompt"
	OutboundResults      OutboundKind = "results"
	OutboundError        OutboundKind = "error"
	OutboundConfirmation OutboundKind = "confirmation"
	OutboundNotice       OutboundKind = "notice"
)

// Outbound is structured workflow output. Transports render it to text.
type Outbound struct {
	Kind              OutboundKind `json:"kind"`
	Text              string       `json:"text,omitempty"`
	Note              string       `json:"note,omitempty"`    // correction hint shown alongside a re-prompt
	Options           []string     `json:"options,omitempty"` // allowed facet values, if any
	Hits              []SearchHit  `json:"hits,omitempty"`
	MultipleSelection bool         `json:"multiple_selection,omitempty"`
	Selection         []SearchHit  `json:"selection,omitempty"`
}
