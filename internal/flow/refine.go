package flow

import (
	"context"
	"errors"
	"log/slog"

	"github.com/BTreeMap/SearchPipe/internal/models"
)

// RefineStep prompts for one facet and stores the normalized value in the query.
// It owns exactly one facet slot.
type RefineStep struct {
	facet FacetSpec
}

// NewRefineStep creates a refinement step for facet. A bad pattern is reported
// by Config.Validate; here it only leaves the facet uncompiled.
func NewRefineStep(facet FacetSpec) *RefineStep {
	if err := facet.compile(); err != nil {
		slog.Warn("NewRefineStep pattern compile failed", "facet", facet.Name, "error", err)
	}
	return &RefineStep{facet: facet}
}

func (s *RefineStep) ID() string            { return "refine:" + s.facet.Name }
func (s *RefineStep) Kind() models.StepKind { return models.StepKindRefine }

// Facet returns the facet this step captures.
func (s *RefineStep) Facet() FacetSpec { return s.facet }

// Run emits the facet prompt on first entry. Afterwards it normalizes input and
// advances, or re-prompts with a hint leaving state untouched.
func (s *RefineStep) Run(ctx context.Context, state models.SessionState, input string) (Outcome, error) {
	if !state.Prompted {
		state.Prompted = true
		return suspend(state, s.prompt(""))
	}

	value, err := s.facet.Normalize(input)
	if err != nil {
		var fe *FacetValueError
		if !errors.As(err, &fe) {
			return Outcome{}, err
		}
		slog.Debug("RefineStep rejected value", "conversationID", state.ConversationID, "facet", s.facet.Name)
		return suspend(state, s.prompt(fe.Hint))
	}

	state.Query = state.Query.WithFacet(s.facet.Name, value)
	slog.Debug("RefineStep captured facet", "conversationID", state.ConversationID, "facet", s.facet.Name, "value", value)
	return advance(state)
}

func (s *RefineStep) prompt(note string) models.Outbound {
	return models.Outbound{
		Kind:    models.OutboundPrompt,
		Text:    s.facet.Prompt,
		Note:    note,
		Options: s.facet.Values,
	}
}
