package flow

import (
	"context"
	"fmt"
	"strings"

	"github.com/BTreeMap/SearchPipe/internal/models"
)

// ConfirmStepID identifies the confirmation step.
const ConfirmStepID = "confirm"

// ConfirmStep reports the confirmed selection. It never waits for input.
type ConfirmStep struct {
	format     string
	allowEmpty bool
}

// NewConfirmStep creates the confirmation step.
func NewConfirmStep(cfg Config) *ConfirmStep {
	return &ConfirmStep{format: cfg.SummaryFormat, allowEmpty: cfg.AllowEmptySelection}
}

func (s *ConfirmStep) ID() string            { return ConfirmStepID }
func (s *ConfirmStep) Kind() models.StepKind { return models.StepKindConfirm }

func (s *ConfirmStep) Run(ctx context.Context, state models.SessionState, input string) (Outcome, error) {
	if len(state.Selection) == 0 && !s.allowEmpty {
		return Outcome{}, fmt.Errorf("confirmation reached without a selection: %w", models.ErrCorruptState)
	}
	presented := make(map[string]bool, len(state.LastResults))
	for _, h := range state.LastResults {
		presented[h.Key] = true
	}
	for _, h := range state.Selection {
		if !presented[h.Key] {
			return Outcome{}, fmt.Errorf("selected key %q was never presented: %w", h.Key, models.ErrCorruptState)
		}
	}

	return advance(state, models.Outbound{
		Kind:      models.OutboundConfirmation,
		Text:      RenderSummary(s.format, state.Selection),
		Selection: state.Selection,
	})
}

// RenderSummary substitutes the selection keys, joined by ", ", for the first %s in format.
// An empty selection renders as "nothing".
func RenderSummary(format string, selection []models.SearchHit) string {
	keys := strings.Join(models.HitKeys(selection), ", ")
	if keys == "" {
		keys = "nothing"
	}
	return strings.Replace(format, "%s", keys, 1)
}
