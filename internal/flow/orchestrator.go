package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/SearchPipe/internal/events"
	"github.com/BTreeMap/SearchPipe/internal/metrics"
	"github.com/BTreeMap/SearchPipe/internal/models"
	"github.com/BTreeMap/SearchPipe/internal/search"
	"github.com/BTreeMap/SearchPipe/internal/store"
	"github.com/google/uuid"
)

// User-facing texts of the orchestrator.
const (
	RestartNoticeText = "Something went wrong with your previous search, so we started over."
	CancelledText     = "Your search has been cancelled. Send any message to start again."
)

// Opts holds optional collaborators of the Orchestrator.
type Opts struct {
	Publisher events.Publisher
	Now       func() time.Time
}

// Option defines a functional option for configuring the Orchestrator.
type Option func(*Opts)

// WithPublisher sets the publisher notified when a conversation completes.
func WithPublisher(p events.Publisher) Option {
	return func(o *Opts) {
		o.Publisher = p
	}
}

// WithClock overrides the time source used for state timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) {
		o.Now = now
	}
}

// Orchestrator sequences the workflow steps for every conversation. It holds no
// per-conversation memory; all progress lives in the state store.
type Orchestrator struct {
	steps     []Step
	state     StateManager
	publisher events.Publisher
	now       func() time.Time
	cancel    map[string]bool
	locks     *keyedMutex
}

// NewOrchestrator builds the step sequence from cfg: one refinement step per facet,
// then search and selection, then confirmation.
func NewOrchestrator(cfg Config, provider search.Provider, mapper search.Mapper, st store.SessionStore, opts ...Option) (*Orchestrator, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: search provider is required", models.ErrInvalidConfig)
	}
	if mapper == nil {
		return nil, fmt.Errorf("%w: result mapper is required", models.ErrInvalidConfig)
	}
	if st == nil {
		return nil, fmt.Errorf("%w: session store is required", models.ErrInvalidConfig)
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := Opts{Publisher: events.NoopPublisher{}, Now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	steps := make([]Step, 0, len(cfg.Facets)+2)
	for _, f := range cfg.Facets {
		steps = append(steps, NewRefineStep(f))
	}
	steps = append(steps, NewSearchStep(cfg, provider, mapper), NewConfirmStep(cfg))

	cancel := make(map[string]bool, len(cfg.CancelCommands))
	for _, c := range cfg.CancelCommands {
		cancel[normalizeCommand(c)] = true
	}

	slog.Debug("NewOrchestrator created", "steps", len(steps), "facets", len(cfg.Facets), "multiple", cfg.MultipleSelection)
	return &Orchestrator{
		steps:     steps,
		state:     NewStoreBasedStateManager(st),
		publisher: o.Publisher,
		now:       o.Now,
		cancel:    cancel,
		locks:     newKeyedMutex(),
	}, nil
}

// Steps returns the IDs of the configured steps in order.
func (o *Orchestrator) Steps() []string {
	ids := make([]string, len(o.steps))
	for i, s := range o.steps {
		ids[i] = s.ID()
	}
	return ids
}

// HandleMessage runs one turn of the conversation and returns the replies to send.
// Turns of the same conversation are serialized; different conversations run in parallel.
func (o *Orchestrator) HandleMessage(ctx context.Context, conversationID, text string) ([]models.Outbound, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation ID is required")
	}
	unlock := o.locks.Lock(conversationID)
	defer unlock()

	start := time.Now()
	defer func() { metrics.TurnDuration.Observe(time.Since(start).Seconds()) }()

	if o.cancel[normalizeCommand(text)] {
		if err := o.state.ResetState(ctx, conversationID); err != nil {
			metrics.TurnsTotal.WithLabelValues(metrics.OutcomeError).Inc()
			return nil, err
		}
		metrics.TurnsTotal.WithLabelValues(metrics.OutcomeCancelled).Inc()
		slog.Info("Orchestrator conversation cancelled", "conversationID", conversationID)
		return []models.Outbound{{Kind: models.OutboundNotice, Text: CancelledText}}, nil
	}

	state, err := o.load(ctx, conversationID)
	restarted := false
	if errors.Is(err, models.ErrCorruptState) {
		slog.Warn("Orchestrator state corrupt, restarting", "conversationID", conversationID, "error", err)
		state, restarted = o.fresh(conversationID), true
	} else if err != nil {
		metrics.TurnsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, err
	}

	var replies []models.Outbound
	input := text
	if restarted {
		replies = append(replies, restartNotice())
		input = ""
	}

	replies, outcome, err := o.run(ctx, state, input, replies, restarted)
	if err != nil {
		metrics.TurnsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, err
	}
	metrics.TurnsTotal.WithLabelValues(outcome).Inc()
	return replies, nil
}

// run drives steps until one suspends or the workflow completes.
func (o *Orchestrator) run(ctx context.Context, state models.SessionState, input string, replies []models.Outbound, restarted bool) ([]models.Outbound, string, error) {
	for {
		step := o.steps[state.StepIndex]
		out, err := step.Run(ctx, state.Clone(), input)
		if err != nil {
			if errors.Is(err, models.ErrCorruptState) && !restarted {
				slog.Warn("Orchestrator step found corrupt state, restarting",
					"conversationID", state.ConversationID, "step", step.ID(), "error", err)
				restarted = true
				state = o.fresh(state.ConversationID)
				input = ""
				replies = []models.Outbound{restartNotice()}
				continue
			}
			slog.Error("Orchestrator step failed", "conversationID", state.ConversationID, "step", step.ID(), "error", err)
			return nil, "", fmt.Errorf("step %s failed: %w", step.ID(), err)
		}

		replies = append(replies, out.Replies...)
		next := out.State
		next.ConversationID = state.ConversationID
		next.UpdatedAt = o.now()

		if out.Action == ActionSuspend {
			if err := o.state.SaveState(ctx, next); err != nil {
				return nil, "", err
			}
			outcome := metrics.OutcomeSuspended
			if restarted {
				outcome = metrics.OutcomeRestarted
			}
			slog.Debug("Orchestrator turn suspended", "conversationID", next.ConversationID, "step", step.ID())
			return replies, outcome, nil
		}

		next.StepIndex++
		next.Prompted = false
		next.Phase = ""
		if next.StepIndex >= len(o.steps) {
			if err := o.complete(ctx, next); err != nil {
				return nil, "", err
			}
			return replies, metrics.OutcomeCompleted, nil
		}
		next.StepID = o.steps[next.StepIndex].ID()
		slog.Debug("Orchestrator advanced", "conversationID", next.ConversationID, "from", step.ID(), "to", next.StepID)
		state = next
		input = ""
	}
}

func (o *Orchestrator) complete(ctx context.Context, final models.SessionState) error {
	if err := o.state.ResetState(ctx, final.ConversationID); err != nil {
		return err
	}
	slog.Info("Orchestrator workflow completed", "conversationID", final.ConversationID, "selected", len(final.Selection))

	evt := events.SelectionConfirmed{
		ID:             uuid.NewString(),
		ConversationID: final.ConversationID,
		Query:          final.Query,
		Selection:      final.Selection,
		CompletedAt:    final.UpdatedAt,
	}
	if err := o.publisher.PublishSelectionConfirmed(ctx, evt); err != nil {
		slog.Warn("Orchestrator failed to publish completion event", "conversationID", final.ConversationID, "error", err)
	}
	return nil
}

// load returns the stored state, a fresh state when none exists, or an error
// wrapping models.ErrCorruptState when the stored state does not fit this workflow.
func (o *Orchestrator) load(ctx context.Context, conversationID string) (models.SessionState, error) {
	stored, err := o.state.LoadState(ctx, conversationID)
	if err != nil {
		return models.SessionState{}, err
	}
	if stored == nil {
		return o.fresh(conversationID), nil
	}
	if stored.StepIndex < 0 || stored.StepIndex >= len(o.steps) {
		return models.SessionState{}, fmt.Errorf("step index %d out of range: %w", stored.StepIndex, models.ErrCorruptState)
	}
	if want := o.steps[stored.StepIndex].ID(); stored.StepID != want {
		return models.SessionState{}, fmt.Errorf("step %q does not match configured %q: %w", stored.StepID, want, models.ErrCorruptState)
	}
	if err := o.checkFacets(stored); err != nil {
		return models.SessionState{}, err
	}
	return *stored, nil
}

// checkFacets verifies the stored query holds exactly one filter per refinement
// step already passed, so a renamed or removed facet never filters a search.
func (o *Orchestrator) checkFacets(stored *models.SessionState) error {
	passed := 0
	for _, step := range o.steps[:stored.StepIndex] {
		refine, ok := step.(*RefineStep)
		if !ok {
			continue
		}
		passed++
		if _, ok := stored.Query.Facet(refine.Facet().Name); !ok {
			return fmt.Errorf("facet %q missing from stored query: %w", refine.Facet().Name, models.ErrCorruptState)
		}
	}
	if len(stored.Query.Facets) != passed {
		return fmt.Errorf("stored query has %d facets, expected %d: %w", len(stored.Query.Facets), passed, models.ErrCorruptState)
	}
	return nil
}

func (o *Orchestrator) fresh(conversationID string) models.SessionState {
	return models.NewSessionState(conversationID, o.steps[0].ID(), o.now())
}

// Reset discards the conversation's progress.
func (o *Orchestrator) Reset(ctx context.Context, conversationID string) error {
	unlock := o.locks.Lock(conversationID)
	defer unlock()
	return o.state.ResetState(ctx, conversationID)
}

// State returns a copy of the conversation's stored state, or nil when it has none.
func (o *Orchestrator) State(ctx context.Context, conversationID string) (*models.SessionState, error) {
	unlock := o.locks.Lock(conversationID)
	defer unlock()
	return o.state.LoadState(ctx, conversationID)
}

func restartNotice() models.Outbound {
	return models.Outbound{Kind: models.OutboundNotice, Text: RestartNoticeText}
}

func normalizeCommand(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}
