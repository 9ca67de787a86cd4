package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/SearchPipe/internal/metrics"
	"github.com/BTreeMap/SearchPipe/internal/models"
	"github.com/BTreeMap/SearchPipe/internal/search"
)

// SearchStepID identifies the search and selection step.
const SearchStepID = "search"

// User-facing texts of the search step.
const (
	SearchUnavailableText = "Search is temporarily unavailable. Please send the same message again to retry."
	NoResultsText         = "I couldn't find anything for %q. Try different keywords."
	NoMoreResultsText     = "There are no more results."
	EmptyKeywordsNote     = "Please type at least one keyword."
	UnknownSelectionNote  = "Unknown selection. Please choose from the list shown."
	EmptySelectionNote    = "Please pick at least one item from the list."
	TooManySelectionsNote = "Please pick just one item."
)

// SearchStep runs the composed query, presents a page of hits and resolves the
// user's pick against the last-presented page only.
type SearchStep struct {
	provider   search.Provider
	mapper     search.Mapper
	pageSize   int
	multiple   bool
	allowEmpty bool
	prompt     string
}

// NewSearchStep creates the search step from the workflow configuration.
func NewSearchStep(cfg Config, provider search.Provider, mapper search.Mapper) *SearchStep {
	return &SearchStep{
		provider:   provider,
		mapper:     mapper,
		pageSize:   cfg.ResultPageSize,
		multiple:   cfg.MultipleSelection,
		allowEmpty: cfg.AllowEmptySelection,
		prompt:     cfg.KeywordPrompt,
	}
}

func (s *SearchStep) ID() string            { return SearchStepID }
func (s *SearchStep) Kind() models.StepKind { return models.StepKindSearch }

func (s *SearchStep) Run(ctx context.Context, state models.SessionState, input string) (Outcome, error) {
	if !state.Prompted {
		state.Prompted = true
		state.Phase = models.PhaseAwaitingKeywords
		return suspend(state, models.Outbound{Kind: models.OutboundPrompt, Text: s.prompt})
	}

	text := strings.TrimSpace(input)
	switch state.Phase {
	case models.PhaseAwaitingKeywords:
		if text == "" {
			return suspend(state, models.Outbound{Kind: models.OutboundPrompt, Text: s.prompt, Note: EmptyKeywordsNote})
		}
		return s.newSearch(ctx, state, text)

	case models.PhaseAwaitingSelection:
		if len(state.LastResults) == 0 {
			return Outcome{}, fmt.Errorf("awaiting selection without presented results: %w", models.ErrCorruptState)
		}
		lower := strings.ToLower(text)
		switch {
		case lower == "more" || lower == "next":
			return s.nextPage(ctx, state)
		case strings.HasPrefix(lower, "search "):
			return s.newSearch(ctx, state, strings.TrimSpace(text[len("search "):]))
		}
		return s.selectHits(state, text)

	default:
		return Outcome{}, fmt.Errorf("unknown search phase %q: %w", state.Phase, models.ErrCorruptState)
	}
}

func (s *SearchStep) newSearch(ctx context.Context, state models.SessionState, keywords string) (Outcome, error) {
	q := state.Query.WithText(keywords).WithPage(0, s.pageSize)
	hits, err := s.execute(ctx, state.ConversationID, q)
	if err != nil {
		return suspend(state, models.Outbound{Kind: models.OutboundError, Text: SearchUnavailableText})
	}
	if len(hits) == 0 {
		state.Phase = models.PhaseAwaitingKeywords
		state.LastResults = nil
		return suspend(state, models.Outbound{Kind: models.OutboundNotice, Text: fmt.Sprintf(NoResultsText, keywords)})
	}
	state.Query = q
	state.LastResults = hits
	state.Selection = nil
	state.Phase = models.PhaseAwaitingSelection
	return suspend(state, s.results(state, ""))
}

func (s *SearchStep) nextPage(ctx context.Context, state models.SessionState) (Outcome, error) {
	q := state.Query.WithPage(state.Query.Skip+s.pageSize, s.pageSize)
	hits, err := s.execute(ctx, state.ConversationID, q)
	if err != nil {
		return suspend(state, models.Outbound{Kind: models.OutboundError, Text: SearchUnavailableText})
	}
	if len(hits) == 0 {
		return suspend(state, s.results(state, NoMoreResultsText))
	}
	state.Query = q
	state.LastResults = hits
	return suspend(state, s.results(state, ""))
}

func (s *SearchStep) selectHits(state models.SessionState, text string) (Outcome, error) {
	picks, err := ParseSelection(text, state.LastResults, s.multiple, s.allowEmpty)
	if err != nil {
		note, reason := UnknownSelectionNote, "unknown"
		switch {
		case errors.Is(err, models.ErrEmptySelection):
			note, reason = EmptySelectionNote, "empty"
		case errors.Is(err, models.ErrTooManySelections):
			note, reason = TooManySelectionsNote, "too_many"
		}
		metrics.SelectionRejectionsTotal.WithLabelValues(reason).Inc()
		slog.Debug("SearchStep selection rejected", "conversationID", state.ConversationID, "error", err)
		return suspend(state, s.results(state, note))
	}
	state.Selection = picks
	slog.Debug("SearchStep selection accepted", "conversationID", state.ConversationID, "count", len(picks))
	return advance(state)
}

// execute queries the provider and maps at most one page of unique hits.
func (s *SearchStep) execute(ctx context.Context, conversationID string, q models.Query) ([]models.SearchHit, error) {
	start := time.Now()
	docs, err := s.provider.Search(ctx, q)
	metrics.SearchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(metrics.SearchError).Inc()
		slog.Warn("SearchStep provider failed", "conversationID", conversationID, "error", err)
		return nil, err
	}

	mapped := search.MapAll(s.mapper, docs)
	hits := make([]models.SearchHit, 0, min(len(mapped), s.pageSize))
	seen := make(map[string]bool, len(mapped))
	for _, h := range mapped {
		if seen[h.Key] {
			continue
		}
		seen[h.Key] = true
		hits = append(hits, h)
		if len(hits) == s.pageSize {
			break
		}
	}

	if len(hits) == 0 {
		metrics.SearchRequestsTotal.WithLabelValues(metrics.SearchEmpty).Inc()
	} else {
		metrics.SearchRequestsTotal.WithLabelValues(metrics.SearchOK).Inc()
	}
	slog.Debug("SearchStep search completed", "conversationID", conversationID, "documents", len(docs), "hits", len(hits))
	return hits, nil
}

func (s *SearchStep) results(state models.SessionState, note string) models.Outbound {
	return models.Outbound{
		Kind:              models.OutboundResults,
		Text:              fmt.Sprintf("Here is what I found for %q:", state.Query.Text),
		Note:              note,
		Hits:              state.LastResults,
		MultipleSelection: s.multiple,
	}
}
