package flow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/BTreeMap/SearchPipe/internal/events"
	"github.com/BTreeMap/SearchPipe/internal/models"
	"github.com/BTreeMap/SearchPipe/internal/search"
	"github.com/BTreeMap/SearchPipe/internal/store"
)

var errProviderDown = errors.New("provider unavailable")

// flakyProvider wraps a provider, failing the next failNext calls and recording queries.
type flakyProvider struct {
	mu       sync.Mutex
	inner    search.Provider
	failNext int
	calls    []models.Query
}

func (p *flakyProvider) Search(ctx context.Context, q models.Query) ([]models.ProviderDocument, error) {
	p.mu.Lock()
	p.calls = append(p.calls, q)
	fail := p.failNext > 0
	if fail {
		p.failNext--
	}
	p.mu.Unlock()
	if fail {
		return nil, errProviderDown
	}
	return p.inner.Search(ctx, q)
}

func (p *flakyProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *flakyProvider) lastCall() models.Query {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[len(p.calls)-1]
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.SelectionConfirmed
}

func (p *recordingPublisher) PublishSelectionConfirmed(ctx context.Context, evt events.SelectionConfirmed) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func jobCorpus() []models.ProviderDocument {
	return []models.ProviderDocument{
		{"id": "job-1", "category": "backend-eng", "title": "Senior software engineer"},
		{"id": "job-2", "category": "backend-eng", "title": "Software engineer, payments"},
		{"id": "job-3", "category": "frontend-eng", "title": "Software engineer, web"},
		{"id": "job-4", "category": "backend-eng", "title": "Database administrator"},
	}
}

func categoryConfig() Config {
	return Config{
		Facets:            []FacetSpec{{Name: "category", Prompt: "Which category?"}},
		MultipleSelection: true,
		ResultPageSize:    3,
	}
}

type harness struct {
	orch      *Orchestrator
	provider  *flakyProvider
	store     *store.InMemoryStore
	publisher *recordingPublisher
}

func newHarness(t *testing.T, cfg Config, docs []models.ProviderDocument) *harness {
	t.Helper()
	h := &harness{
		provider:  &flakyProvider{inner: search.NewCorpusProvider(docs, "title")},
		store:     store.NewInMemoryStore(),
		publisher: &recordingPublisher{},
	}
	orch, err := NewOrchestrator(cfg, h.provider, search.FieldMapper("id", "title", ""), h.store, WithPublisher(h.publisher))
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}
	h.orch = orch
	return h
}

func (h *harness) send(t *testing.T, conversationID, text string) []models.Outbound {
	t.Helper()
	out, err := h.orch.HandleMessage(context.Background(), conversationID, text)
	if err != nil {
		t.Fatalf("HandleMessage(%q) failed: %v", text, err)
	}
	if len(out) == 0 {
		t.Fatalf("HandleMessage(%q) returned no replies", text)
	}
	return out
}

func (h *harness) state(t *testing.T, conversationID string) *models.SessionState {
	t.Helper()
	st, err := h.store.GetSession(context.Background(), conversationID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	return st
}

func lastReply(out []models.Outbound) models.Outbound {
	return out[len(out)-1]
}
