// Package testutil provides common test utilities and fixtures for SearchPipe tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/BTreeMap/SearchPipe/internal/events"
	"github.com/BTreeMap/SearchPipe/internal/flow"
	"github.com/BTreeMap/SearchPipe/internal/models"
	"github.com/BTreeMap/SearchPipe/internal/search"
	"github.com/BTreeMap/SearchPipe/internal/store"
)

// TB is the subset of testing.TB the helpers use, so they can be exercised with a fake.
type TB interface {
	Helper()
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
}

// JobCorpus returns a small job-posting corpus with id, category and title fields.
func JobCorpus() []models.ProviderDocument {
	return []models.ProviderDocument{
		{"id": "job-1", "category": "backend-eng", "title": "Senior software engineer"},
		{"id": "job-2", "category": "backend-eng", "title": "Software engineer, payments"},
		{"id": "job-3", "category": "frontend-eng", "title": "Software engineer, web"},
		{"id": "job-4", "category": "backend-eng", "title": "Database administrator"},
	}
}

// CategoryConfig is a one-facet workflow over JobCorpus.
func CategoryConfig() flow.Config {
	return flow.Config{
		Facets:            []flow.FacetSpec{{Name: "category", Prompt: "Which category?"}},
		MultipleSelection: true,
		ResultPageSize:    3,
	}
}

// NewTestOrchestrator builds an orchestrator over JobCorpus backed by an in-memory store.
func NewTestOrchestrator(t TB, cfg flow.Config, opts ...flow.Option) (*flow.Orchestrator, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	orch, err := flow.NewOrchestrator(cfg, search.NewCorpusProvider(JobCorpus(), "title"), search.FieldMapper("id", "title", ""), st, opts...)
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}
	return orch, st
}

// RecordingPublisher keeps every published event.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []events.SelectionConfirmed
}

func (p *RecordingPublisher) PublishSelectionConfirmed(ctx context.Context, evt events.SelectionConfirmed) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *RecordingPublisher) Close() error { return nil }

// Events returns a copy of the published events.
func (p *RecordingPublisher) Events() []events.SelectionConfirmed {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.SelectionConfirmed(nil), p.events...)
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes an APIResponse envelope and validates its status field.
func AssertJSONResponse(t TB, rr *httptest.ResponseRecorder, expectedStatus string) models.APIResponse {
	t.Helper()
	var response models.APIResponse
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
		return response
	}
	if response.Status != expectedStatus {
		t.Errorf("expected status '%s', got '%s'", expectedStatus, response.Status)
	}
	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
		return nil
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t TB, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
