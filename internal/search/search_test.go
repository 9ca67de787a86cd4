package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BTreeMap/SearchPipe/internal/models"
)

func TestMapAllIsPureAndFillsPlaceholders(t *testing.T) {
	docs := []models.ProviderDocument{
		{"id": "1", "name": "First"},
		{"name": "No id"},
		{"id": "3"},
	}
	m := FieldMapper("id", "name", "")

	first := MapAll(m, docs)
	second := MapAll(m, docs)
	if len(first) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("hit %d differs between runs: %+v vs %+v", i, first[i], second[i])
		}
		if first[i].Title == "" || first[i].Key == "" {
			t.Errorf("hit %d missing key or title: %+v", i, first[i])
		}
	}
	if first[1].Key != DocumentKey(docs[1]) {
		t.Errorf("expected derived key for doc without id, got %q", first[1].Key)
	}
	if first[2].Title != UntitledPlaceholder {
		t.Errorf("expected placeholder title, got %q", first[2].Title)
	}
}

func TestMapAllRecoversFromPanickingMapper(t *testing.T) {
	panicky := func(doc models.ProviderDocument) models.SearchHit {
		if _, ok := doc["bad"]; ok {
			panic("bad document")
		}
		return models.SearchHit{Key: StringField(doc, "id"), Title: "ok"}
	}
	hits := MapAll(panicky, []models.ProviderDocument{{"id": "a"}, {"bad": true}, {"id": "c"}})
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if hits[1].Title != UntitledPlaceholder || hits[1].Key == "" {
		t.Errorf("expected placeholder hit for bad document, got %+v", hits[1])
	}
	if hits[2].Key != "c" {
		t.Errorf("expected later documents to still map, got %+v", hits[2])
	}
}

func TestDocumentKeyStable(t *testing.T) {
	a := models.ProviderDocument{"x": 1.0, "y": "z"}
	b := models.ProviderDocument{"y": "z", "x": 1.0}
	if DocumentKey(a) != DocumentKey(b) {
		t.Error("expected equal documents to share a key")
	}
	if DocumentKey(a) == DocumentKey(models.ProviderDocument{"x": 2.0}) {
		t.Error("expected different documents to differ")
	}
}

func TestJobToSearchHit(t *testing.T) {
	job := models.ProviderDocument{
		"id":                "42",
		"business_title":    "Engineer",
		"agency":            "DOT",
		"salary_range_from": 50000.0,
		"salary_range_to":   70000.5,
		"job_description":   strings.Repeat("a", 600),
	}
	hit := JobToSearchHit(job)
	if hit.Key != "42" {
		t.Errorf("unexpected key %q", hit.Key)
	}
	if hit.Title != "Engineer at DOT, 50000.00 to 70000.50" {
		t.Errorf("unexpected title %q", hit.Title)
	}
	if len(hit.Description) != DescriptionLimit+3 || !strings.HasSuffix(hit.Description, "...") {
		t.Errorf("unexpected description length %d", len(hit.Description))
	}
}

func TestJobToSearchHitMissingFields(t *testing.T) {
	hits := MapAll(JobToSearchHit, []models.ProviderDocument{{"business_title": "Clerk"}})
	if hits[0].Title == "" || hits[0].Key == "" {
		t.Errorf("expected best-effort hit, got %+v", hits[0])
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("expected unchanged, got %q", got)
	}
	if got := Truncate("abcdef", 3); got != "abc..." {
		t.Errorf("expected abc..., got %q", got)
	}
}

func TestODataFilter(t *testing.T) {
	tests := []struct {
		name   string
		facets []models.FacetFilter
		want   string
	}{
		{"none", nil, ""},
		{"single", []models.FacetFilter{{Name: "agency", Value: "DOT"}}, "agency eq 'DOT'"},
		{"quoted", []models.FacetFilter{{Name: "business_title", Value: "Chef's Aide"}}, "business_title eq 'Chef''s Aide'"},
		{"multiple", []models.FacetFilter{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}}, "a eq '1' and b eq '2'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ODataFilter(tt.facets); got != tt.want {
				t.Errorf("ODataFilter() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAzureClientSearch(t *testing.T) {
	var gotBody azureSearchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/indexes/nycjobs/docs/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("api-version") != DefaultAzureAPIVersion {
			t.Errorf("unexpected api-version %q", r.URL.Query().Get("api-version"))
		}
		if r.Header.Get("api-key") != "secret" {
			t.Errorf("missing api-key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":[{"id":"1","business_title":"Engineer"},{"id":"2"}]}`))
	}))
	defer srv.Close()

	c, err := NewAzureClient("", "secret", "nycjobs", WithAzureEndpoint(srv.URL))
	if err != nil {
		t.Fatalf("NewAzureClient failed: %v", err)
	}
	q := models.Query{Text: "software"}.WithFacet("business_title", "Engineer").WithPage(5, 5)
	docs, err := c.Search(context.Background(), q)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(docs) != 2 || StringField(docs[0], "id") != "1" {
		t.Errorf("unexpected docs: %+v", docs)
	}
	if gotBody.Search != "software" || gotBody.Filter != "business_title eq 'Engineer'" || gotBody.Top != 5 || gotBody.Skip != 5 {
		t.Errorf("unexpected request body: %+v", gotBody)
	}
}

func TestAzureClientSearchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := NewAzureClient("", "bad", "nycjobs", WithAzureEndpoint(srv.URL))
	if err != nil {
		t.Fatalf("NewAzureClient failed: %v", err)
	}
	if _, err := c.Search(context.Background(), models.Query{Text: "x"}); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

func TestNewAzureClientValidation(t *testing.T) {
	if _, err := NewAzureClient("svc", "k", ""); err == nil {
		t.Error("expected error for missing index")
	}
	if _, err := NewAzureClient("", "k", "idx"); err == nil {
		t.Error("expected error for missing service and endpoint")
	}
}

func TestCorpusProviderSearch(t *testing.T) {
	docs := []models.ProviderDocument{
		{"id": "1", "category": "Tech", "title": "Backend software engineer"},
		{"id": "2", "category": "tech", "title": "Frontend Software Engineer"},
		{"id": "3", "category": "finance", "title": "Software auditor"},
		{"id": "4", "category": "tech", "title": "Data analyst"},
	}
	p := NewCorpusProvider(docs, "title")

	got, err := p.Search(context.Background(), models.Query{Text: "software engineer"}.WithFacet("category", "TECH"))
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 2 || StringField(got[0], "id") != "1" || StringField(got[1], "id") != "2" {
		t.Errorf("unexpected results: %+v", got)
	}

	page, _ := p.Search(context.Background(), models.Query{}.WithPage(1, 2))
	if len(page) != 2 || StringField(page[0], "id") != "2" {
		t.Errorf("unexpected page: %+v", page)
	}

	empty, _ := p.Search(context.Background(), models.Query{}.WithPage(10, 2))
	if len(empty) != 0 {
		t.Errorf("expected empty page, got %+v", empty)
	}
}

func TestLoadCorpusFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.json")
	if err := os.WriteFile(path, []byte(`[{"id":"a","title":"one"},{"id":"b","title":"two"}]`), 0644); err != nil {
		t.Fatalf("failed to write corpus: %v", err)
	}
	p, err := LoadCorpusFile(path, "title")
	if err != nil {
		t.Fatalf("LoadCorpusFile failed: %v", err)
	}
	if p.Len() != 2 {
		t.Errorf("expected 2 documents, got %d", p.Len())
	}
	if _, err := LoadCorpusFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
