package search

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/BTreeMap/SearchPipe/internal/models"
)

// CorpusProvider serves queries from documents held in memory.
// Facet filters match case-insensitively; every keyword term must occur in one of the text fields.
type CorpusProvider struct {
	docs       []models.ProviderDocument
	textFields []string
}

// NewCorpusProvider creates a provider over docs, matching keywords against textFields.
func NewCorpusProvider(docs []models.ProviderDocument, textFields ...string) *CorpusProvider {
	return &CorpusProvider{docs: docs, textFields: textFields}
}

// LoadCorpusFile reads a JSON array of documents from path.
func LoadCorpusFile(path string, textFields ...string) (*CorpusProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus file %s: %w", path, err)
	}
	var docs []models.ProviderDocument
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse corpus file %s: %w", path, err)
	}
	return NewCorpusProvider(docs, textFields...), nil
}

// Len returns the number of documents in the corpus.
func (p *CorpusProvider) Len() int {
	return len(p.docs)
}

// Search returns the documents matching q in corpus order, windowed by q.Skip and q.Top.
func (p *CorpusProvider) Search(ctx context.Context, q models.Query) ([]models.ProviderDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := strings.Fields(strings.ToLower(q.Text))

	var matched []models.ProviderDocument
	for _, doc := range p.docs {
		if p.matches(doc, q.Facets, terms) {
			matched = append(matched, doc)
		}
	}

	if q.Skip >= len(matched) {
		return []models.ProviderDocument{}, nil
	}
	matched = matched[q.Skip:]
	if q.Top > 0 && len(matched) > q.Top {
		matched = matched[:q.Top]
	}
	return matched, nil
}

func (p *CorpusProvider) matches(doc models.ProviderDocument, facets []models.FacetFilter, terms []string) bool {
	for _, f := range facets {
		if !strings.EqualFold(StringField(doc, f.Name), f.Value) {
			return false
		}
	}
	if len(terms) == 0 {
		return true
	}
	var text strings.Builder
	for _, field := range p.textFields {
		text.WriteString(strings.ToLower(StringField(doc, field)))
		text.WriteByte(' ')
	}
	haystack := text.String()
	for _, term := range terms {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}
