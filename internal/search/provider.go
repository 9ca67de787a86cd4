// Package search holds the search provider boundary and the result mappers that turn
// provider documents into display-ready hits.
package search

import (
	"context"

	"github.com/BTreeMap/SearchPipe/internal/models"
)

// Provider executes a query against a search index and returns raw documents.
// Implementations bound their own latency; callers never retry.
type Provider interface {
	Search(ctx context.Context, q models.Query) ([]models.ProviderDocument, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, q models.Query) ([]models.ProviderDocument, error)

// Search calls f(ctx, q).
func (f ProviderFunc) Search(ctx context.Context, q models.Query) ([]models.ProviderDocument, error) {
	return f(ctx, q)
}
