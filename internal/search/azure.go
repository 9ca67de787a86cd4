package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/SearchPipe/internal/models"
)

const (
	// DefaultAzureAPIVersion is the REST API version used for document search.
	DefaultAzureAPIVersion = "2020-06-30"
	// DefaultAzureTimeout bounds a single search request.
	DefaultAzureTimeout = 10 * time.Second
)

// AzureOpts holds configuration for the Azure Cognitive Search client.
type AzureOpts struct {
	Endpoint   string // overrides https://<service>.search.windows.net
	APIVersion string
	HTTPClient *http.Client
}

// AzureOption defines a functional option for configuring the Azure client.
type AzureOption func(*AzureOpts)

// WithAzureEndpoint overrides the service endpoint, mainly for tests.
func WithAzureEndpoint(endpoint string) AzureOption {
	return func(o *AzureOpts) {
		o.Endpoint = endpoint
	}
}

// WithAzureAPIVersion sets the REST API version.
func WithAzureAPIVersion(version string) AzureOption {
	return func(o *AzureOpts) {
		o.APIVersion = version
	}
}

// WithAzureHTTPClient sets the HTTP client used for requests.
func WithAzureHTTPClient(c *http.Client) AzureOption {
	return func(o *AzureOpts) {
		o.HTTPClient = c
	}
}

// AzureClient queries an Azure Cognitive Search index over its REST API.
type AzureClient struct {
	endpoint   string
	index      string
	apiKey     string
	apiVersion string
	httpClient *http.Client
}

// NewAzureClient creates a client for the given service, query key and index.
func NewAzureClient(service, apiKey, index string, opts ...AzureOption) (*AzureClient, error) {
	if index == "" {
		return nil, fmt.Errorf("azure search index is required")
	}
	cfg := AzureOpts{
		APIVersion: DefaultAzureAPIVersion,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Endpoint == "" {
		if service == "" {
			return nil, fmt.Errorf("azure search service name is required")
		}
		cfg.Endpoint = fmt.Sprintf("https://%s.search.windows.net", service)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultAzureTimeout}
	}
	return &AzureClient{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		index:      index,
		apiKey:     apiKey,
		apiVersion: cfg.APIVersion,
		httpClient: cfg.HTTPClient,
	}, nil
}

type azureSearchRequest struct {
	Search string `json:"search"`
	Filter string `json:"filter,omitempty"`
	Top    int    `json:"top,omitempty"`
	Skip   int    `json:"skip,omitempty"`
}

type azureSearchResponse struct {
	Value []models.ProviderDocument `json:"value"`
}

// Search executes q against the index.
func (c *AzureClient) Search(ctx context.Context, q models.Query) ([]models.ProviderDocument, error) {
	search := strings.TrimSpace(q.Text)
	if search == "" {
		search = "*"
	}
	body, err := json.Marshal(azureSearchRequest{
		Search: search,
		Filter: ODataFilter(q.Facets),
		Top:    q.Top,
		Skip:   q.Skip,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	url := fmt.Sprintf("%s/indexes/%s/docs/search?api-version=%s", c.endpoint, c.index, c.apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Warn("AzureClient.Search request failed", "index", c.index, "error", err)
		return nil, fmt.Errorf("azure search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Warn("AzureClient.Search unexpected status", "index", c.index, "status", resp.StatusCode)
		return nil, fmt.Errorf("azure search returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded azureSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	slog.Debug("AzureClient.Search succeeded", "index", c.index, "count", len(decoded.Value), "elapsed", time.Since(start))
	return decoded.Value, nil
}

// ODataFilter builds an OData filter expression requiring every facet to equal its value.
func ODataFilter(facets []models.FacetFilter) string {
	if len(facets) == 0 {
		return ""
	}
	parts := make([]string, 0, len(facets))
	for _, f := range facets {
		parts = append(parts, fmt.Sprintf("%s eq '%s'", f.Name, strings.ReplaceAll(f.Value, "'", "''")))
	}
	return strings.Join(parts, " and ")
}
