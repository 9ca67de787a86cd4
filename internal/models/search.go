package models

// FacetFilter constrains a query to documents whose facet Name equals Value.
type FacetFilter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Query is an immutable composition of free-text terms, facet constraints and paging.
// Modifiers return copies and never alter the receiver.
type Query struct {
	Text   string        `json:"text,omitempty"`
	Facets []FacetFilter `json:"facets,omitempty"`
	Skip   int           `json:"skip,omitempty"`
	Top    int           `json:"top,omitempty"`
}

// WithText returns a copy of q with the free-text terms replaced.
func (q Query) WithText(text string) Query {
	out := q.clone()
	out.Text = text
	return out
}

// WithFacet returns a copy of q with the named facet set to value.
// An existing filter of the same name is replaced in place; other filters keep their order.
func (q Query) WithFacet(name, value string) Query {
	out := q.clone()
	for i := range out.Facets {
		if out.Facets[i].Name == name {
			out.Facets[i].Value = value
			return out
		}
	}
	out.Facets = append(out.Facets, FacetFilter{Name: name, Value: value})
	return out
}

// WithPage returns a copy of q with the paging window set.
func (q Query) WithPage(skip, top int) Query {
	out := q.clone()
	out.Skip = skip
	out.Top = top
	return out
}

// Facet returns the value of the named facet and whether it is set.
func (q Query) Facet(name string) (string, bool) {
	for _, f := range q.Facets {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

func (q Query) clone() Query {
	out := q
	if q.Facets != nil {
		out.Facets = make([]FacetFilter, len(q.Facets))
		copy(out.Facets, q.Facets)
	}
	return out
}

// ProviderDocument is a raw document as returned by a search index.
type ProviderDocument map[string]any

// SearchHit is the normalized, display-ready form of one result document.
// Key is stable for the same underlying document across queries.
type SearchHit struct {
	Key         string `json:"key"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// HitKeys returns the keys of hits in order.
func HitKeys(hits []SearchHit) []string {
	keys := make([]string, len(hits))
	for i, h := range hits {
		keys[i] = h.Key
	}
	return keys
}
