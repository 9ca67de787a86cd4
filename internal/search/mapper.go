package search

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/BTreeMap/SearchPipe/internal/models"
)

// UntitledPlaceholder is the title given to hits whose mapper produced none.
const UntitledPlaceholder = "(untitled)"

// Mapper turns a provider document into a search hit. It must be pure.
type Mapper func(doc models.ProviderDocument) models.SearchHit

// MapAll applies m to every document. A document whose mapping panics or yields
// empty fields still produces a hit with placeholder text, so one bad document
// never aborts a page.
func MapAll(m Mapper, docs []models.ProviderDocument) []models.SearchHit {
	hits := make([]models.SearchHit, 0, len(docs))
	for _, doc := range docs {
		hits = append(hits, mapOne(m, doc))
	}
	return hits
}

func mapOne(m Mapper, doc models.ProviderDocument) (hit models.SearchHit) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("search.MapAll mapper panicked, using placeholder", "panic", r)
			hit = models.SearchHit{}
		}
		if hit.Key == "" {
			hit.Key = DocumentKey(doc)
		}
		if strings.TrimSpace(hit.Title) == "" {
			hit.Title = UntitledPlaceholder
		}
	}()
	return m(doc)
}

// DocumentKey derives a stable key from the canonical JSON form of doc.
// encoding/json sorts map keys, so equal documents always hash the same.
func DocumentKey(doc models.ProviderDocument) string {
	data, err := json.Marshal(doc)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", doc))
	}
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])[:16]
}

// FieldMapper returns a mapper reading the key, title and description from the named fields.
// An empty descriptionField omits descriptions.
func FieldMapper(keyField, titleField, descriptionField string) Mapper {
	return func(doc models.ProviderDocument) models.SearchHit {
		hit := models.SearchHit{
			Key:   StringField(doc, keyField),
			Title: StringField(doc, titleField),
		}
		if descriptionField != "" {
			hit.Description = Truncate(StringField(doc, descriptionField), DescriptionLimit)
		}
		return hit
	}
}

// StringField returns doc[name] formatted as a string, or "" when absent or null.
func StringField(doc models.ProviderDocument, name string) string {
	v, ok := doc[name]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

// FloatField returns doc[name] as a float64 and whether it was numeric.
func FloatField(doc models.ProviderDocument, name string) (float64, bool) {
	switch t := doc[name].(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// DescriptionLimit is the number of runes kept by Truncate before the ellipsis.
const DescriptionLimit = 512

// Truncate cuts s to limit runes and appends "...". Shorter strings are returned unchanged.
func Truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
