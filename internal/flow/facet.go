package flow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/BTreeMap/SearchPipe/internal/models"
)

// DefaultFacetMaxLength caps free-text facet values when MaxLength is unset.
const DefaultFacetMaxLength = 100

// FacetSpec describes one categorical attribute the user is asked to supply.
type FacetSpec struct {
	Name      string   `yaml:"name" json:"name"`
	Prompt    string   `yaml:"prompt" json:"prompt"`
	Values    []string `yaml:"values,omitempty" json:"values,omitempty"`
	Pattern   string   `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	MaxLength int      `yaml:"max_length,omitempty" json:"max_length,omitempty"`

	// Normalizer runs after the built-in rules and may rewrite or reject the value.
	Normalizer func(string) (string, error) `yaml:"-" json:"-"`

	re *regexp.Regexp
}

// FacetValueError reports why an input was rejected for a facet.
type FacetValueError struct {
	Facet string
	Hint  string
}

func (e *FacetValueError) Error() string {
	return fmt.Sprintf("%s: %s", e.Facet, e.Hint)
}

func (e *FacetValueError) Unwrap() error {
	return models.ErrInvalidFacetValue
}

func (f *FacetSpec) compile() error {
	if f.Pattern == "" {
		f.re = nil
		return nil
	}
	re, err := regexp.Compile(f.Pattern)
	if err != nil {
		return fmt.Errorf("facet %s: bad pattern: %w", f.Name, err)
	}
	f.re = re
	return nil
}

// Normalize validates raw user input and returns the canonical facet value.
// Whitespace is trimmed and collapsed. With Values set, input matches an allowed
// value case-insensitively or by its 1-based option number.
func (f FacetSpec) Normalize(raw string) (string, error) {
	value := strings.Join(strings.Fields(raw), " ")
	if value == "" {
		return "", &FacetValueError{Facet: f.Name, Hint: "Please type a value."}
	}

	maxLen := f.MaxLength
	if maxLen <= 0 {
		maxLen = DefaultFacetMaxLength
	}
	if utf8.RuneCountInString(value) > maxLen {
		return "", &FacetValueError{Facet: f.Name, Hint: fmt.Sprintf("Please keep it under %d characters.", maxLen)}
	}

	if len(f.Values) > 0 {
		canonical, ok := f.matchValue(value)
		if !ok {
			return "", &FacetValueError{Facet: f.Name, Hint: "Please choose one of the options shown."}
		}
		value = canonical
	}

	re := f.re
	if re == nil && f.Pattern != "" {
		var err error
		if re, err = regexp.Compile(f.Pattern); err != nil {
			return "", fmt.Errorf("facet %s: bad pattern: %w", f.Name, err)
		}
	}
	if re != nil && !re.MatchString(value) {
		return "", &FacetValueError{Facet: f.Name, Hint: "That doesn't look right, please try again."}
	}

	if f.Normalizer != nil {
		out, err := f.Normalizer(value)
		if err != nil {
			return "", &FacetValueError{Facet: f.Name, Hint: err.Error()}
		}
		value = out
	}
	return value, nil
}

func (f FacetSpec) matchValue(value string) (string, bool) {
	for _, v := range f.Values {
		if strings.EqualFold(v, value) {
			return v, true
		}
	}
	if n, err := strconv.Atoi(strings.TrimPrefix(value, "#")); err == nil && n >= 1 && n <= len(f.Values) {
		return f.Values[n-1], true
	}
	return "", false
}
