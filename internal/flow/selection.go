package flow

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/BTreeMap/SearchPipe/internal/models"
)

var selectionFillers = map[string]bool{
	"item":   true,
	"items":  true,
	"#":      true,
	"and":    true,
	"number": true,
	"no.":    true,
	"&":      true,
}

// ParseSelection resolves a selection message against the last-presented results.
//
// A message equal to a presented key selects that hit, even when the key holds
// separators. Otherwise the message is split into tokens: hit keys (exact first),
// 1-based positions ("#3" is always a position), position ranges like "2-4",
// case-insensitive keys, "all" and "none". Commas and the fillers "item", "#" and
// "and" are ignored. The result is deduplicated and ordered as presented.
func ParseSelection(text string, presented []models.SearchHit, multiple, allowEmpty bool) ([]models.SearchHit, error) {
	trimmed := strings.ToLower(strings.TrimSpace(text))

	switch trimmed {
	case "none", "nothing", "":
		if !allowEmpty {
			return nil, models.ErrEmptySelection
		}
		return []models.SearchHit{}, nil
	case "all", "all of them", "everything":
		if !multiple && len(presented) > 1 {
			return nil, models.ErrTooManySelections
		}
		return append([]models.SearchHit{}, presented...), nil
	}

	if i, ok := matchKey(strings.TrimSpace(text), presented); ok {
		return []models.SearchHit{presented[i]}, nil
	}

	picked := make(map[int]bool)
	for _, tok := range tokenize(text) {
		lower := strings.ToLower(tok)
		if selectionFillers[lower] {
			continue
		}
		idx, err := resolveToken(tok, presented)
		if err != nil {
			return nil, err
		}
		for _, i := range idx {
			picked[i] = true
		}
	}

	if len(picked) == 0 {
		if !allowEmpty {
			return nil, models.ErrEmptySelection
		}
		return []models.SearchHit{}, nil
	}
	if !multiple && len(picked) > 1 {
		return nil, models.ErrTooManySelections
	}

	order := make([]int, 0, len(picked))
	for i := range picked {
		order = append(order, i)
	}
	sort.Ints(order)
	out := make([]models.SearchHit, len(order))
	for n, i := range order {
		out[n] = presented[i]
	}
	return out, nil
}

func tokenize(text string) []string {
	replaced := strings.NewReplacer(",", " ", ";", " ").Replace(text)
	return strings.Fields(replaced)
}

// resolveToken returns the presented indexes a single token refers to.
func resolveToken(tok string, presented []models.SearchHit) ([]int, error) {
	bare := strings.TrimPrefix(tok, "#")

	// Numeric keys are common, so a key match wins over a position
	for i, h := range presented {
		if h.Key == tok {
			return []int{i}, nil
		}
	}
	if n, err := strconv.Atoi(bare); err == nil && n >= 1 && n <= len(presented) {
		return []int{n - 1}, nil
	}
	for i, h := range presented {
		if strings.EqualFold(h.Key, tok) {
			return []int{i}, nil
		}
	}
	if lo, hi, ok := parseRange(bare); ok {
		if lo < 1 || hi > len(presented) || lo > hi {
			return nil, fmt.Errorf("%w: %q", models.ErrUnknownSelection, tok)
		}
		idx := make([]int, 0, hi-lo+1)
		for n := lo; n <= hi; n++ {
			idx = append(idx, n-1)
		}
		return idx, nil
	}
	return nil, fmt.Errorf("%w: %q", models.ErrUnknownSelection, tok)
}

// matchKey finds the hit whose key equals s, exactly first and then case-insensitively.
func matchKey(s string, presented []models.SearchHit) (int, bool) {
	if s == "" {
		return 0, false
	}
	for i, h := range presented {
		if h.Key == s {
			return i, true
		}
	}
	for i, h := range presented {
		if strings.EqualFold(h.Key, s) {
			return i, true
		}
	}
	return 0, false
}

func parseRange(tok string) (int, int, bool) {
	a, b, found := strings.Cut(tok, "-")
	if !found {
		return 0, 0, false
	}
	lo, err := strconv.Atoi(a)
	if err != nil {
		return 0, 0, false
	}
	hi, err := strconv.Atoi(b)
	if err != nil {
		return 0, 0, false
	}
	return lo, hi, true
}
