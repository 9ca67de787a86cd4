package messaging

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/SearchPipe/internal/models"
)

// Selection instructions appended to every result list.
const (
	MultipleSelectionHint = `Reply with the numbers or IDs of the items you want (for example "1 3" or "1-2"), "all", "more" for more results, or "search <keywords>" to search again.`
	SingleSelectionHint   = `Reply with the number or ID of the item you want, "more" for more results, or "search <keywords>" to search again.`
)

// Render turns a structured workflow reply into chat text.
func Render(out models.Outbound) string {
	var b strings.Builder
	if out.Note != "" {
		b.WriteString(out.Note)
		b.WriteString("\n\n")
	}
	b.WriteString(out.Text)

	switch out.Kind {
	case models.OutboundPrompt:
		if len(out.Options) > 0 {
			b.WriteString("\nOptions: ")
			b.WriteString(strings.Join(out.Options, ", "))
		}
	case models.OutboundResults:
		for i, h := range out.Hits {
			fmt.Fprintf(&b, "\n%d. %s [%s]", i+1, h.Title, h.Key)
			if h.Description != "" {
				b.WriteString("\n   ")
				b.WriteString(h.Description)
			}
		}
		b.WriteString("\n\n")
		if out.MultipleSelection {
			b.WriteString(MultipleSelectionHint)
		} else {
			b.WriteString(SingleSelectionHint)
		}
	}
	return b.String()
}

// RenderAll renders replies as separate chat messages, skipping empty ones.
func RenderAll(outs []models.Outbound) []string {
	msgs := make([]string, 0, len(outs))
	for _, o := range outs {
		if s := strings.TrimSpace(Render(o)); s != "" {
			msgs = append(msgs, s)
		}
	}
	return msgs
}
