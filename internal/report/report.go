// Package report turns reconciliation results into notification text.
package report

import (
	"strings"

	"github.com/beekhof/calendar-notifier/internal/detect"
)

// Separator goes between descriptions of the same category.
const Separator = "\n\n────────────\n\n"

// Format renders created, modified and deleted descriptions in that order.
// Empty categories contribute nothing, so a result without changes formats
// to the empty string.
func Format(r detect.Result) string {
	var b strings.Builder
	for _, lines := range [][]string{r.Created, r.Modified, r.Deleted} {
		if len(lines) == 0 {
			continue
		}
		b.WriteString("\n\n")
		b.WriteString(strings.Join(lines, Separator))
		b.WriteString("\n\n")
	}
	return b.String()
}

// Section is one calendar's formatted report.
type Section struct {
	Name string
	Body string
}

// Combine joins the non-empty sections in order, each under its calendar name.
func Combine(sections []Section) string {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		if s.Body == "" {
			continue
		}
		parts = append(parts, "📅 カレンダー名: "+s.Name+"\n"+s.Body)
	}
	return strings.Join(parts, "\n\n")
}
