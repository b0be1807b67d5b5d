// Package compose writes a displayed timeline out as a Markdown report.
package compose

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/sike25/chronicle-poc/internal/chronicle"
	"github.com/sike25/chronicle-poc/internal/timeline"
)

// Report is what a composed document is built from.
// DocumentCount is 0 when unknown.
type Report struct {
	Set           chronicle.EnrichedPeriodSet
	DocumentCount int
	DateRange     chronicle.DateRange
}

// Markdown composes the report: a heading, an overview table with one row
// per period, and a section per period with its summary and citations.
func Markdown(r Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", timeline.Title(r.Set.Query))

	if r.DocumentCount > 0 {
		fmt.Fprintf(&b, "%s documents", humanize.Comma(int64(r.DocumentCount)))
		if r.DateRange.Min != "" && r.DateRange.Max != "" {
			fmt.Fprintf(&b, " from %s to %s", r.DateRange.Min, r.DateRange.Max)
		}
		fmt.Fprintf(&b, ", grouped into %d time %s.\n\n", len(r.Set.Buckets), plural(len(r.Set.Buckets), "period"))
	}

	if len(r.Set.Buckets) == 0 {
		b.WriteString("No data for this query.\n")
		return b.String()
	}

	b.WriteString("| Period | Articles | Title |\n|---|---|---|\n")
	for _, p := range timeline.Present(r.Set) {
		fmt.Fprintf(&b, "| %s | %s | %s |\n", cell(p.Label), p.CountLabel, cell(p.Title))
	}

	var sections []string
	for _, bucket := range r.Set.Buckets {
		sections = append(sections, section(timeline.Detail(bucket)))
	}
	b.WriteString("\n" + strings.Join(sections, "\n\n---\n\n") + "\n")
	return b.String()
}

func section(v timeline.DetailView) string {
	s := fmt.Sprintf("## %s: %s\n\n%s", v.Period, v.Title, v.Summary)
	if len(v.Citations) > 0 {
		refs := make([]string, len(v.Citations))
		for i, c := range v.Citations {
			refs[i] = "- " + c
		}
		s += "\n\n**Articles:**\n" + strings.Join(refs, "\n")
	}
	return s
}

// cell keeps a value from breaking the table row.
func cell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", `\|`), "\n", " ")
}

func plural(n int, noun string) string {
	if n == 1 {
		return noun
	}
	return noun + "s"
}
