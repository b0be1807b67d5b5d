package compose

import (
	"strings"
	"testing"

	"github.com/sike25/chronicle-poc/internal/chronicle"
)

func oilSpill() chronicle.EnrichedPeriodSet {
	return chronicle.EnrichedPeriodSet{
		Query:       "oil_spill",
		BucketCount: 2,
		Buckets: []chronicle.Bucket{
			{
				Label:        "1975-1979",
				Title:        "Delta Spills Reach Headlines",
				Summary:      "Early reports of crude spills.",
				ArticleCount: 1,
				Articles: []chronicle.Article{
					{Headline: "Crude Oil Floods Farmlands", Source: "Daily Times", Date: chronicle.Date{Day: 14, Month: 2, Year: 1978}},
				},
			},
			{Label: "1985-1989", Title: "Regulation | Debate", Summary: "Lawmakers debated penalties.", ArticleCount: 0},
		},
	}
}

func TestMarkdown(t *testing.T) {
	md := Markdown(Report{
		Set:           oilSpill(),
		DocumentCount: 1200,
		DateRange:     chronicle.DateRange{Min: "14/02/1978", Max: "02/11/1989"},
	})

	for _, want := range []string{
		"# Oil Spill Coverage Over Time\n",
		"1,200 documents from 14/02/1978 to 02/11/1989, grouped into 2 time periods.",
		"| 1975-1979 | 1 article | Delta Spills Reach Headlines |",
		`| 1985-1989 | 0 articles | Regulation \| Debate |`,
		"## 1975-1979: Delta Spills Reach Headlines",
		"- Crude Oil Floods Farmlands, Daily Times, 14 February 1978.",
		"\n---\n",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("expected %q in report:\n%s", want, md)
		}
	}

	// order follows the buckets
	if strings.Index(md, "## 1975-1979") > strings.Index(md, "## 1985-1989") {
		t.Error("expected sections in bucket order")
	}
}

func TestMarkdownEmpty(t *testing.T) {
	md := Markdown(Report{Set: chronicle.EnrichedPeriodSet{Query: "nothing"}})
	if !strings.Contains(md, "No data for this query.") {
		t.Errorf("expected no-data report, got:\n%s", md)
	}
	if strings.Contains(md, "documents") {
		t.Error("expected no document line when the count is unknown")
	}
}
