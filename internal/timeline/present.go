// Package timeline turns an enriched period set into what the presentation
// layer draws: evenly spaced points, tooltip text and bucket detail views.
package timeline

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sike25/chronicle-poc/internal/chronicle"
)

// Point is one bucket projected onto the horizontal axis.
type Point struct {
	Index      int     `json:"index"`
	Position   float64 `json:"position"`
	Label      string  `json:"label"`
	CountLabel string  `json:"count_label"`
	Title      string  `json:"title"`
	Summary    string  `json:"summary"`

	Bucket *chronicle.Bucket `json:"-"`
}

// Left returns the point's CSS offset, e.g. "16.6667%".
func (p Point) Left() string {
	return fmt.Sprintf("%.4f%%", p.Position*100)
}

// DetailView is the expanded view of a single bucket.
type DetailView struct {
	Period    string   `json:"period"`
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	Citations []string `json:"citations"`
}

// Present returns one point per bucket, in bucket order, each centered in
// an equal-width slot: position (i+0.5)/K. Dates do not affect spacing.
func Present(set chronicle.EnrichedPeriodSet) []Point {
	k := len(set.Buckets)
	if k == 0 {
		return []Point{}
	}
	points := make([]Point, k)
	for i := range set.Buckets {
		b := &set.Buckets[i]
		points[i] = Point{
			Index:      i,
			Position:   (float64(i) + 0.5) / float64(k),
			Label:      b.Label,
			CountLabel: CountLabel(b.ArticleCount),
			Title:      b.Title,
			Summary:    b.Summary,
			Bucket:     b,
		}
	}
	return points
}

// Detail builds the expanded view of a bucket.
func Detail(b chronicle.Bucket) DetailView {
	citations := make([]string, len(b.Articles))
	for i, a := range b.Articles {
		citations[i] = Citation(a)
	}
	return DetailView{
		Period:    b.Label,
		Title:     b.Title,
		Summary:   b.Summary,
		Citations: citations,
	}
}

// Dismiss closes a detail view. There is no state to release.
func Dismiss() {}

// Citation formats "{headline}, {source}, {day} {Month} {year}."
func Citation(a chronicle.Article) string {
	return fmt.Sprintf("%s, %s, %s.", a.Headline, a.Source, a.Date)
}

// CountLabel returns "1 article" or "N articles".
func CountLabel(n int) string {
	if n == 1 {
		return "1 article"
	}
	return fmt.Sprintf("%d articles", n)
}

// Title returns the heading shown above a timeline: "oil_spill" becomes
// "Oil Spill Coverage Over Time".
func Title(query string) string {
	name := strings.Join(strings.Fields(strings.ReplaceAll(query, "_", " ")), " ")
	return cases.Title(language.English, cases.NoLower).String(name) + " Coverage Over Time"
}
