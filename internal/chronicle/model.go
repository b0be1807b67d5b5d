// Package chronicle holds the data model shared by every pipeline stage:
// search results, time buckets, articles and period sets, together with the
// validation that turns loosely-typed backend records into these shapes.
package chronicle

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DateRange is the span of publication dates reported by a search.
// Values are kept as the backend sent them; either end may be empty.
type DateRange struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

// SearchResult is the output of the search stage.
type SearchResult struct {
	Query         string
	DocumentCount int
	DateRange     DateRange
	RawData       json.RawMessage // passed through untouched for later stages
}

// Article is one archived document inside a bucket.
type Article struct {
	Filename string
	Headline string
	Source   string
	Date     Date
}

// Bucket is a contiguous time period with its documents.
// A nil Articles slice means the articles were not part of the response;
// a non-nil empty slice means the bucket is known to hold none.
type Bucket struct {
	Label        string
	Title        string
	Summary      string
	ArticleCount int
	Articles     []Article
}

// PeriodSet is the ordered (chronological) list of buckets for a query.
type PeriodSet struct {
	Query       string
	BucketCount int
	Buckets     []Bucket
}

// EnrichedPeriodSet has the shape of a PeriodSet with titles and summaries
// filled in on every bucket.
type EnrichedPeriodSet PeriodSet

// Validate checks the search result invariants.
func (r SearchResult) Validate() error {
	if r.DocumentCount < 0 {
		return fmt.Errorf("negative document count %d", r.DocumentCount)
	}
	return r.DateRange.Validate()
}

// Validate checks that Min does not come after Max when both are present.
// Values that cannot be read as dates are rejected.
func (d DateRange) Validate() error {
	if d.Min == "" || d.Max == "" {
		return nil
	}
	lo, err := parseLooseDate(d.Min)
	if err != nil {
		return fmt.Errorf("date range min: %w", err)
	}
	hi, err := parseLooseDate(d.Max)
	if err != nil {
		return fmt.Errorf("date range max: %w", err)
	}
	if lo.After(hi) {
		return fmt.Errorf("date range min %q is after max %q", d.Min, d.Max)
	}
	return nil
}

// ArticlesKnown reports whether the bucket's articles were provided.
func (b Bucket) ArticlesKnown() bool {
	return b.Articles != nil
}

// Validate checks the bucket invariants. Title and summary are not required
// here; see ValidateEnriched.
func (b Bucket) Validate() error {
	if strings.TrimSpace(b.Label) == "" {
		return fmt.Errorf("bucket has no label")
	}
	if b.ArticleCount < 0 {
		return fmt.Errorf("bucket %q: negative article count %d", b.Label, b.ArticleCount)
	}
	if !b.ArticlesKnown() {
		return nil
	}
	if b.ArticleCount != len(b.Articles) {
		return fmt.Errorf("bucket %q: article count %d but %d articles", b.Label, b.ArticleCount, len(b.Articles))
	}
	for i, a := range b.Articles {
		if err := a.Date.Validate(); err != nil {
			return fmt.Errorf("bucket %q: article %d: %w", b.Label, i, err)
		}
	}
	return nil
}

// ValidateEnriched checks a bucket after enrichment: everything Validate
// checks plus a non-empty title and summary.
func (b Bucket) ValidateEnriched() error {
	if err := b.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(b.Title) == "" {
		return fmt.Errorf("bucket %q: missing title", b.Label)
	}
	if strings.TrimSpace(b.Summary) == "" {
		return fmt.Errorf("bucket %q: missing summary", b.Label)
	}
	return nil
}

// CountMatches reports whether BucketCount agrees with the bucket list.
func (p PeriodSet) CountMatches() bool {
	return p.BucketCount == len(p.Buckets)
}

// Labels returns the bucket labels in order.
func (p PeriodSet) Labels() []string {
	labels := make([]string, len(p.Buckets))
	for i, b := range p.Buckets {
		labels[i] = b.Label
	}
	return labels
}
