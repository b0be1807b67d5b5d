package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/sike25/chronicle-poc/internal/backend"
	"github.com/sike25/chronicle-poc/internal/chronicle"
)

// Search runs the search call and converts its answer. Errors are
// *chronicle.StageError.
func Search(ctx context.Context, b backend.Backend, query string) (chronicle.SearchResult, error) {
	resp, err := b.Search(ctx, query)
	if err != nil {
		return chronicle.SearchResult{}, chronicle.NewStageError(chronicle.StageSearch, chronicle.ErrSearchFailed, err, "query %q", query)
	}
	if resp == nil {
		return chronicle.SearchResult{}, chronicle.NewStageError(chronicle.StageSearch, chronicle.ErrSearchFailed, nil, "empty response")
	}
	if err := checkEcho(query, resp.Query); err != nil {
		return chronicle.SearchResult{}, chronicle.NewStageError(chronicle.StageSearch, chronicle.ErrSearchFailed, err, "malformed response")
	}
	if resp.DocumentCount == nil {
		return chronicle.SearchResult{}, chronicle.NewStageError(chronicle.StageSearch, chronicle.ErrSearchFailed, nil, "malformed response: missing documentCount")
	}
	if resp.DateRange == nil {
		return chronicle.SearchResult{}, chronicle.NewStageError(chronicle.StageSearch, chronicle.ErrSearchFailed, nil, "malformed response: missing dateRange")
	}

	r := chronicle.SearchResult{
		Query:         query,
		DocumentCount: *resp.DocumentCount,
		DateRange:     chronicle.DateRange{Min: resp.DateRange.Min, Max: resp.DateRange.Max},
		RawData:       resp.Raw,
	}
	if err := r.Validate(); err != nil {
		return chronicle.SearchResult{}, chronicle.NewStageError(chronicle.StageSearch, chronicle.ErrSearchFailed, err, "malformed response")
	}
	return r, nil
}

// Organize groups the searched documents into time periods. The backend's
// bucketCount is authoritative and must match the bucket list.
func Organize(ctx context.Context, b backend.Backend, sr chronicle.SearchResult) (chronicle.PeriodSet, error) {
	resp, err := b.Organize(ctx, sr.Query)
	if err != nil {
		return chronicle.PeriodSet{}, chronicle.NewStageError(chronicle.StageOrganize, chronicle.ErrOrganizeFailed, err, "query %q", sr.Query)
	}
	if resp == nil {
		return chronicle.PeriodSet{}, chronicle.NewStageError(chronicle.StageOrganize, chronicle.ErrOrganizeFailed, nil, "empty response")
	}
	if err := checkEcho(sr.Query, resp.Query); err != nil {
		return chronicle.PeriodSet{}, chronicle.NewStageError(chronicle.StageOrganize, chronicle.ErrOrganizeFailed, err, "malformed response")
	}
	if resp.BucketCount == nil {
		return chronicle.PeriodSet{}, chronicle.NewStageError(chronicle.StageOrganize, chronicle.ErrOrganizeFailed, nil, "malformed response: missing bucketCount")
	}
	if *resp.BucketCount != len(resp.Buckets) {
		return chronicle.PeriodSet{}, chronicle.NewStageError(chronicle.StageOrganize, chronicle.ErrInconsistentBucketCount, nil,
			"bucketCount is %d but %d buckets were returned", *resp.BucketCount, len(resp.Buckets))
	}

	buckets, err := convertBuckets(resp.Buckets, false)
	if err != nil {
		return chronicle.PeriodSet{}, chronicle.NewStageError(chronicle.StageOrganize, chronicle.ErrOrganizeFailed, err, "malformed response")
	}
	return chronicle.PeriodSet{Query: sr.Query, BucketCount: *resp.BucketCount, Buckets: buckets}, nil
}

// Enrich fills in titles and summaries. Enrichment may not add, drop or
// reorder buckets, change their article counts, or leave a required field
// empty.
func Enrich(ctx context.Context, b backend.Backend, ps chronicle.PeriodSet) (chronicle.EnrichedPeriodSet, error) {
	resp, err := b.Enrich(ctx, ps.Query)
	if err != nil {
		return chronicle.EnrichedPeriodSet{}, chronicle.NewStageError(chronicle.StageEnrich, chronicle.ErrEnrichFailed, err, "query %q", ps.Query)
	}
	if resp == nil {
		return chronicle.EnrichedPeriodSet{}, chronicle.NewStageError(chronicle.StageEnrich, chronicle.ErrEnrichFailed, nil, "empty response")
	}
	if err := checkEcho(ps.Query, resp.Query); err != nil {
		return chronicle.EnrichedPeriodSet{}, chronicle.NewStageError(chronicle.StageEnrich, chronicle.ErrEnrichFailed, err, "malformed response")
	}
	if len(resp.Buckets) != ps.BucketCount {
		return chronicle.EnrichedPeriodSet{}, chronicle.NewStageError(chronicle.StageEnrich, chronicle.ErrEnrichmentMismatch, nil,
			"expected %d buckets, got %d", ps.BucketCount, len(resp.Buckets))
	}

	buckets, err := convertBuckets(resp.Buckets, true)
	if err != nil {
		return chronicle.EnrichedPeriodSet{}, chronicle.NewStageError(chronicle.StageEnrich, chronicle.ErrEnrichmentMismatch, err, "incomplete bucket")
	}
	for i, eb := range buckets {
		ob := ps.Buckets[i]
		if eb.Label != ob.Label {
			return chronicle.EnrichedPeriodSet{}, chronicle.NewStageError(chronicle.StageEnrich, chronicle.ErrEnrichmentMismatch, nil,
				"bucket %d is %q, expected %q", i, eb.Label, ob.Label)
		}
		if eb.ArticleCount != ob.ArticleCount {
			return chronicle.EnrichedPeriodSet{}, chronicle.NewStageError(chronicle.StageEnrich, chronicle.ErrEnrichmentMismatch, nil,
				"bucket %q has %d articles, expected %d", eb.Label, eb.ArticleCount, ob.ArticleCount)
		}
		if !eb.ArticlesKnown() && ob.ArticlesKnown() {
			buckets[i].Articles = ob.Articles
		}
	}
	return chronicle.EnrichedPeriodSet{Query: ps.Query, BucketCount: ps.BucketCount, Buckets: buckets}, nil
}

// checkEcho rejects answers for a different query. An omitted echo is
// accepted.
func checkEcho(query, echoed string) error {
	if echoed != "" && echoed != query {
		return fmt.Errorf("answer is for query %q", echoed)
	}
	return nil
}

func convertBuckets(wire []backend.Bucket, enriched bool) ([]chronicle.Bucket, error) {
	buckets := make([]chronicle.Bucket, len(wire))
	for i, w := range wire {
		b, err := convertBucket(w)
		if err != nil {
			return nil, fmt.Errorf("bucket %d: %w", i, err)
		}
		if enriched {
			err = b.ValidateEnriched()
		} else {
			err = b.Validate()
		}
		if err != nil {
			return nil, err
		}
		buckets[i] = b
	}
	return buckets, nil
}

func convertBucket(w backend.Bucket) (chronicle.Bucket, error) {
	if w.ArticleCount == nil {
		return chronicle.Bucket{}, fmt.Errorf("missing article_count")
	}
	b := chronicle.Bucket{
		Label:        strings.TrimSpace(w.BucketLabel),
		ArticleCount: *w.ArticleCount,
	}
	if w.BucketTitle != nil {
		b.Title = *w.BucketTitle
	}
	if w.BucketSummary != nil {
		b.Summary = *w.BucketSummary
	}
	if w.Articles != nil {
		b.Articles = make([]chronicle.Article, len(w.Articles))
		for i, a := range w.Articles {
			d, err := chronicle.ParseDate(a.Date)
			if err != nil {
				return chronicle.Bucket{}, fmt.Errorf("article %d: %w", i, err)
			}
			b.Articles[i] = chronicle.Article{
				Filename: a.Filename,
				Headline: a.Headline,
				Source:   a.Source,
				Date:     d,
			}
		}
	}
	return b, nil
}
