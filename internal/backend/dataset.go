package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/sike25/chronicle-poc/internal/chronicle"
)

// datasetEntry is one query in a chronicle_data.json dump.
type datasetEntry struct {
	TotalArticles int       `json:"total_articles"`
	DateRange     DateRange `json:"date_range"`
	Buckets       []Bucket  `json:"buckets"`
}

// DatasetBackend answers from a pre-computed chronicle_data.json dump
// instead of a live service.
type DatasetBackend struct {
	// Delay is waited before each answer to mimic a live backend.
	Delay time.Duration

	raw     map[string]json.RawMessage
	entries map[string]datasetEntry
}

// LoadDataset reads a dump from disk.
func LoadDataset(path string) (*DatasetBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("backend dataset_path is not set")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}
	return NewDatasetBackend(data)
}

// NewDatasetBackend parses a dump keyed by query.
func NewDatasetBackend(data []byte) (*DatasetBackend, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing dataset: %w", err)
	}
	entries := make(map[string]datasetEntry, len(raw))
	for q, msg := range raw {
		var e datasetEntry
		if err := json.Unmarshal(msg, &e); err != nil {
			return nil, fmt.Errorf("parsing dataset entry %q: %w", q, err)
		}
		if dr, ok := articleRange(e.Buckets); ok {
			e.DateRange = dr
		}
		entries[q] = e
	}
	return &DatasetBackend{raw: raw, entries: entries}, nil
}

// Queries returns the queries present in the dump, sorted.
func (d *DatasetBackend) Queries() []string {
	qs := make([]string, 0, len(d.entries))
	for q := range d.entries {
		qs = append(qs, q)
	}
	sort.Strings(qs)
	return qs
}

// Search reports the entry's document count and date range. The range comes
// from the article dates when any are readable: dumps store a string min/max
// of DD/MM/YYYY values, which is not chronological.
func (d *DatasetBackend) Search(ctx context.Context, query string) (*SearchResponse, error) {
	e, err := d.lookup(ctx, query)
	if err != nil {
		return nil, err
	}
	dr := e.DateRange
	return &SearchResponse{
		Query:         query,
		DocumentCount: IntPtr(e.TotalArticles),
		DateRange:     &dr,
		Raw:           d.raw[query],
	}, nil
}

// Organize returns the buckets stripped down to id, label and count, the
// way the live backend answers before enrichment.
func (d *DatasetBackend) Organize(ctx context.Context, query string) (*OrganizeResponse, error) {
	e, err := d.lookup(ctx, query)
	if err != nil {
		return nil, err
	}
	buckets := make([]Bucket, len(e.Buckets))
	for i, b := range e.Buckets {
		buckets[i] = Bucket{
			BucketID:     b.BucketID,
			BucketLabel:  b.BucketLabel,
			ArticleCount: b.ArticleCount,
		}
	}
	return &OrganizeResponse{
		Query:       query,
		BucketCount: IntPtr(len(buckets)),
		Buckets:     buckets,
	}, nil
}

// Enrich returns the full buckets.
func (d *DatasetBackend) Enrich(ctx context.Context, query string) (*EnrichResponse, error) {
	e, err := d.lookup(ctx, query)
	if err != nil {
		return nil, err
	}
	buckets := make([]Bucket, len(e.Buckets))
	copy(buckets, e.Buckets)
	return &EnrichResponse{Query: query, Buckets: buckets}, nil
}

// articleRange returns the earliest and latest article dates across buckets.
func articleRange(buckets []Bucket) (DateRange, bool) {
	var first, last chronicle.Date
	found := false
	for _, b := range buckets {
		for _, a := range b.Articles {
			d, err := chronicle.ParseDate(a.Date)
			if err != nil {
				continue
			}
			if !found || d.Before(first) {
				first = d
			}
			if !found || last.Before(d) {
				last = d
			}
			found = true
		}
	}
	if !found {
		return DateRange{}, false
	}
	return DateRange{Min: first.Wire(), Max: last.Wire()}, true
}

func (d *DatasetBackend) lookup(ctx context.Context, query string) (datasetEntry, error) {
	if d.Delay > 0 {
		t := time.NewTimer(d.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return datasetEntry{}, ctx.Err()
		case <-t.C:
		}
	}
	e, ok := d.entries[query]
	if !ok {
		return datasetEntry{}, &StatusError{Code: http.StatusNotFound, Message: "Query not found"}
	}
	return e, nil
}
