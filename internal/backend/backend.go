// Package backend talks to the service that searches, organizes and
// summarizes the archive. The pipeline only sees the Backend interface and
// the wire records defined here.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Backend is the search/organize/enrich service.
type Backend interface {
	Search(ctx context.Context, query string) (*SearchResponse, error)
	Organize(ctx context.Context, query string) (*OrganizeResponse, error)
	Enrich(ctx context.Context, query string) (*EnrichResponse, error)
}

// DateRange is the wire form of a date span.
type DateRange struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

// SearchResponse is returned by Search. Pointer fields are nil when the
// backend left them out.
type SearchResponse struct {
	Query         string     `json:"query"`
	DocumentCount *int       `json:"documentCount"`
	DateRange     *DateRange `json:"dateRange"`

	// Raw is the undecoded response body.
	Raw json.RawMessage `json:"-"`
}

// Article is the wire form of an article. Date is DD/MM/YYYY.
type Article struct {
	Date     string `json:"date"`
	Headline string `json:"headline"`
	Source   string `json:"source"`
	Filename string `json:"filename"`
}

// Bucket is the wire form of a time period. Organize responses carry only
// the id, label and count; Enrich responses fill in everything.
type Bucket struct {
	BucketID      *int      `json:"bucket_id,omitempty"`
	BucketLabel   string    `json:"bucket_label"`
	BucketTitle   *string   `json:"bucket_title,omitempty"`
	BucketSummary *string   `json:"bucket_summary,omitempty"`
	ArticleCount  *int      `json:"article_count"`
	Articles      []Article `json:"articles,omitempty"`
}

// OrganizeResponse is returned by Organize.
type OrganizeResponse struct {
	Query       string   `json:"query"`
	BucketCount *int     `json:"bucketCount"`
	Buckets     []Bucket `json:"buckets"`
}

// EnrichResponse is returned by Enrich.
type EnrichResponse struct {
	Query   string   `json:"query"`
	Buckets []Bucket `json:"buckets"`
}

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d", e.Code)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Code, e.Message)
}

// Create builds a backend from configuration values.
func Create(kind, baseURL, apiKeyEnv, datasetPath string, timeout, delay time.Duration) (Backend, error) {
	switch strings.ToLower(kind) {
	case "", "http":
		if baseURL == "" {
			return nil, fmt.Errorf("backend base_url is not set")
		}
		slog.Info("using HTTP backend", "component", "backend", "url", baseURL)
		return NewHTTPBackend(baseURL, apiKeyEnv, timeout), nil
	case "dataset":
		ds, err := LoadDataset(datasetPath)
		if err != nil {
			return nil, err
		}
		ds.Delay = delay
		slog.Info("using dataset backend", "component", "backend", "path", datasetPath, "queries", len(ds.Queries()))
		return ds, nil
	default:
		return nil, fmt.Errorf("unknown backend kind %q", kind)
	}
}

// IntPtr and StrPtr help build wire records.
func IntPtr(n int) *int { return &n }

func StrPtr(s string) *string { return &s }
