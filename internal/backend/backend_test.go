package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *HTTPBackend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPBackend(srv.URL, "", 5*time.Second)
}

func TestHTTPSearch(t *testing.T) {
	b := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/search" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("query"); got != "oil spill" {
			t.Errorf("expected query 'oil spill', got %q", got)
		}
		w.Write([]byte(`{"query":"oil spill","documentCount":42,"dateRange":{"min":"1970","max":"1995"}}`))
	})

	resp, err := b.Search(context.Background(), "oil spill")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.DocumentCount == nil || *resp.DocumentCount != 42 {
		t.Errorf("expected 42 documents, got %v", resp.DocumentCount)
	}
	if resp.DateRange == nil || resp.DateRange.Min != "1970" || resp.DateRange.Max != "1995" {
		t.Errorf("unexpected date range %+v", resp.DateRange)
	}
	if !strings.Contains(string(resp.Raw), "documentCount") {
		t.Error("expected raw body to be kept")
	}
}

func TestHTTPOrganizeAndEnrichPostQuery(t *testing.T) {
	var paths []string
	b := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected JSON content type, got %q", ct)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["query"] != "oil_spill" {
			t.Errorf("unexpected body %v (%v)", body, err)
		}
		switch r.URL.Path {
		case "/api/organize":
			w.Write([]byte(`{"query":"oil_spill","bucketCount":1,"buckets":[{"bucket_id":1,"bucket_label":"1970s","article_count":3}]}`))
		case "/api/enrich":
			w.Write([]byte(`{"query":"oil_spill","buckets":[{"bucket_id":1,"bucket_label":"1970s","bucket_title":"T","bucket_summary":"S","article_count":0,"articles":[]}]}`))
		}
	})

	org, err := b.Organize(context.Background(), "oil_spill")
	if err != nil {
		t.Fatalf("organize: %v", err)
	}
	if org.BucketCount == nil || *org.BucketCount != 1 || len(org.Buckets) != 1 {
		t.Fatalf("unexpected organize response %+v", org)
	}
	if org.Buckets[0].Articles != nil {
		t.Error("expected articles to be absent after organize")
	}

	enr, err := b.Enrich(context.Background(), "oil_spill")
	if err != nil {
		t.Fatalf("enrich: %v", err)
	}
	if enr.Buckets[0].Articles == nil {
		t.Error("expected empty, non-nil articles after enrich")
	}
	if enr.Buckets[0].BucketTitle == nil || *enr.Buckets[0].BucketTitle != "T" {
		t.Error("expected title T")
	}

	if strings.Join(paths, ",") != "/api/organize,/api/enrich" {
		t.Errorf("unexpected paths %v", paths)
	}
}

func TestHTTPStatusError(t *testing.T) {
	b := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Query not found"}`))
	})

	_, err := b.Search(context.Background(), "nope")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != http.StatusNotFound || se.Message != "Query not found" {
		t.Errorf("unexpected status error %+v", se)
	}
}

func TestHTTPMalformedBody(t *testing.T) {
	b := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>oops</html>`))
	})
	if _, err := b.Organize(context.Background(), "q"); err == nil {
		t.Error("expected decode error")
	}
}

func TestHTTPAuthorizationHeader(t *testing.T) {
	t.Setenv("CHRONICLE_TEST_KEY", "secret")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL+"/", "CHRONICLE_TEST_KEY", time.Second)
	if err := b.Ping(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestErrorMessageTruncates(t *testing.T) {
	long := strings.Repeat("x", maxErrorBody+10)
	got := errorMessage([]byte(long))
	if len(got) != maxErrorBody+3 || !strings.HasSuffix(got, "...") {
		t.Errorf("unexpected truncation: %d chars", len(got))
	}
}

func loadTestDataset(t *testing.T) *DatasetBackend {
	t.Helper()
	ds, err := LoadDataset(filepath.Join("testdata", "chronicle_data.json"))
	if err != nil {
		t.Fatalf("failed to load dataset: %v", err)
	}
	return ds
}

func TestDatasetQueries(t *testing.T) {
	ds := loadTestDataset(t)
	if got := strings.Join(ds.Queries(), ","); got != "fuel_subsidy,oil_spill" {
		t.Errorf("unexpected queries %q", got)
	}
}

func TestDatasetStages(t *testing.T) {
	ds := loadTestDataset(t)
	ctx := context.Background()

	s, err := ds.Search(ctx, "oil_spill")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	// the dump's own range is a string min/max; the answer is chronological
	if *s.DocumentCount != 3 || s.DateRange.Min != "14/02/1978" || s.DateRange.Max != "02/11/1995" {
		t.Errorf("unexpected search response %+v", s)
	}
	if len(s.Raw) == 0 {
		t.Error("expected raw entry")
	}

	o, err := ds.Organize(ctx, "oil_spill")
	if err != nil {
		t.Fatalf("organize: %v", err)
	}
	if *o.BucketCount != 3 {
		t.Errorf("expected 3 buckets, got %d", *o.BucketCount)
	}
	for _, b := range o.Buckets {
		if b.BucketTitle != nil || b.BucketSummary != nil || b.Articles != nil {
			t.Errorf("expected organize to strip enrichment from %q", b.BucketLabel)
		}
	}

	e, err := ds.Enrich(ctx, "oil_spill")
	if err != nil {
		t.Fatalf("enrich: %v", err)
	}
	if len(e.Buckets) != 3 || e.Buckets[0].BucketLabel != "1975-1979" || len(e.Buckets[0].Articles) != 2 {
		t.Errorf("unexpected enrich response %+v", e)
	}
}

func TestDatasetRangeFromArticles(t *testing.T) {
	tests := []struct {
		name     string
		dump     string
		min, max string
	}{
		{
			name: "lexical range reordered",
			dump: `{"q":{"total_articles":3,"date_range":{"min":"02/11/1995","max":"23/12/1979"},"buckets":[
				{"bucket_label":"1975-1979","article_count":2,"articles":[{"date":"23/12/1979"},{"date":"14/02/1978"}]},
				{"bucket_label":"1995-1999","article_count":1,"articles":[{"date":"02/11/1995"}]}]}}`,
			min: "14/02/1978",
			max: "02/11/1995",
		},
		{
			name: "same year compares months and days",
			dump: `{"q":{"total_articles":2,"date_range":{"min":"01/12/2012","max":"9/1/2012"},"buckets":[
				{"bucket_label":"2012","article_count":2,"articles":[{"date":"9/1/2012"},{"date":"01/12/2012"}]}]}}`,
			min: "09/01/2012",
			max: "01/12/2012",
		},
		{
			name: "unreadable dates keep the dump range",
			dump: `{"q":{"total_articles":1,"date_range":{"min":"1970","max":"1995"},"buckets":[
				{"bucket_label":"1970s","article_count":1,"articles":[{"date":"sometime"}]}]}}`,
			min: "1970",
			max: "1995",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := NewDatasetBackend([]byte(tt.dump))
			if err != nil {
				t.Fatalf("parsing dump: %v", err)
			}
			s, err := ds.Search(context.Background(), "q")
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if s.DateRange.Min != tt.min || s.DateRange.Max != tt.max {
				t.Errorf("expected %s - %s, got %s - %s", tt.min, tt.max, s.DateRange.Min, s.DateRange.Max)
			}
		})
	}
}

func TestDatasetUnknownQuery(t *testing.T) {
	ds := loadTestDataset(t)
	_, err := ds.Search(context.Background(), "missing")
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Errorf("expected 404 status error, got %v", err)
	}
}

func TestDatasetDelayHonorsContext(t *testing.T) {
	ds := loadTestDataset(t)
	ds.Delay = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ds.Search(ctx, "oil_spill"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestCreate(t *testing.T) {
	if _, err := Create("http", "", "", "", 0, 0); err == nil {
		t.Error("expected error for missing base_url")
	}
	if _, err := Create("carrier-pigeon", "", "", "", 0, 0); err == nil {
		t.Error("expected error for unknown kind")
	}
	b, err := Create("dataset", "", "", filepath.Join("testdata", "chronicle_data.json"), 0, time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds, ok := b.(*DatasetBackend); !ok || ds.Delay != time.Millisecond {
		t.Errorf("expected dataset backend with delay, got %T", b)
	}
}
