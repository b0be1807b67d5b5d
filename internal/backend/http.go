package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const maxErrorBody = 512

// HTTPBackend reaches the backend over its JSON API.
type HTTPBackend struct {
	BaseURL string
	APIKey  string
	client  *http.Client
}

// NewHTTPBackend creates a backend client. The API key, if any, is read
// from the environment variable apiKeyEnv.
func NewHTTPBackend(baseURL, apiKeyEnv string, timeout time.Duration) *HTTPBackend {
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	var key string
	if apiKeyEnv != "" {
		key = os.Getenv(apiKeyEnv)
	}
	return &HTTPBackend{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  key,
		client:  &http.Client{Timeout: timeout},
	}
}

// Ping checks that the backend answers on its root endpoint.
func (b *HTTPBackend) Ping(ctx context.Context) error {
	_, err := b.do(ctx, http.MethodGet, "/", nil, nil)
	return err
}

// Search asks for the document count and date range of a query.
func (b *HTTPBackend) Search(ctx context.Context, query string) (*SearchResponse, error) {
	var resp SearchResponse
	raw, err := b.do(ctx, http.MethodGet, "/api/search?query="+url.QueryEscape(query), nil, &resp)
	if err != nil {
		return nil, err
	}
	resp.Raw = raw
	return &resp, nil
}

// Organize asks for the query's documents grouped into time periods.
func (b *HTTPBackend) Organize(ctx context.Context, query string) (*OrganizeResponse, error) {
	var resp OrganizeResponse
	if _, err := b.do(ctx, http.MethodPost, "/api/organize", map[string]string{"query": query}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Enrich asks for titles, summaries and articles of every period.
func (b *HTTPBackend) Enrich(ctx context.Context, query string) (*EnrichResponse, error) {
	var resp EnrichResponse
	if _, err := b.do(ctx, http.MethodPost, "/api/enrich", map[string]string{"query": query}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (b *HTTPBackend) do(ctx context.Context, method, path string, payload, v any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.APIKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend request %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Message: errorMessage(data)}
	}

	if v != nil {
		if err := json.Unmarshal(data, v); err != nil {
			return nil, fmt.Errorf("decoding response: %w", err)
		}
	}
	return data, nil
}

// errorMessage extracts {"error": "..."} or falls back to a body excerpt.
func errorMessage(data []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return e.Error
	}
	s := strings.TrimSpace(string(data))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return s
}
