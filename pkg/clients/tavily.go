package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/drmaniak/discovery-dojo/pkg/schema"
)

const defaultTavilyURL = "https://api.tavily.com/search"

// TavilyConfig configures the Tavily-backed searcher.
type TavilyConfig struct {
	APIKey  string
	BaseURL string        // optional, defaults to the hosted API
	Timeout time.Duration // per request, 0 defaults to 30s
}

// TavilySearcher implements Searcher over the Tavily search API.
type TavilySearcher struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewTavilySearcher creates a searcher from cfg.
func NewTavilySearcher(cfg TavilyConfig) (*TavilySearcher, error) {
	if cfg.APIKey == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "tavily api key is empty")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultTavilyURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TavilySearcher{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

type tavilyRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search runs one query and returns up to maxResults hits in the API's
// relevance order.
func (s *TavilySearcher) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	body, err := json.Marshal(tavilyRequest{
		APIKey:     s.apiKey,
		Query:      query,
		MaxResults: maxResults,
	})
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "encoding search request failed").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "building search request failed").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "search request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"search returned %s", resp.Status).
			WithDetails(map[string]any{"body": string(snippet)})
	}

	var parsed tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "decoding search response failed").WithCause(err)
	}

	results := make([]SearchResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		results = append(results, SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
			Score:   r.Score,
		})
	}
	return results, nil
}

var _ Searcher = (*TavilySearcher)(nil)

// String renders a result as a compact one-liner for prompt assembly.
func (r SearchResult) String() string {
	return fmt.Sprintf("%s (%s): %s", r.Title, r.URL, r.Snippet)
}
