package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTavilySearcher_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req tavilyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-key", req.APIKey)
		assert.Equal(t, "graph engines", req.Query)
		assert.Equal(t, 3, req.MaxResults)

		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"title": "First", "url": "https://a", "content": "snippet a", "score": 0.9},
				{"title": "Second", "url": "https://b", "content": "snippet b", "score": 0.5},
			},
		})
	}))
	defer srv.Close()

	s, err := NewTavilySearcher(TavilyConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	results, err := s.Search(context.Background(), "graph engines", 3)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, SearchResult{Title: "First", URL: "https://a", Snippet: "snippet a", Score: 0.9}, results[0])
}

func TestTavilySearcher_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s, err := NewTavilySearcher(TavilyConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = s.Search(context.Background(), "q", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestNewTavilySearcher_RequiresKey(t *testing.T) {
	_, err := NewTavilySearcher(TavilyConfig{})
	assert.Error(t, err)
}
