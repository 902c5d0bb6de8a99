// Package clients defines the collaborator contracts the built-in
// nodes call through: text completion, web search, and vector
// similarity lookup. The engine's retry machinery is what gives these
// failure-prone calls a uniform recovery story.
package clients

import (
	"context"
	"encoding/json"
)

// Completer is a text-completion collaborator. When schema is non-nil
// the completion is requested as a structured value conforming to it.
type Completer interface {
	Complete(ctx context.Context, prompt string, schema json.RawMessage) (string, error)
}

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Score   float64 `json:"score,omitempty"`
}

// Searcher is a web-search collaborator returning results in relevance
// order.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// ScoredRecord is one vector similarity hit: the stored payload plus
// its similarity score.
type ScoredRecord struct {
	Record map[string]any `json:"record"`
	Score  float64        `json:"score"`
}

// VectorIndex is a vector-similarity collaborator returning the topK
// nearest records in descending score order.
type VectorIndex interface {
	Query(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error)
}

// Embedder turns text into a vector for similarity lookup.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
