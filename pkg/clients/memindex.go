package clients

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/drmaniak/discovery-dojo/pkg/schema"
)

// MemoryIndex is an in-process VectorIndex backed by brute-force cosine
// similarity. It serves local runs and tests; a remote vector store
// slots in behind the same interface.
type MemoryIndex struct {
	mu      sync.RWMutex
	vectors [][]float32
	records []map[string]any
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

// Add stores one record under its vector.
func (m *MemoryIndex) Add(vector []float32, record map[string]any) error {
	if len(vector) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "vector is empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors = append(m.vectors, vector)
	m.records = append(m.records, record)
	return nil
}

// Len returns the number of stored records.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Query returns the topK nearest records by cosine similarity, highest
// score first.
func (m *MemoryIndex) Query(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error) {
	if len(vector) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "query vector is empty")
	}
	if topK <= 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "topK must be positive")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	scored := make([]ScoredRecord, 0, len(m.records))
	for i, stored := range m.vectors {
		if len(stored) != len(vector) {
			continue
		}
		scored = append(scored, ScoredRecord{
			Record: m.records[i],
			Score:  cosine(vector, stored),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ VectorIndex = (*MemoryIndex)(nil)
