package schema

import "sync"

// Shared is the caller-owned store threaded through an entire flow run.
// It is the sole channel nodes use to exchange data; the engine never
// inspects its contents.
//
// Individual operations are atomic so that concurrent branches of a
// parallel batch may write disjoint keys safely. Read-modify-write
// sequences across operations are NOT atomic; a stronger consistency
// discipline is the caller's responsibility.
type Shared struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewShared creates a Shared store seeded with the given values.
// A nil seed creates an empty store.
func NewShared(seed map[string]any) *Shared {
	values := make(map[string]any, len(seed))
	for k, v := range seed {
		values[k] = v
	}
	return &Shared{values: values}
}

// Get returns the value for key and whether it was present.
func (s *Shared) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores a value under key, overwriting any previous value.
func (s *Shared) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Delete removes a key.
func (s *Shared) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Len returns the number of stored keys.
func (s *Shared) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Keys returns all stored keys in unspecified order.
func (s *Shared) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys
}

// Snapshot returns a shallow copy of the store contents.
// Values are not deep-copied; mutating nested structures still races.
func (s *Shared) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Merge stores every key-value pair from values, overwriting collisions.
func (s *Shared) Merge(values map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.values[k] = v
	}
}

// GetString returns the value for key as a string, or "" if absent or
// not a string.
func (s *Shared) GetString(key string) string {
	v, _ := s.Get(key)
	str, _ := v.(string)
	return str
}

// GetInt returns the value for key as an int, or 0 if absent or not an
// integer-typed value.
func (s *Shared) GetInt(key string) int {
	v, _ := s.Get(key)
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// GetSlice returns the value for key as []any, or nil if absent or not
// a slice.
func (s *Shared) GetSlice(key string) []any {
	v, _ := s.Get(key)
	sl, _ := v.([]any)
	return sl
}

// Append appends items to the slice stored under key, creating it if
// absent. The whole read-modify-write is performed under the lock.
func (s *Shared) Append(key string, items ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, _ := s.values[key].([]any)
	s.values[key] = append(existing, items...)
}
