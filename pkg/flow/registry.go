package flow

import (
	"sort"
	"sync"

	"github.com/drmaniak/discovery-dojo/pkg/schema"
)

// Builder produces a fresh graph for one run. Graphs hold wiring state,
// so registered flows are built per run rather than shared.
type Builder func() (Node, error)

// Registry is a thread-safe name → flow builder registry.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]Builder)}
}

// Register adds a builder under name. Duplicate names are a conflict.
func (r *Registry) Register(name string, b Builder) error {
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "flow name is empty")
	}
	if b == nil {
		return schema.NewError(schema.ErrCodeValidation, "flow builder is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.builders[name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "flow %q already registered", name)
	}
	r.builders[name] = b
	return nil
}

// Build constructs a fresh graph for the named flow.
func (r *Registry) Build(name string) (Node, error) {
	r.mu.RLock()
	b, ok := r.builders[name]
	r.mu.RUnlock()

	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "flow %q not registered", name)
	}
	return b()
}

// Names returns all registered flow names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
