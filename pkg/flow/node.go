// Package flow is a small graph-based task runner. Nodes expose a
// prepare → execute → post lifecycle and are wired into directed graphs
// with string-labeled edges; the action returned by a node's post phase
// selects the successor edge. Flows walk the graph to a routing dead
// end, retry each node's execute phase under a bounded fixed-delay
// policy, and come in batch and parallel variants.
package flow

import (
	"context"
	"log/slog"

	"github.com/drmaniak/discovery-dojo/pkg/schema"
)

// Action is the string label a node's post phase returns to select the
// successor edge.
type Action = string

// DefaultAction is the edge label used when a post phase returns "".
const DefaultAction Action = "default"

// Node is anything runnable inside a flow graph: a task, a batch task,
// or a whole nested flow.
type Node interface {
	// Run executes the node's full lifecycle against the shared store
	// and returns the action used to select the successor edge.
	Run(ctx context.Context, shared *schema.Shared) (Action, error)

	// Name returns the node's diagnostic name.
	Name() string

	// Then registers next under the default action label and returns it.
	Then(next Node) Node

	// On registers next under the given action label and returns it.
	// Re-registering a label overwrites the previous target.
	On(action Action, next Node) Node

	// Successor returns the target wired under the given action label.
	Successor(action Action) (Node, bool)

	// Successors returns a copy of the full labeled successor set.
	Successors() map[Action]Node

	// SetParams replaces the node's own parameters.
	SetParams(p schema.Params)

	// Params returns the node's own parameters.
	Params() schema.Params
}

// Base carries the wiring state common to every node kind: a name, the
// node's own parameters, and the labeled successor set. Wiring is a
// setup-time operation and is not safe for concurrent mutation.
type Base struct {
	name       string
	params     schema.Params
	successors map[Action]Node
}

// NewBase creates wiring state with the given diagnostic name.
func NewBase(name string) Base {
	return Base{name: name}
}

// Name returns the node's diagnostic name.
func (b *Base) Name() string { return b.name }

// Then registers next under the default action label and returns it.
func (b *Base) Then(next Node) Node {
	return b.On(DefaultAction, next)
}

// On registers next under the given action label and returns it,
// enabling chained wiring. An empty label means the default label.
// Overwriting an existing label is allowed and logged as a warning.
func (b *Base) On(action Action, next Node) Node {
	if next == nil {
		slog.Warn("ignoring nil successor", "node", b.name, "action", action)
		return nil
	}
	if action == "" {
		action = DefaultAction
	}
	if b.successors == nil {
		b.successors = make(map[Action]Node)
	}
	if _, exists := b.successors[action]; exists {
		slog.Warn("overwriting successor", "node", b.name, "action", action)
	}
	b.successors[action] = next
	return next
}

// Successor returns the target wired under the given action label.
// An empty label means the default label.
func (b *Base) Successor(action Action) (Node, bool) {
	if action == "" {
		action = DefaultAction
	}
	next, ok := b.successors[action]
	return next, ok
}

// Successors returns a copy of the full labeled successor set.
func (b *Base) Successors() map[Action]Node {
	out := make(map[Action]Node, len(b.successors))
	for action, next := range b.successors {
		out[action] = next
	}
	return out
}

// SetParams replaces the node's own parameters with a clone of p.
func (b *Base) SetParams(p schema.Params) {
	b.params = p.Clone()
}

// Params returns the node's own parameters.
func (b *Base) Params() schema.Params { return b.params }

type attemptKey struct{}

type paramsKey struct{}

// WithAttempt returns a context carrying the 0-based retry attempt
// index. Set by the retry wrapper before each execute call.
func WithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, attemptKey{}, attempt)
}

// Attempt extracts the 0-based retry attempt index from the context.
// Returns 0 outside a retry wrapper, i.e. on the first attempt.
func Attempt(ctx context.Context) int {
	n, _ := ctx.Value(attemptKey{}).(int)
	return n
}

// withInvocationParams returns a context carrying the parameters a
// parent flow resolved for the current node invocation. Params travel
// on the context rather than by mutating node state so that parallel
// batch variants can run the same graph concurrently with different
// parameter sets.
func withInvocationParams(ctx context.Context, p schema.Params) context.Context {
	return context.WithValue(ctx, paramsKey{}, p)
}

// invocationParams extracts the parameters resolved for the current
// invocation, or nil when the node runs standalone.
func invocationParams(ctx context.Context) (schema.Params, bool) {
	p, ok := ctx.Value(paramsKey{}).(schema.Params)
	return p, ok
}

// resolveParams returns the effective parameters for a node invocation:
// the parent flow's resolved set when running under a flow, the node's
// own parameters otherwise.
func resolveParams(ctx context.Context, own schema.Params) schema.Params {
	if p, ok := invocationParams(ctx); ok {
		return p
	}
	return own
}
