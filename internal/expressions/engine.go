// Package expressions provides the expression engines the built-in
// router and transform nodes evaluate against the shared context.
package expressions

import "context"

// Engine evaluates expressions against flow data.
// Three implementations: CEL (routing conditions), Expr (deterministic
// logic), GoJQ (data transforms).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// Scope keys exposed to every engine. Routing expressions see the
// shared store snapshot, the invocation parameters, and, inside batch
// items, the current item.
const (
	ScopeShared = "shared"
	ScopeParams = "params"
	ScopeItem   = "item"
)
