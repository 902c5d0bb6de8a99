// Package nodes is the built-in node library: expression routing, data
// transforms, and collaborator-backed tasks (completion, search,
// vector lookup, file write), all constructed as engine nodes.
package nodes

import (
	"context"

	"github.com/drmaniak/discovery-dojo/internal/expressions"
	"github.com/drmaniak/discovery-dojo/pkg/flow"
	"github.com/drmaniak/discovery-dojo/pkg/schema"
)

// RouterConfig configures an expression router node.
type RouterConfig struct {
	Name       string
	Engine     expressions.Engine
	Expression string

	// OnTrue / OnFalse are the actions returned for a boolean result.
	// Defaults: "true" / "false". A string result is used verbatim as
	// the action.
	OnTrue  flow.Action
	OnFalse flow.Action
}

// Router creates a node that evaluates an expression against the
// shared store and invocation parameters and returns the result as its
// routing action.
func Router(cfg RouterConfig) (*flow.Task, error) {
	if cfg.Engine == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "router engine is nil")
	}
	if cfg.Expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "router expression is empty")
	}
	name := cfg.Name
	if name == "" {
		name = "router"
	}
	onTrue := cfg.OnTrue
	if onTrue == "" {
		onTrue = "true"
	}
	onFalse := cfg.OnFalse
	if onFalse == "" {
		onFalse = "false"
	}

	return flow.NewTask(flow.TaskConfig{
		Name: name,
		Prep: func(ctx context.Context, shared *schema.Shared, params schema.Params) (any, error) {
			return map[string]any{
				expressions.ScopeShared: shared.Snapshot(),
				expressions.ScopeParams: map[string]any(params),
			}, nil
		},
		Exec: func(ctx context.Context, prep any) (any, error) {
			scope, _ := prep.(map[string]any)
			return cfg.Engine.Evaluate(ctx, cfg.Expression, scope)
		},
		Post: func(ctx context.Context, shared *schema.Shared, prep, exec any) (flow.Action, error) {
			switch v := exec.(type) {
			case bool:
				if v {
					return onTrue, nil
				}
				return onFalse, nil
			case string:
				return v, nil
			default:
				return "", schema.NewErrorf(schema.ErrCodeExpression,
					"router expression %q produced %T, want bool or string", cfg.Expression, exec)
			}
		},
	})
}
