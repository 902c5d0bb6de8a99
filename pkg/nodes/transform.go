package nodes

import (
	"context"

	"github.com/drmaniak/discovery-dojo/internal/expressions"
	"github.com/drmaniak/discovery-dojo/pkg/flow"
	"github.com/drmaniak/discovery-dojo/pkg/schema"
)

// TransformConfig configures a data transform node.
type TransformConfig struct {
	Name       string
	Engine     expressions.Engine
	Expression string

	// SourceKey selects the shared value handed to the expression under
	// "data"; empty means the whole store snapshot.
	SourceKey string

	// TargetKey is the shared key the result is written to.
	TargetKey string
}

// Transform creates a node that runs an expression (typically jq) over
// a shared value and writes the result back to the store.
func Transform(cfg TransformConfig) (*flow.Task, error) {
	if cfg.Engine == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "transform engine is nil")
	}
	if cfg.Expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "transform expression is empty")
	}
	if cfg.TargetKey == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "transform target key is empty")
	}
	name := cfg.Name
	if name == "" {
		name = "transform"
	}

	return flow.NewTask(flow.TaskConfig{
		Name: name,
		Prep: func(ctx context.Context, shared *schema.Shared, params schema.Params) (any, error) {
			if cfg.SourceKey == "" {
				return map[string]any{"data": shared.Snapshot()}, nil
			}
			v, ok := shared.Get(cfg.SourceKey)
			if !ok {
				return nil, schema.NewErrorf(schema.ErrCodeValidation,
					"shared key %q not found", cfg.SourceKey)
			}
			return map[string]any{"data": v}, nil
		},
		Exec: func(ctx context.Context, prep any) (any, error) {
			scope, _ := prep.(map[string]any)
			return cfg.Engine.Evaluate(ctx, cfg.Expression, scope)
		},
		Post: func(ctx context.Context, shared *schema.Shared, prep, exec any) (flow.Action, error) {
			shared.Set(cfg.TargetKey, exec)
			return flow.DefaultAction, nil
		},
	})
}
