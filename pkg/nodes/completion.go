package nodes

import (
	"context"
	"encoding/json"
	"time"

	"github.com/drmaniak/discovery-dojo/pkg/clients"
	"github.com/drmaniak/discovery-dojo/pkg/flow"
	"github.com/drmaniak/discovery-dojo/pkg/schema"
)

// CompletionConfig configures an LLM completion node.
type CompletionConfig struct {
	Name       string
	Client     clients.Completer
	PromptKey  string // shared key holding the prompt text
	OutputKey  string // shared key the completion is written to
	Schema     json.RawMessage // optional structured-output schema
	MaxRetries int
	Wait       time.Duration
}

// Completion creates a node that reads a prompt from the shared store,
// calls the completion collaborator in its execute phase (so the call
// is retried under the node policy), and writes the text back.
func Completion(cfg CompletionConfig) (*flow.Task, error) {
	if cfg.Client == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "completion client is nil")
	}
	if cfg.PromptKey == "" || cfg.OutputKey == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "completion prompt and output keys are required")
	}
	name := cfg.Name
	if name == "" {
		name = "completion"
	}

	return flow.NewTask(flow.TaskConfig{
		Name:       name,
		MaxRetries: cfg.MaxRetries,
		Wait:       cfg.Wait,
		Prep: func(ctx context.Context, shared *schema.Shared, params schema.Params) (any, error) {
			prompt := shared.GetString(cfg.PromptKey)
			if prompt == "" {
				return nil, schema.NewErrorf(schema.ErrCodeValidation,
					"shared key %q holds no prompt", cfg.PromptKey)
			}
			return prompt, nil
		},
		Exec: func(ctx context.Context, prep any) (any, error) {
			prompt, _ := prep.(string)
			return cfg.Client.Complete(ctx, prompt, cfg.Schema)
		},
		Post: func(ctx context.Context, shared *schema.Shared, prep, exec any) (flow.Action, error) {
			shared.Set(cfg.OutputKey, exec)
			return flow.DefaultAction, nil
		},
	})
}
