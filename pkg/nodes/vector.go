package nodes

import (
	"context"
	"time"

	"github.com/drmaniak/discovery-dojo/pkg/clients"
	"github.com/drmaniak/discovery-dojo/pkg/flow"
	"github.com/drmaniak/discovery-dojo/pkg/schema"
)

// VectorQueryConfig configures a vector similarity lookup node.
type VectorQueryConfig struct {
	Name       string
	Index      clients.VectorIndex
	Embedder   clients.Embedder
	TextKey    string // shared key holding the text to embed
	ResultsKey string // shared key the scored records land in
	TopK       int    // 0 defaults to 10
	MaxRetries int
	Wait       time.Duration
}

// VectorQuery creates a node that embeds a shared text value and looks
// up the nearest records in the vector index, both inside the execute
// phase so the two remote calls share one retry policy.
func VectorQuery(cfg VectorQueryConfig) (*flow.Task, error) {
	if cfg.Index == nil || cfg.Embedder == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "vector index and embedder are required")
	}
	if cfg.TextKey == "" || cfg.ResultsKey == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "vector text and results keys are required")
	}
	name := cfg.Name
	if name == "" {
		name = "vector-query"
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 10
	}

	return flow.NewTask(flow.TaskConfig{
		Name:       name,
		MaxRetries: cfg.MaxRetries,
		Wait:       cfg.Wait,
		Prep: func(ctx context.Context, shared *schema.Shared, params schema.Params) (any, error) {
			text := shared.GetString(cfg.TextKey)
			if text == "" {
				return nil, schema.NewErrorf(schema.ErrCodeValidation,
					"shared key %q holds no text", cfg.TextKey)
			}
			return text, nil
		},
		Exec: func(ctx context.Context, prep any) (any, error) {
			text, _ := prep.(string)
			vector, err := cfg.Embedder.Embed(ctx, text)
			if err != nil {
				return nil, err
			}
			return cfg.Index.Query(ctx, vector, topK)
		},
		Post: func(ctx context.Context, shared *schema.Shared, prep, exec any) (flow.Action, error) {
			shared.Set(cfg.ResultsKey, exec)
			return flow.DefaultAction, nil
		},
	})
}
