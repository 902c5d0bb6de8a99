package nodes

import (
	"context"
	"time"

	"github.com/drmaniak/discovery-dojo/pkg/clients"
	"github.com/drmaniak/discovery-dojo/pkg/flow"
	"github.com/drmaniak/discovery-dojo/pkg/schema"
)

// SearchConfig configures a web-search fan-out node.
type SearchConfig struct {
	Name       string
	Client     clients.Searcher
	QueriesKey string // shared key holding the query strings
	ResultsKey string // shared key the ordered result groups land in
	MaxResults int    // per query; 0 defaults to 5
	MaxRetries int
	Wait       time.Duration

	// Parallel fans queries out concurrently; MaxParallel bounds the
	// fan-out when set.
	Parallel    bool
	MaxParallel int
}

// Search creates a batch node that runs one web search per query found
// under QueriesKey and stores the result groups, in query order, under
// ResultsKey.
func Search(cfg SearchConfig) (flow.Node, error) {
	if cfg.Client == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "search client is nil")
	}
	if cfg.QueriesKey == "" || cfg.ResultsKey == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "search queries and results keys are required")
	}
	name := cfg.Name
	if name == "" {
		name = "search"
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}

	batchCfg := flow.BatchConfig{
		Name:       name,
		MaxRetries: cfg.MaxRetries,
		Wait:       cfg.Wait,
		Prep: func(ctx context.Context, shared *schema.Shared, params schema.Params) ([]any, error) {
			queries := shared.GetSlice(cfg.QueriesKey)
			if queries == nil {
				return nil, schema.NewErrorf(schema.ErrCodeValidation,
					"shared key %q holds no query list", cfg.QueriesKey)
			}
			return queries, nil
		},
		ExecItem: func(ctx context.Context, item any) (any, error) {
			query, ok := item.(string)
			if !ok {
				return nil, schema.NewErrorf(schema.ErrCodeValidation, "query is %T, want string", item)
			}
			return cfg.Client.Search(ctx, query, maxResults)
		},
		Post: func(ctx context.Context, shared *schema.Shared, items, results []any) (flow.Action, error) {
			shared.Set(cfg.ResultsKey, results)
			return flow.DefaultAction, nil
		},
	}

	if cfg.Parallel {
		return flow.NewParallelBatch(flow.ParallelBatchConfig{
			BatchConfig: batchCfg,
			MaxParallel: cfg.MaxParallel,
		})
	}
	return flow.NewBatch(batchCfg)
}
