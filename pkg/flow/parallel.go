package flow

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/drmaniak/discovery-dojo/pkg/schema"
)

// ParallelBatchConfig configures a ParallelBatchNode. The embedded
// BatchConfig keeps the batch contract; MaxParallel bounds the fan-out
// (0 means one goroutine per item).
type ParallelBatchConfig struct {
	BatchConfig
	MaxParallel int
}

// ParallelBatchNode is a BatchNode whose per-item executions run
// concurrently. The gather is index-stable: results reach post in
// input order regardless of completion order. The first failure by
// input position aborts the batch after all branches join; branches
// are not force-cancelled.
type ParallelBatchNode struct {
	BatchNode
	maxParallel int
}

// NewParallelBatch creates a ParallelBatchNode from cfg.
func NewParallelBatch(cfg ParallelBatchConfig) (*ParallelBatchNode, error) {
	if cfg.Name == "" {
		cfg.Name = "parallel-batch"
	}
	inner, err := NewBatch(cfg.BatchConfig)
	if err != nil {
		return nil, err
	}
	if cfg.MaxParallel < 0 {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "max parallel must be non-negative, got %d", cfg.MaxParallel)
	}
	return &ParallelBatchNode{BatchNode: *inner, maxParallel: cfg.MaxParallel}, nil
}

// Run executes the batch lifecycle with concurrent per-item executes.
func (p *ParallelBatchNode) Run(ctx context.Context, shared *schema.Shared) (Action, error) {
	items, err := p.prepItems(ctx, shared)
	if err != nil {
		return "", err
	}

	results := make([]any, len(items))
	errs := make([]error, len(items))
	pool := newWorkerPool(fanOut(p.maxParallel, len(items)))

	for i, item := range items {
		i, item := i, item
		if err := pool.submit(ctx, func() {
			defer recoverBranch(&errs[i])
			results[i], errs[i] = p.runItem(ctx, item)
		}); err != nil {
			errs[i] = err
			break
		}
	}
	pool.wait()

	for i, err := range errs {
		if err != nil {
			return "", wrapItemErr(err, i)
		}
	}

	return p.postResults(ctx, shared, items, results)
}

// ParallelBatchFlowConfig configures a ParallelBatchFlow.
type ParallelBatchFlowConfig struct {
	BatchFlowConfig
	MaxParallel int
}

// ParallelBatchFlow is a BatchFlow whose per-parameter-set sub-graph
// runs launch concurrently. All runs share the same shared store;
// branches must write disjoint keys (the store makes individual
// operations atomic, nothing more).
type ParallelBatchFlow struct {
	BatchFlow
	maxParallel int
}

// NewParallelBatchFlow creates a ParallelBatchFlow from cfg.
func NewParallelBatchFlow(cfg ParallelBatchFlowConfig) (*ParallelBatchFlow, error) {
	if cfg.Name == "" {
		cfg.Name = "parallel-batch-flow"
	}
	inner, err := NewBatchFlow(cfg.BatchFlowConfig)
	if err != nil {
		return nil, err
	}
	if cfg.MaxParallel < 0 {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "max parallel must be non-negative, got %d", cfg.MaxParallel)
	}
	return &ParallelBatchFlow{BatchFlow: *inner, maxParallel: cfg.MaxParallel}, nil
}

// RunSync executes the parallel batch flow with a background context.
func (pf *ParallelBatchFlow) RunSync(shared *schema.Shared) (Action, error) {
	return pf.Run(context.Background(), shared)
}

// Run fans out one sub-graph traversal per parameter set and joins
// them all before post.
func (pf *ParallelBatchFlow) Run(ctx context.Context, shared *schema.Shared) (Action, error) {
	ctx, err := pf.beginRun(ctx, shared)
	if err != nil {
		return "", err
	}

	action, err := pf.runSetsParallel(ctx, shared)
	pf.endRun(ctx, action, err)
	return action, err
}

func (pf *ParallelBatchFlow) runSetsParallel(ctx context.Context, shared *schema.Shared) (Action, error) {
	sets, err := pf.prepSets(ctx, shared)
	if err != nil {
		return "", err
	}

	errs := make([]error, len(sets))
	pool := newWorkerPool(fanOut(pf.maxParallel, len(sets)))

	for i, set := range sets {
		i, set := i, set
		if err := pool.submit(ctx, func() {
			defer recoverBranch(&errs[i])
			_, errs[i] = pf.orchestrate(ctx, shared, set)
		}); err != nil {
			errs[i] = err
			break
		}
	}
	pool.wait()

	for i, err := range errs {
		if err != nil {
			return "", wrapItemErr(err, i)
		}
	}

	return pf.postSets(ctx, shared, sets)
}

// fanOut resolves the pool size: the configured bound, or one worker
// per branch when unbounded.
func fanOut(maxParallel, branches int) int {
	if maxParallel > 0 {
		return maxParallel
	}
	if branches < 1 {
		return 1
	}
	return branches
}

// recoverBranch converts a panicking branch into an execution error so
// a single bad branch cannot take the process down.
func recoverBranch(slot *error) {
	if r := recover(); r != nil {
		slog.Error("parallel branch panicked", "panic", r, "stack", string(debug.Stack()))
		*slot = schema.NewErrorf(schema.ErrCodeExecution, "branch panicked: %v", r)
	}
}
