package flow

import (
	"context"
	"errors"
	"time"

	"github.com/drmaniak/discovery-dojo/pkg/schema"
)

// BatchConfig configures a BatchNode.
type BatchConfig struct {
	Name       string
	MaxRetries int           // total exec attempts per item; 0 defaults to 1
	Wait       time.Duration // fixed delay between attempts

	// Prep yields the ordered sequence of independent items.
	Prep func(ctx context.Context, shared *schema.Shared, params schema.Params) ([]any, error)

	// ExecItem is the per-item computation, retried independently per
	// item under the node's policy.
	ExecItem func(ctx context.Context, item any) (any, error)

	// Post receives the items and their results, both in input order.
	Post func(ctx context.Context, shared *schema.Shared, items, results []any) (Action, error)

	// ItemFallback runs after an item's final attempt fails; returning a
	// result substitutes it for that item, returning an error aborts the
	// whole batch.
	ItemFallback func(ctx context.Context, item any, execErr error) (any, error)

	// OnRetry observes each failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// BatchNode runs the same execute phase once per item yielded by its
// prepare phase, sequentially, collecting results in input order.
type BatchNode struct {
	Base
	policy       RetryPolicy
	prep         func(ctx context.Context, shared *schema.Shared, params schema.Params) ([]any, error)
	execItem     func(ctx context.Context, item any) (any, error)
	post         func(ctx context.Context, shared *schema.Shared, items, results []any) (Action, error)
	itemFallback func(ctx context.Context, item any, execErr error) (any, error)
	onRetry      func(attempt int, err error)
}

// NewBatch creates a BatchNode from cfg.
func NewBatch(cfg BatchConfig) (*BatchNode, error) {
	policy, err := RetryPolicy{MaxRetries: cfg.MaxRetries, Wait: cfg.Wait}.normalize()
	if err != nil {
		return nil, err
	}
	name := cfg.Name
	if name == "" {
		name = "batch"
	}
	return &BatchNode{
		Base:         NewBase(name),
		policy:       policy,
		prep:         cfg.Prep,
		execItem:     cfg.ExecItem,
		post:         cfg.Post,
		itemFallback: cfg.ItemFallback,
		onRetry:      cfg.OnRetry,
	}, nil
}

// Run executes the batch lifecycle: prepare, per-item execute with
// retry, then post with the ordered results. A failed item aborts the
// batch unless its fallback substitutes a result.
func (b *BatchNode) Run(ctx context.Context, shared *schema.Shared) (Action, error) {
	items, err := b.prepItems(ctx, shared)
	if err != nil {
		return "", err
	}

	results := make([]any, len(items))
	for i, item := range items {
		out, err := b.runItem(ctx, item)
		if err != nil {
			return "", wrapItemErr(err, i)
		}
		results[i] = out
	}

	return b.postResults(ctx, shared, items, results)
}

func (b *BatchNode) prepItems(ctx context.Context, shared *schema.Shared) ([]any, error) {
	if b.prep == nil {
		return nil, nil
	}
	items, err := b.prep(ctx, shared, resolveParams(ctx, b.params))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "prep failed").
			WithNode(b.name).WithCause(err)
	}
	return items, nil
}

// runItem executes a single item under the node's retry policy.
func (b *BatchNode) runItem(ctx context.Context, item any) (any, error) {
	if b.execItem == nil {
		return item, nil
	}
	var fallback func(context.Context, error) (any, error)
	if b.itemFallback != nil {
		fallback = func(ctx context.Context, execErr error) (any, error) {
			return b.itemFallback(ctx, item, execErr)
		}
	}
	return runExec(ctx, b.name, b.policy, b.onRetry, fallback, func(ctx context.Context) (any, error) {
		return b.execItem(ctx, item)
	})
}

func (b *BatchNode) postResults(ctx context.Context, shared *schema.Shared, items, results []any) (Action, error) {
	if b.post == nil {
		return DefaultAction, nil
	}
	action, err := b.post(ctx, shared, items, results)
	if err != nil {
		return "", schema.NewError(schema.ErrCodeExecution, "post failed").
			WithNode(b.name).WithCause(err)
	}
	if action == "" {
		action = DefaultAction
	}
	return action, nil
}

// wrapItemErr annotates a per-item failure with its input position. The
// caught error is copied first so a value shared across items or
// branches is never rewritten.
func wrapItemErr(err error, index int) error {
	var de *schema.DojoError
	if errors.As(err, &de) {
		annotated := *de
		annotated.Details = make(map[string]any, len(de.Details)+1)
		for k, v := range de.Details {
			annotated.Details[k] = v
		}
		annotated.Details["item_index"] = index
		return &annotated
	}
	return schema.NewErrorf(schema.ErrCodeExecution, "item %d failed", index).WithCause(err)
}
