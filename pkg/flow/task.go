package flow

import (
	"context"
	"time"

	"github.com/drmaniak/discovery-dojo/pkg/schema"
)

// TaskConfig configures a Task. Only Exec is required in practice;
// every phase hook is optional and defaults to a no-op.
type TaskConfig struct {
	Name       string
	MaxRetries int           // total exec attempts; 0 defaults to 1
	Wait       time.Duration // fixed delay between attempts

	// Prep reads from the shared store and the invocation parameters.
	// Its result is passed verbatim to Exec. By convention it does not
	// mutate the store.
	Prep func(ctx context.Context, shared *schema.Shared, params schema.Params) (any, error)

	// Exec is the core computation, wrapped by the retry policy. It must
	// not touch the shared store; the current attempt index is readable
	// via Attempt(ctx).
	Exec func(ctx context.Context, prep any) (any, error)

	// Post writes results into the shared store and returns the action
	// label used for routing. An empty action means DefaultAction.
	Post func(ctx context.Context, shared *schema.Shared, prep, exec any) (Action, error)

	// Fallback runs after the final exec attempt fails. Returning a
	// result suppresses the failure; returning an error propagates it.
	Fallback func(ctx context.Context, prep any, execErr error) (any, error)

	// OnRetry observes each failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// Task is the smallest schedulable unit: a three-phase lifecycle with a
// bounded-retry wrapper around the execute phase.
type Task struct {
	Base
	policy   RetryPolicy
	prep     func(ctx context.Context, shared *schema.Shared, params schema.Params) (any, error)
	exec     func(ctx context.Context, prep any) (any, error)
	post     func(ctx context.Context, shared *schema.Shared, prep, exec any) (Action, error)
	fallback func(ctx context.Context, prep any, execErr error) (any, error)
	onRetry  func(attempt int, err error)
}

// NewTask creates a Task from cfg. A negative MaxRetries or Wait is a
// validation error.
func NewTask(cfg TaskConfig) (*Task, error) {
	policy, err := RetryPolicy{MaxRetries: cfg.MaxRetries, Wait: cfg.Wait}.normalize()
	if err != nil {
		return nil, err
	}
	name := cfg.Name
	if name == "" {
		name = "task"
	}
	return &Task{
		Base:     NewBase(name),
		policy:   policy,
		prep:     cfg.Prep,
		exec:     cfg.Exec,
		post:     cfg.Post,
		fallback: cfg.Fallback,
		onRetry:  cfg.OnRetry,
	}, nil
}

// Run executes prepare, execute-with-retry, and post in order.
// Prepare and post errors propagate immediately; only execute errors
// are retried.
func (t *Task) Run(ctx context.Context, shared *schema.Shared) (Action, error) {
	params := resolveParams(ctx, t.params)

	var prep any
	if t.prep != nil {
		var err error
		prep, err = t.prep(ctx, shared, params)
		if err != nil {
			return "", schema.NewError(schema.ErrCodeExecution, "prep failed").
				WithNode(t.name).WithCause(err)
		}
	}

	var fallback func(context.Context, error) (any, error)
	if t.fallback != nil {
		fallback = func(ctx context.Context, execErr error) (any, error) {
			return t.fallback(ctx, prep, execErr)
		}
	}

	var exec any
	if t.exec != nil {
		var err error
		exec, err = runExec(ctx, t.name, t.policy, t.onRetry, fallback, func(ctx context.Context) (any, error) {
			return t.exec(ctx, prep)
		})
		if err != nil {
			return "", err
		}
	}

	if t.post == nil {
		return DefaultAction, nil
	}
	action, err := t.post(ctx, shared, prep, exec)
	if err != nil {
		return "", schema.NewError(schema.ErrCodeExecution, "post failed").
			WithNode(t.name).WithCause(err)
	}
	if action == "" {
		action = DefaultAction
	}
	return action, nil
}
