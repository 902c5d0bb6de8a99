package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/drmaniak/discovery-dojo/internal/logging"
	"github.com/drmaniak/discovery-dojo/pkg/schema"
)

// FlowConfig configures a Flow.
type FlowConfig struct {
	Name  string
	Start Node // entry node, required

	// Tracer receives run trace events; nil disables tracing.
	Tracer TraceSink

	// Validator, when set, checks the shared store once at run entry.
	Validator *schema.Validator

	// Logger receives engine diagnostics; nil means slog.Default.
	Logger *slog.Logger
}

// Flow walks a node graph from its start node, using each node's
// returned action to select the successor edge, until no matching
// successor exists. A Flow is itself a Node, so whole flows nest as
// sub-graphs; the terminal action of the inner traversal becomes the
// composite node's action.
type Flow struct {
	Base
	start     Node
	tracer    TraceSink
	validator *schema.Validator
	logger    *slog.Logger
}

// NewFlow creates a Flow from cfg. A nil start node is a validation
// error.
func NewFlow(cfg FlowConfig) (*Flow, error) {
	if cfg.Start == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "flow has no start node")
	}
	name := cfg.Name
	if name == "" {
		name = "flow"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = NopSink{}
	}
	return &Flow{
		Base:      NewBase(name),
		start:     cfg.Start,
		tracer:    tracer,
		validator: cfg.Validator,
		logger:    logger,
	}, nil
}

// Start returns the flow's entry node.
func (f *Flow) Start() Node { return f.start }

// RunSync executes the flow to termination on the calling goroutine
// with a background context (the blocking discipline).
func (f *Flow) RunSync(shared *schema.Shared) (Action, error) {
	return f.Run(context.Background(), shared)
}

// Run executes the flow to termination and returns the final action
// produced by the terminal node's post phase. An unrecovered node
// failure aborts the run; partial writes to the shared store remain.
func (f *Flow) Run(ctx context.Context, shared *schema.Shared) (Action, error) {
	ctx, err := f.beginRun(ctx, shared)
	if err != nil {
		return "", err
	}

	action, err := f.orchestrate(ctx, shared, nil)
	f.endRun(ctx, action, err)
	return action, err
}

// beginRun validates the shared store, assigns a run ID when the run
// is not nested under another flow, and records the run start.
func (f *Flow) beginRun(ctx context.Context, shared *schema.Shared) (context.Context, error) {
	if shared == nil {
		return ctx, schema.NewError(schema.ErrCodeValidation, "shared context is nil")
	}
	if f.validator != nil {
		if err := f.validator.Validate(shared); err != nil {
			return ctx, err
		}
	}
	if logging.RunID(ctx) == "" {
		ctx = logging.WithRunID(ctx, uuid.NewString())
	}
	ctx = logging.WithFlow(ctx, f.name)
	f.emit(ctx, Event{Type: EventRunStarted})
	return ctx, nil
}

// endRun records the run outcome.
func (f *Flow) endRun(ctx context.Context, action Action, err error) {
	if err != nil {
		f.emit(ctx, Event{Type: EventRunFailed, Error: err.Error()})
		return
	}
	f.emit(ctx, Event{Type: EventRunFinished, Action: action})
}

// orchestrate is the graph walk. extra carries one batch iteration's
// parameter set and takes precedence over the flow's own parameters,
// which in turn take precedence over the current node's.
func (f *Flow) orchestrate(ctx context.Context, shared *schema.Shared, extra schema.Params) (Action, error) {
	current := f.start
	last := DefaultAction
	flowParams := resolveParams(ctx, f.params)

	for current != nil {
		merged := flowParams.MergeOver(current.Params())
		if extra != nil {
			merged = extra.MergeOver(merged)
		}

		nodeCtx := logging.WithNode(ctx, current.Name())
		nodeCtx = withInvocationParams(nodeCtx, merged)

		f.emit(nodeCtx, Event{Type: EventNodeStarted, Node: current.Name()})
		action, err := current.Run(nodeCtx, shared)
		if err != nil {
			f.emit(nodeCtx, Event{Type: EventNodeFailed, Node: current.Name(), Error: err.Error()})
			return "", err
		}
		if action == "" {
			action = DefaultAction
		}
		f.emit(nodeCtx, Event{Type: EventNodeFinished, Node: current.Name(), Action: action})
		last = action

		next, ok := current.Successor(action)
		if !ok {
			// Routing dead end is the sole terminal condition.
			f.logger.DebugContext(nodeCtx, "flow terminated",
				"node", current.Name(), "action", action)
			break
		}
		current = next
	}

	return last, nil
}

// emit records a trace event, filling in correlation fields from the
// context. Sink failures are diagnostics, never run failures.
func (f *Flow) emit(ctx context.Context, ev Event) {
	ev.RunID = logging.RunID(ctx)
	ev.Flow = logging.Flow(ctx)
	if ev.Flow == "" {
		ev.Flow = f.name
	}
	ev.Timestamp = time.Now().UTC()
	if err := f.tracer.Record(ctx, ev); err != nil {
		f.logger.WarnContext(ctx, "trace record failed", "error", err)
	}
}

// BatchFlowConfig configures a BatchFlow.
type BatchFlowConfig struct {
	Name  string
	Start Node // entry node of the wrapped sub-graph, required

	// Prep yields the ordered parameter sets, one sub-graph run each.
	Prep func(ctx context.Context, shared *schema.Shared, params schema.Params) ([]schema.Params, error)

	// Post runs after every iteration completed, receiving the sets in
	// order. Optional; the default action is returned when unset.
	Post func(ctx context.Context, shared *schema.Shared, sets []schema.Params) (Action, error)

	Tracer    TraceSink
	Validator *schema.Validator
	Logger    *slog.Logger
}

// BatchFlow runs its wrapped sub-graph once per parameter set yielded
// by its prepare phase, strictly sequentially, against the same shared
// store for every iteration: later iterations observe earlier writes.
type BatchFlow struct {
	Flow
	prep func(ctx context.Context, shared *schema.Shared, params schema.Params) ([]schema.Params, error)
	post func(ctx context.Context, shared *schema.Shared, sets []schema.Params) (Action, error)
}

// NewBatchFlow creates a BatchFlow from cfg.
func NewBatchFlow(cfg BatchFlowConfig) (*BatchFlow, error) {
	name := cfg.Name
	if name == "" {
		name = "batch-flow"
	}
	inner, err := NewFlow(FlowConfig{
		Name:      name,
		Start:     cfg.Start,
		Tracer:    cfg.Tracer,
		Validator: cfg.Validator,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &BatchFlow{Flow: *inner, prep: cfg.Prep, post: cfg.Post}, nil
}

// RunSync executes the batch flow with a background context.
func (bf *BatchFlow) RunSync(shared *schema.Shared) (Action, error) {
	return bf.Run(context.Background(), shared)
}

// Run executes one sub-graph traversal per parameter set, in order.
func (bf *BatchFlow) Run(ctx context.Context, shared *schema.Shared) (Action, error) {
	ctx, err := bf.beginRun(ctx, shared)
	if err != nil {
		return "", err
	}

	action, err := bf.runSets(ctx, shared)
	bf.endRun(ctx, action, err)
	return action, err
}

func (bf *BatchFlow) runSets(ctx context.Context, shared *schema.Shared) (Action, error) {
	sets, err := bf.prepSets(ctx, shared)
	if err != nil {
		return "", err
	}

	for i, set := range sets {
		if _, err := bf.orchestrate(ctx, shared, set); err != nil {
			return "", wrapItemErr(err, i)
		}
	}

	return bf.postSets(ctx, shared, sets)
}

func (bf *BatchFlow) prepSets(ctx context.Context, shared *schema.Shared) ([]schema.Params, error) {
	if bf.prep == nil {
		return nil, nil
	}
	sets, err := bf.prep(ctx, shared, resolveParams(ctx, bf.params))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "prep failed").
			WithNode(bf.name).WithCause(err)
	}
	return sets, nil
}

func (bf *BatchFlow) postSets(ctx context.Context, shared *schema.Shared, sets []schema.Params) (Action, error) {
	if bf.post == nil {
		return DefaultAction, nil
	}
	action, err := bf.post(ctx, shared, sets)
	if err != nil {
		return "", schema.NewError(schema.ErrCodeExecution, "post failed").
			WithNode(bf.name).WithCause(err)
	}
	if action == "" {
		action = DefaultAction
	}
	return action, nil
}
