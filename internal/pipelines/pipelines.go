// Package pipelines assembles the shipped flows from the built-in node
// library: the research assistant graph, the research planning graph,
// and the text summarization graphs. Each flow is registered as a
// builder so every run gets a fresh graph.
package pipelines

import (
	"context"
	"log/slog"
	"time"

	"github.com/drmaniak/discovery-dojo/internal/expressions"
	"github.com/drmaniak/discovery-dojo/pkg/clients"
	"github.com/drmaniak/discovery-dojo/pkg/flow"
	"github.com/drmaniak/discovery-dojo/pkg/schema"
)

// Deps carries the collaborators and knobs the shipped flows need.
type Deps struct {
	Completer clients.Completer
	Searcher  clients.Searcher
	Index     clients.VectorIndex
	Embedder  clients.Embedder

	JQ  expressions.Engine // data reshaping
	CEL expressions.Engine // routing predicates

	Tracer flow.TraceSink
	Logger *slog.Logger

	// MaxRefineCycles bounds the critique loop; 0 defaults to 3.
	MaxRefineCycles int

	// MaxParallel bounds search fan-out; 0 means unbounded.
	MaxParallel int

	// OutputPath is where the research report lands; empty defaults to
	// output/research_idea.md.
	OutputPath string

	// PlanOutputPath is where the research plan lands; empty defaults
	// to output/research_plan.md.
	PlanOutputPath string

	// ChunkSize is the summarization chunk length in runes; 0 defaults
	// to 2000.
	ChunkSize int

	RetryWait time.Duration // per-node retry delay, 0 defaults to 1s
}

func (d Deps) refineCycles() int {
	if d.MaxRefineCycles <= 0 {
		return 3
	}
	return d.MaxRefineCycles
}

func (d Deps) outputPath() string {
	if d.OutputPath == "" {
		return "output/research_idea.md"
	}
	return d.OutputPath
}

func (d Deps) planOutputPath() string {
	if d.PlanOutputPath == "" {
		return "output/research_plan.md"
	}
	return d.PlanOutputPath
}

func (d Deps) chunkSize() int {
	if d.ChunkSize <= 0 {
		return 2000
	}
	return d.ChunkSize
}

func (d Deps) retryWait() time.Duration {
	if d.RetryWait <= 0 {
		return time.Second
	}
	return d.RetryWait
}

// Register adds the shipped flows to reg.
func Register(reg *flow.Registry, deps Deps) error {
	if err := reg.Register("research-assistant", func() (flow.Node, error) {
		return NewResearchFlow(deps)
	}); err != nil {
		return err
	}
	if err := reg.Register("research-plan", func() (flow.Node, error) {
		return NewPlanFlow(deps)
	}); err != nil {
		return err
	}
	if err := reg.Register("summarize", func() (flow.Node, error) {
		return NewSummarizeFlow(deps, false)
	}); err != nil {
		return err
	}
	return reg.Register("summarize-parallel", func() (flow.Node, error) {
		return NewSummarizeFlow(deps, true)
	})
}

// promptTask builds a node whose execute phase only renders a prompt
// string; the render runs in prepare so a bad shared store fails fast
// and is never retried.
func promptTask(name, outKey string, render func(shared *schema.Shared, params schema.Params) (string, error)) (*flow.Task, error) {
	return flow.NewTask(flow.TaskConfig{
		Name: name,
		Prep: func(ctx context.Context, shared *schema.Shared, params schema.Params) (any, error) {
			return render(shared, params)
		},
		Post: func(ctx context.Context, shared *schema.Shared, prep, exec any) (flow.Action, error) {
			shared.Set(outKey, prep)
			return flow.DefaultAction, nil
		},
	})
}

// chain wires nodes left to right on the default action and returns the
// first node.
func chain(ns ...flow.Node) flow.Node {
	for i := 0; i < len(ns)-1; i++ {
		ns[i].Then(ns[i+1])
	}
	return ns[0]
}
