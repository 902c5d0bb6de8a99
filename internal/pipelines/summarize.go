package pipelines

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/drmaniak/discovery-dojo/pkg/flow"
	"github.com/drmaniak/discovery-dojo/pkg/nodes"
	"github.com/drmaniak/discovery-dojo/pkg/schema"
)

// NewSummarizeFlow builds the text summarization graph. Short inputs
// are summarized in one shot; long inputs are chunked and summarized
// per chunk by a batch flow before a final combine pass:
//
//	ingest >> decide -short-> short-prompt >> summarize-short
//	                -long->  chunk >> per-chunk batch >> combine
//
// parallel switches the per-chunk batch to the concurrent variant.
func NewSummarizeFlow(deps Deps, parallel bool) (*flow.Flow, error) {
	if deps.Completer == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "summarize flow needs a completer")
	}
	if deps.CEL == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "summarize flow needs a cel engine")
	}
	wait := deps.retryWait()
	chunkSize := deps.chunkSize()

	ingest, err := ingestNode()
	if err != nil {
		return nil, err
	}
	decide, err := nodes.Router(nodes.RouterConfig{
		Name:       "decide-length",
		Engine:     deps.CEL,
		Expression: fmt.Sprintf("size(shared.text) > %d ? 'long' : 'short'", chunkSize),
	})
	if err != nil {
		return nil, err
	}

	shortPrompt, err := promptTask("short-prompt", "summary_prompt", renderShortPrompt)
	if err != nil {
		return nil, err
	}
	shortSummarize, err := nodes.Completion(nodes.CompletionConfig{
		Name:       "summarize-short",
		Client:     deps.Completer,
		PromptKey:  "summary_prompt",
		OutputKey:  "summary",
		MaxRetries: 2,
		Wait:       wait,
	})
	if err != nil {
		return nil, err
	}

	chunk, err := chunkNode(chunkSize)
	if err != nil {
		return nil, err
	}
	perChunk, err := newChunkBatch(deps, parallel)
	if err != nil {
		return nil, err
	}
	combine, err := combineNode(deps)
	if err != nil {
		return nil, err
	}

	chain(ingest, decide)
	decide.On("short", chain(shortPrompt, shortSummarize))
	decide.On("long", chain(chunk, perChunk, combine))

	name := "summarize"
	if parallel {
		name = "summarize-parallel"
	}
	return flow.NewFlow(flow.FlowConfig{
		Name:   name,
		Start:  ingest,
		Tracer: deps.Tracer,
		Logger: deps.Logger,
	})
}

// ingestNode fails the run early when no input text is present, so the
// router downstream never evaluates against an empty store.
func ingestNode() (*flow.Task, error) {
	return flow.NewTask(flow.TaskConfig{
		Name: "ingest",
		Prep: func(ctx context.Context, shared *schema.Shared, params schema.Params) (any, error) {
			if shared.GetString("text") == "" {
				return nil, schema.NewError(schema.ErrCodeValidation, "shared key \"text\" holds no input text")
			}
			return nil, nil
		},
	})
}

// chunkNode splits the input text into chunks of roughly size runes,
// breaking on whitespace where possible.
func chunkNode(size int) (*flow.Task, error) {
	return flow.NewTask(flow.TaskConfig{
		Name: "chunk",
		Prep: func(ctx context.Context, shared *schema.Shared, params schema.Params) (any, error) {
			return shared.GetString("text"), nil
		},
		Exec: func(ctx context.Context, prep any) (any, error) {
			text, _ := prep.(string)
			return splitChunks(text, size), nil
		},
		Post: func(ctx context.Context, shared *schema.Shared, prep, exec any) (flow.Action, error) {
			shared.Set("chunks", exec)
			return flow.DefaultAction, nil
		},
	})
}

// newChunkBatch wraps a single-node sub-graph that summarizes the chunk
// selected by the "chunk_index" parameter. Summaries land under indexed
// keys so the concurrent variant stays order-stable.
func newChunkBatch(deps Deps, parallel bool) (flow.Node, error) {
	summarizeChunk, err := summarizeChunkNode(deps)
	if err != nil {
		return nil, err
	}

	cfg := flow.BatchFlowConfig{
		Name:  "per-chunk",
		Start: summarizeChunk,
		Prep: func(ctx context.Context, shared *schema.Shared, params schema.Params) ([]schema.Params, error) {
			chunks := shared.GetSlice("chunks")
			sets := make([]schema.Params, len(chunks))
			for i := range chunks {
				sets[i] = schema.Params{"chunk_index": i}
			}
			return sets, nil
		},
		Tracer: deps.Tracer,
		Logger: deps.Logger,
	}

	if parallel {
		return flow.NewParallelBatchFlow(flow.ParallelBatchFlowConfig{
			BatchFlowConfig: cfg,
			MaxParallel:     deps.MaxParallel,
		})
	}
	return flow.NewBatchFlow(cfg)
}

type chunkPrompt struct {
	index  int
	prompt string
}

func summarizeChunkNode(deps Deps) (*flow.Task, error) {
	return flow.NewTask(flow.TaskConfig{
		Name:       "summarize-chunk",
		MaxRetries: 2,
		Wait:       deps.retryWait(),
		Prep: func(ctx context.Context, shared *schema.Shared, params schema.Params) (any, error) {
			idx := params.Int("chunk_index")
			chunks := shared.GetSlice("chunks")
			if idx < 0 || idx >= len(chunks) {
				return nil, schema.NewErrorf(schema.ErrCodeValidation,
					"chunk index %d out of range (%d chunks)", idx, len(chunks))
			}
			chunk, _ := chunks[idx].(string)
			return chunkPrompt{
				index:  idx,
				prompt: "Summarize this passage in two or three sentences:\n\n" + chunk,
			}, nil
		},
		Exec: func(ctx context.Context, prep any) (any, error) {
			cp, _ := prep.(chunkPrompt)
			return deps.Completer.Complete(ctx, cp.prompt, nil)
		},
		Post: func(ctx context.Context, shared *schema.Shared, prep, exec any) (flow.Action, error) {
			cp, _ := prep.(chunkPrompt)
			shared.Set(chunkSummaryKey(cp.index), exec)
			return flow.DefaultAction, nil
		},
	})
}

// combineNode stitches the per-chunk summaries back together in chunk
// order and asks for one final summary over them.
func combineNode(deps Deps) (*flow.Task, error) {
	return flow.NewTask(flow.TaskConfig{
		Name:       "combine",
		MaxRetries: 2,
		Wait:       deps.retryWait(),
		Prep: func(ctx context.Context, shared *schema.Shared, params schema.Params) (any, error) {
			chunks := shared.GetSlice("chunks")
			parts := make([]string, 0, len(chunks))
			for i := range chunks {
				s := shared.GetString(chunkSummaryKey(i))
				if s == "" {
					return nil, schema.NewErrorf(schema.ErrCodeValidation,
						"missing summary for chunk %d", i)
				}
				parts = append(parts, s)
			}
			return "Combine these partial summaries into one coherent summary:\n\n" +
				strings.Join(parts, "\n\n"), nil
		},
		Exec: func(ctx context.Context, prep any) (any, error) {
			prompt, _ := prep.(string)
			return deps.Completer.Complete(ctx, prompt, nil)
		},
		Post: func(ctx context.Context, shared *schema.Shared, prep, exec any) (flow.Action, error) {
			shared.Set("summary", exec)
			return flow.DefaultAction, nil
		},
	})
}

func renderShortPrompt(shared *schema.Shared, params schema.Params) (string, error) {
	return "Summarize the following text in at most 50 words:\n\n" + shared.GetString("text"), nil
}

func chunkSummaryKey(i int) string {
	return fmt.Sprintf("chunk_summary.%d", i)
}

// splitChunks breaks text into pieces of at most size runes, preferring
// to cut at the last whitespace inside the window.
func splitChunks(text string, size int) []any {
	runes := []rune(text)
	var chunks []any
	for len(runes) > 0 {
		if len(runes) <= size {
			chunks = append(chunks, strings.TrimSpace(string(runes)))
			break
		}
		cut := size
		for i := size; i > size/2; i-- {
			if unicode.IsSpace(runes[i]) {
				cut = i
				break
			}
		}
		chunks = append(chunks, strings.TrimSpace(string(runes[:cut])))
		runes = runes[cut:]
	}
	return chunks
}
