package pipelines

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/drmaniak/discovery-dojo/pkg/clients"
	"github.com/drmaniak/discovery-dojo/pkg/flow"
	"github.com/drmaniak/discovery-dojo/pkg/nodes"
	"github.com/drmaniak/discovery-dojo/pkg/schema"
)

// Structured-output schemas for the completion steps.
var (
	queriesSchema = json.RawMessage(`{
		"type": "object",
		"properties": {
			"queries": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["queries"],
		"additionalProperties": false
	}`)

	critiqueSchema = json.RawMessage(`{
		"type": "object",
		"properties": {
			"verdict": {"type": "string", "enum": ["approve", "refine"]},
			"feedback": {"type": "string"}
		},
		"required": ["verdict", "feedback"],
		"additionalProperties": false
	}`)
)

// NewResearchFlow builds the research assistant graph:
//
//	queries-prompt >> query-gen >> parse-queries >> web-search
//	  >> summary-prompt >> summarize >> idea-prompt >> idea-gen
//	  >> critique-prompt >> critique >> parse-critique >> validation
//
// validation loops back to queries-prompt on "refine" and hands the
// approved idea to the nested novelty flow, which feeds the report
// writer. The refine loop is bounded by MaxRefineCycles.
func NewResearchFlow(deps Deps) (*flow.Flow, error) {
	if deps.Completer == nil || deps.Searcher == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "research flow needs a completer and a searcher")
	}
	if deps.Index == nil || deps.Embedder == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "research flow needs a vector index and an embedder")
	}
	if deps.JQ == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "research flow needs a jq engine")
	}
	wait := deps.retryWait()

	queriesPrompt, err := promptTask("queries-prompt", "queries_prompt", renderQueriesPrompt)
	if err != nil {
		return nil, err
	}
	queryGen, err := nodes.Completion(nodes.CompletionConfig{
		Name:       "query-gen",
		Client:     deps.Completer,
		PromptKey:  "queries_prompt",
		OutputKey:  "queries_json",
		Schema:     queriesSchema,
		MaxRetries: 2,
		Wait:       wait,
	})
	if err != nil {
		return nil, err
	}
	parseQueries, err := nodes.Transform(nodes.TransformConfig{
		Name:       "parse-queries",
		Engine:     deps.JQ,
		Expression: ".data | fromjson | .queries",
		SourceKey:  "queries_json",
		TargetKey:  "queries",
	})
	if err != nil {
		return nil, err
	}
	webSearch, err := nodes.Search(nodes.SearchConfig{
		Name:        "web-search",
		Client:      deps.Searcher,
		QueriesKey:  "queries",
		ResultsKey:  "search_results",
		MaxRetries:  2,
		Wait:        2 * wait,
		Parallel:    true,
		MaxParallel: deps.MaxParallel,
	})
	if err != nil {
		return nil, err
	}
	summaryPrompt, err := promptTask("summary-prompt", "summary_prompt", renderSummaryPrompt)
	if err != nil {
		return nil, err
	}
	summarize, err := nodes.Completion(nodes.CompletionConfig{
		Name:       "summarize",
		Client:     deps.Completer,
		PromptKey:  "summary_prompt",
		OutputKey:  "research_summary",
		MaxRetries: 2,
		Wait:       wait,
	})
	if err != nil {
		return nil, err
	}
	ideaPrompt, err := promptTask("idea-prompt", "idea_prompt", renderIdeaPrompt)
	if err != nil {
		return nil, err
	}
	ideaGen, err := nodes.Completion(nodes.CompletionConfig{
		Name:       "idea-gen",
		Client:     deps.Completer,
		PromptKey:  "idea_prompt",
		OutputKey:  "idea",
		MaxRetries: 2,
		Wait:       wait,
	})
	if err != nil {
		return nil, err
	}
	critiquePrompt, err := promptTask("critique-prompt", "critique_prompt", renderCritiquePrompt)
	if err != nil {
		return nil, err
	}
	critique, err := nodes.Completion(nodes.CompletionConfig{
		Name:       "critique",
		Client:     deps.Completer,
		PromptKey:  "critique_prompt",
		OutputKey:  "critique_json",
		Schema:     critiqueSchema,
		MaxRetries: 2,
		Wait:       wait,
	})
	if err != nil {
		return nil, err
	}
	parseCritique, err := nodes.Transform(nodes.TransformConfig{
		Name:       "parse-critique",
		Engine:     deps.JQ,
		Expression: ".data | fromjson",
		SourceKey:  "critique_json",
		TargetKey:  "critique",
	})
	if err != nil {
		return nil, err
	}
	validation, err := reviewGate("validation", "critique", "refine_cycles", "feedback", deps.refineCycles())
	if err != nil {
		return nil, err
	}
	novelty, err := newNoveltyFlow(deps, wait)
	if err != nil {
		return nil, err
	}
	report, err := reportNode()
	if err != nil {
		return nil, err
	}
	write, err := nodes.WriteFile(nodes.WriteFileConfig{
		Name:       "write-report",
		Path:       deps.outputPath(),
		PathParam:  "output_path",
		ContentKey: "report",
	})
	if err != nil {
		return nil, err
	}

	chain(queriesPrompt, queryGen, parseQueries, webSearch,
		summaryPrompt, summarize, ideaPrompt, ideaGen,
		critiquePrompt, critique, parseCritique, validation)

	validation.On("refine", queriesPrompt)
	validation.On("approve", novelty)
	validation.On("max_cycles", novelty)
	novelty.Then(report)
	report.Then(write)

	return flow.NewFlow(flow.FlowConfig{
		Name:   "research-assistant",
		Start:  queriesPrompt,
		Tracer: deps.Tracer,
		Logger: deps.Logger,
	})
}

// newNoveltyFlow builds the nested novelty assessment sub-graph: embed
// the approved idea, pull similar work from the vector index, and ask
// the model for a novelty verdict against it.
func newNoveltyFlow(deps Deps, wait time.Duration) (*flow.Flow, error) {
	lookup, err := nodes.VectorQuery(nodes.VectorQueryConfig{
		Name:       "similar-work",
		Index:      deps.Index,
		Embedder:   deps.Embedder,
		TextKey:    "idea",
		ResultsKey: "similar_work",
		TopK:       5,
		MaxRetries: 3,
		Wait:       2 * wait,
	})
	if err != nil {
		return nil, err
	}
	prompt, err := promptTask("novelty-prompt", "novelty_prompt", renderNoveltyPrompt)
	if err != nil {
		return nil, err
	}
	assess, err := nodes.Completion(nodes.CompletionConfig{
		Name:       "novelty-assess",
		Client:     deps.Completer,
		PromptKey:  "novelty_prompt",
		OutputKey:  "novelty_assessment",
		MaxRetries: 2,
		Wait:       wait,
	})
	if err != nil {
		return nil, err
	}

	chain(lookup, prompt, assess)

	return flow.NewFlow(flow.FlowConfig{
		Name:   "novelty",
		Start:  lookup,
		Tracer: deps.Tracer,
		Logger: deps.Logger,
	})
}

// reviewGate routes on a parsed review verdict at reviewKey. Each
// "refine" pass increments the counter at cyclesKey and surfaces the
// review feedback under feedbackKey for the next generation attempt;
// once the bound is hit the work proceeds as-is under "max_cycles".
func reviewGate(name, reviewKey, cyclesKey, feedbackKey string, maxCycles int) (*flow.Task, error) {
	return flow.NewTask(flow.TaskConfig{
		Name: name,
		Prep: func(ctx context.Context, shared *schema.Shared, params schema.Params) (any, error) {
			v, ok := shared.Get(reviewKey)
			if !ok {
				return nil, schema.NewErrorf(schema.ErrCodeValidation, "no review at %q to validate", reviewKey)
			}
			review, ok := v.(map[string]any)
			if !ok {
				return nil, schema.NewErrorf(schema.ErrCodeValidation, "review at %q is %T, want object", reviewKey, v)
			}
			return review, nil
		},
		Post: func(ctx context.Context, shared *schema.Shared, prep, exec any) (flow.Action, error) {
			review := prep.(map[string]any)
			verdict, _ := review["verdict"].(string)
			if verdict == "approve" {
				return "approve", nil
			}

			cycles := shared.GetInt(cyclesKey)
			if cycles >= maxCycles {
				return "max_cycles", nil
			}
			shared.Set(cyclesKey, cycles+1)
			if feedback, _ := review["feedback"].(string); feedback != "" {
				shared.Set(feedbackKey, feedback)
			}
			return "refine", nil
		},
	})
}

// reportNode assembles the final markdown report from the run's
// accumulated results.
func reportNode() (*flow.Task, error) {
	return flow.NewTask(flow.TaskConfig{
		Name: "report",
		Prep: func(ctx context.Context, shared *schema.Shared, params schema.Params) (any, error) {
			var b strings.Builder
			fmt.Fprintf(&b, "# Research Idea: %s\n\n", shared.GetString("topic"))
			fmt.Fprintf(&b, "## Idea\n\n%s\n\n", shared.GetString("idea"))
			if s := shared.GetString("research_summary"); s != "" {
				fmt.Fprintf(&b, "## Background\n\n%s\n\n", s)
			}
			if s := shared.GetString("novelty_assessment"); s != "" {
				fmt.Fprintf(&b, "## Novelty Assessment\n\n%s\n\n", s)
			}
			fmt.Fprintf(&b, "_Refinement cycles: %d_\n", shared.GetInt("refine_cycles"))
			return b.String(), nil
		},
		Post: func(ctx context.Context, shared *schema.Shared, prep, exec any) (flow.Action, error) {
			shared.Set("report", prep)
			return flow.DefaultAction, nil
		},
	})
}

func renderQueriesPrompt(shared *schema.Shared, params schema.Params) (string, error) {
	topic := shared.GetString("topic")
	if topic == "" {
		return "", schema.NewError(schema.ErrCodeValidation, "shared key \"topic\" holds no research topic")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Generate 3 focused web search queries for researching the topic: %s\n", topic)
	if feedback := shared.GetString("feedback"); feedback != "" {
		fmt.Fprintf(&b, "\nA previous attempt was rejected with this feedback, address it:\n%s\n", feedback)
	}
	b.WriteString("\nRespond with a JSON object {\"queries\": [...]}.")
	return b.String(), nil
}

func renderSummaryPrompt(shared *schema.Shared, params schema.Params) (string, error) {
	groups := shared.GetSlice("search_results")
	if groups == nil {
		return "", schema.NewError(schema.ErrCodeValidation, "shared key \"search_results\" holds no results")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the key findings below for the topic %q in a few paragraphs.\n\n",
		shared.GetString("topic"))
	for _, group := range groups {
		results, ok := group.([]clients.SearchResult)
		if !ok {
			continue
		}
		for _, r := range results {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	return b.String(), nil
}

func renderIdeaPrompt(shared *schema.Shared, params schema.Params) (string, error) {
	summary := shared.GetString("research_summary")
	if summary == "" {
		return "", schema.NewError(schema.ErrCodeValidation, "shared key \"research_summary\" holds no summary")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Propose one concrete, novel research idea on the topic %q.\n\n",
		shared.GetString("topic"))
	fmt.Fprintf(&b, "Ground it in this research summary:\n%s\n", summary)
	if feedback := shared.GetString("feedback"); feedback != "" {
		fmt.Fprintf(&b, "\nIncorporate this reviewer feedback:\n%s\n", feedback)
	}
	return b.String(), nil
}

func renderCritiquePrompt(shared *schema.Shared, params schema.Params) (string, error) {
	idea := shared.GetString("idea")
	if idea == "" {
		return "", schema.NewError(schema.ErrCodeValidation, "shared key \"idea\" holds no idea")
	}
	var b strings.Builder
	b.WriteString("Critique the research idea below for feasibility and novelty. ")
	b.WriteString("Respond with JSON {\"verdict\": \"approve\"|\"refine\", \"feedback\": \"...\"}.\n\n")
	b.WriteString(idea)
	return b.String(), nil
}

func renderNoveltyPrompt(shared *schema.Shared, params schema.Params) (string, error) {
	idea := shared.GetString("idea")
	if idea == "" {
		return "", schema.NewError(schema.ErrCodeValidation, "shared key \"idea\" holds no idea")
	}
	var b strings.Builder
	b.WriteString("Assess the novelty of this research idea against the prior work listed below.\n\n")
	fmt.Fprintf(&b, "Idea:\n%s\n\nPrior work:\n", idea)
	if records, ok := shared.Get("similar_work"); ok {
		if scored, ok := records.([]clients.ScoredRecord); ok {
			for _, rec := range scored {
				title, _ := rec.Record["title"].(string)
				abstract, _ := rec.Record["abstract"].(string)
				fmt.Fprintf(&b, "- %s (similarity %.2f): %s\n", title, rec.Score, abstract)
			}
		}
	}
	return b.String(), nil
}
